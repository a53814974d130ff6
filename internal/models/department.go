package models

import "time"

type Department struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null;unique"`
	Location  string `gorm:"size:255"`
	Phone     string `gorm:"size:50"` // Opsiyonel dahili telefon
	CreatedAt time.Time
	UpdatedAt time.Time

	Users []User
}
