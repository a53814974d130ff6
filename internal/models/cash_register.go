package models

import "time"

// CashRegister: Vezne cihazı. Kendi bakiyesi yoktur, para oturumlar üzerinden izlenir.
type CashRegister struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:100;not null"`
	DepartmentID uint   `gorm:"index;not null"`
	Department   Department
	IsActive     bool `gorm:"default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
