package models

import "time"

// Vault: Ana kasa. Bakiye sadece tamamlanmış VaultTransaction'lar üzerinden değişir.
type Vault struct {
	ID             uint    `gorm:"primaryKey"`
	Name           string  `gorm:"size:100;not null;unique"`
	Location       string  `gorm:"size:255"`
	CurrentBalance float64 `gorm:"not null;default:0"` // güncel bakiye
	CustodianID    uint    `gorm:"not null"`           // sorumlu kullanıcı
	Custodian      User
	IsActive       bool `gorm:"default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
