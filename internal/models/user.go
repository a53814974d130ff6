package models

import "time"

type UserRole string

const (
	RoleAdmin      UserRole = "admin"      // sistem yöneticisi
	RoleCashier    UserRole = "cashier"    // vezne görevlisi
	RoleAccountant UserRole = "accountant" // muhasebe / onaylayıcı
)

type User struct {
	ID           uint `gorm:"primaryKey"`
	DepartmentID *uint
	Department   *Department
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
