package models

import "time"

type TransferStatus string

const (
	TransferStatusPending  TransferStatus = "pending"
	TransferStatusAccepted TransferStatus = "accepted"
	TransferStatusRejected TransferStatus = "rejected"
	TransferStatusExpired  TransferStatus = "expired"
)

// RegisterTransfer: İki veznedar arasındaki kasa devri. Devir ancak alıcının
// tek kullanımlık token ile kabul etmesiyle tamamlanır.
type RegisterTransfer struct {
	ID             uint `gorm:"primaryKey"`
	CashRegisterID uint `gorm:"index;not null"`
	CashRegister   CashRegister
	FromSessionID  uint `gorm:"not null"` // gönderenin oturumu
	FromUserID     uint `gorm:"not null"`
	FromUser       User
	ToUserID       uint `gorm:"index;not null"` // devralacak veznedar
	ToUser         User

	AmountSent     float64  `gorm:"not null"`
	AmountReceived *float64 // kabul sırasında sayılan tutar; fark kayda geçer
	// kabulde açılan/kullanılan alıcı oturumu (açık oturum yoksa boş kalabilir)
	ToSessionID *uint

	TransferToken string         `gorm:"size:64;uniqueIndex;not null"` // tek kullanımlık
	Status        TransferStatus `gorm:"size:20;not null;index"`
	Notes         string         `gorm:"size:255"`
	ExpiresAt     time.Time      `gorm:"index;not null"`
	ResolvedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
