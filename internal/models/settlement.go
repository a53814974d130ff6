package models

import "time"

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"   // nakit (onay gerektirmez)
	PaymentMethodCard   PaymentMethod = "card"   // kredi kartı
	PaymentMethodCheque PaymentMethod = "cheque" // çek
)

type SettlementStatus string

const (
	SettlementStatusPending  SettlementStatus = "pending"
	SettlementStatusApproved SettlementStatus = "approved"
	SettlementStatusRejected SettlementStatus = "rejected"
	SettlementStatusSentBack SettlementStatus = "sent_back" // düzeltme için iade edildi
)

// SettlementRequest: Kart/çek tahsilatı için onay kaydı. Bağlı FinancialTransaction
// sadece bu talep approved olursa completed'a geçer ve fatura bakiyesine işlenir.
type SettlementRequest struct {
	ID                     uint   `gorm:"primaryKey"`
	ReferenceNo            string `gorm:"size:40;uniqueIndex;not null"` // denetim için sabit referans
	FinancialTransactionID uint   `gorm:"uniqueIndex;not null"`
	FinancialTransaction   FinancialTransaction
	RequesterID            uint `gorm:"index;not null"`
	Requester              User
	ApproverID             uint `gorm:"index;not null"` // onaylamaya yetkili tek kişi
	Approver               User

	Amount          float64          `gorm:"not null"`
	CorrectedAmount *float64         // sent_back sırasında onaylayıcının önerdiği tutar
	Method          PaymentMethod    `gorm:"size:20;not null"`
	Status          SettlementStatus `gorm:"size:20;not null;index"`
	Notes           string           `gorm:"size:255"`
	ResolutionNotes string           `gorm:"size:255"` // onay/ret/iade açıklaması

	// Ek dosya sadece referans olarak tutulur, içerik okunmaz
	AttachmentPath string `gorm:"size:255"`
	AttachmentName string `gorm:"size:100"`
	AttachmentMime string `gorm:"size:50"`
	AttachmentSize int64

	RequestedAt time.Time `gorm:"index;not null"`
	ResolvedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type FinancialTxStatus string

const (
	FinancialTxPending   FinancialTxStatus = "pending"
	FinancialTxCompleted FinancialTxStatus = "completed"
	FinancialTxCancelled FinancialTxStatus = "cancelled" // reddedilen talep
)

// FinancialTransaction: Faturalanabilir kaleme yönelik tahsilat kaydı.
// pending -> completed geçişi yalnızca SettlementRequest onayı ile olur.
type FinancialTransaction struct {
	ID             uint `gorm:"primaryKey"`
	BillableItemID uint `gorm:"index;not null"`
	BillableItem   BillableItem
	CashierID      uint `gorm:"not null"`
	Cashier        User
	ApproverID     *uint

	Amount float64           `gorm:"not null"`
	Method PaymentMethod     `gorm:"size:20;not null"`
	Status FinancialTxStatus `gorm:"size:20;not null;index"`
	Notes  string            `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
