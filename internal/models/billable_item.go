package models

import "time"

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// BillableItem: Fatura kalemi. Bu modülde sadece tahsilat bakiyesi izlenir;
// hasta/işlem detayları fatura modülünün konusudur.
type BillableItem struct {
	ID          uint   `gorm:"primaryKey"`
	PatientRef  string `gorm:"size:50;index"` // hasta dosya no (dış referans)
	Description string `gorm:"size:255;not null"`

	TotalAmount     float64       `gorm:"not null"`
	PaidAmount      float64       `gorm:"not null;default:0"`
	RemainingAmount float64       `gorm:"not null"`
	PaymentStatus   PaymentStatus `gorm:"size:20;not null;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecomputePaymentStatus: RemainingAmount üzerinden durumu günceller.
func (b *BillableItem) RecomputePaymentStatus() {
	switch {
	case b.RemainingAmount <= 0:
		b.RemainingAmount = 0
		b.PaymentStatus = PaymentStatusPaid
	case b.PaidAmount > 0:
		b.PaymentStatus = PaymentStatusPartial
	default:
		b.PaymentStatus = PaymentStatusUnpaid
	}
}
