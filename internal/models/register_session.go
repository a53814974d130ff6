package models

import "time"

type SessionStatus string

const (
	SessionStatusOpen      SessionStatus = "open"      // açık
	SessionStatusSuspended SessionStatus = "suspended" // askıda (mola / devir arası)
	SessionStatusClosed    SessionStatus = "closed"    // kapalı, sayım yapılmış
)

// RegisterSession: Bir veznedarın bir vezne üzerindeki sorumluluk dönemi.
// Aynı veznede aynı anda en fazla bir open/suspended oturum olabilir
// (partial unique index ile garanti edilir, bkz. database.Migrate).
type RegisterSession struct {
	ID             uint `gorm:"primaryKey"`
	CashRegisterID uint `gorm:"index;not null"`
	CashRegister   CashRegister
	OperatorID     uint `gorm:"index;not null"` // kasadan sorumlu veznedar
	Operator       User
	OpenedByID     uint  `gorm:"not null"` // oturumu açan (zorla açmada operatörden farklı olabilir)
	SourceVaultID  *uint // açılış parasının çekildiği ana kasa
	DestVaultID    *uint // kapanışta paranın yatırıldığı ana kasa

	OpeningAmount   float64       `gorm:"not null"`
	ClosingAmount   *float64      // kapanışta beyan edilen tutar
	ExpectedClosing *float64      // beklenen kapanış tutarı
	CountedTotal    *float64      // kupür sayımından hesaplanan toplam
	Variance        *float64      // CountedTotal - ExpectedClosing (eksikte negatif)
	Status          SessionStatus `gorm:"size:20;not null;index"`
	OpenNotes       string        `gorm:"size:255"`
	CloseNotes      string        `gorm:"size:255"`
	OpenedAt        time.Time     `gorm:"index;not null"`
	ClosedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Denominations []SessionDenomination `gorm:"foreignKey:SessionID"`
}

type DenominationKind string

const (
	DenominationCoin DenominationKind = "coin" // madeni para
	DenominationNote DenominationKind = "note" // kağıt para
)

// SessionDenomination: Kapanış sayımındaki kupür satırı. Kapanıştan sonra değişmez.
type SessionDenomination struct {
	ID        uint             `gorm:"primaryKey"`
	SessionID uint             `gorm:"index;not null"`
	Kind      DenominationKind `gorm:"size:10;not null"`
	FaceValue float64          `gorm:"not null"` // kupür değeri (örn: 0.50, 200)
	Quantity  int              `gorm:"not null"`
	CreatedAt time.Time
}
