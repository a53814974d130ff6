package models

import "time"

type VaultTransactionType string

const (
	VaultTxDeposit     VaultTransactionType = "deposit"      // para yatırma
	VaultTxWithdraw    VaultTransactionType = "withdraw"     // para çekme
	VaultTxTransferIn  VaultTransactionType = "transfer_in"  // başka kasadan gelen
	VaultTxTransferOut VaultTransactionType = "transfer_out" // başka kasaya giden
)

type VaultTransactionStatus string

const (
	VaultTxPending   VaultTransactionStatus = "pending"   // onay bekliyor, bakiyeye işlenmedi
	VaultTxCompleted VaultTransactionStatus = "completed" // bakiyeye işlendi
)

// VaultTransaction: Ana kasa hareketi. Bakiye etkisi sadece completed durumunda uygulanır.
type VaultTransaction struct {
	ID      uint `gorm:"primaryKey"`
	VaultID uint `gorm:"index;not null"`
	Vault   Vault
	UserID  uint `gorm:"not null"` // işlemi yapan kullanıcı
	User    User

	Type   VaultTransactionType   `gorm:"size:20;not null;index"`
	Amount float64                `gorm:"not null"`
	Status VaultTransactionStatus `gorm:"size:20;not null;index"`

	// transferlerde karşı kasa; diğer tiplerde boş
	CounterpartyVaultID *uint
	// transfer_out/transfer_in çiftini bağlayan ortak referans
	PairRef string `gorm:"size:40;index"`
	// para kapanan bir oturumdan geliyorsa
	SessionID *uint
	// kart/çek onay sürecine bağlıysa
	SettlementRequestID *uint

	Description string `gorm:"size:255"`
	Reference   string `gorm:"size:100"` // dekont / fiş no
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
