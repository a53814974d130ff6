package vault

import (
	"errors"
	"time"

	"klinik-backend/internal/ledger"
	"klinik-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service: Ana kasa defteri. Bakiye mutasyonu ile hareket kaydı her zaman
// aynı DB transaction'ında yapılır; yarım kalmış transfer gözlemlenemez.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type DepositCommand struct {
	VaultID     uint
	ActorID     uint
	Amount      float64
	Description string
	Reference   string
	SessionID   *uint // para kapanan bir vezne oturumundan geliyorsa
}

type WithdrawCommand struct {
	VaultID     uint
	ActorID     uint
	Amount      float64
	Description string
	Reference   string
	SessionID   *uint
}

type TransferCommand struct {
	SourceVaultID uint
	DestVaultID   uint
	ActorID       uint
	Amount        float64
	Description   string
}

// ApplyCredit: Bakiyeye ekleme. Transaction içinde çağrılmalı.
func ApplyCredit(tx *gorm.DB, vaultID uint, amount float64) error {
	res := tx.Model(&models.Vault{}).
		Where("id = ?", vaultID).
		UpdateColumn("current_balance", gorm.Expr("current_balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &ledger.NotFoundError{Entity: "kasa", ID: vaultID}
	}
	return nil
}

// ApplyDebit: Bakiyeden düşme. Koşullu UPDATE ile yapılır: yarışan iki çekim
// aynı bakiyeyi okuyup üst üste yazamaz, kaybeden InsufficientFunds alır.
func ApplyDebit(tx *gorm.DB, vaultID uint, amount float64) error {
	res := tx.Model(&models.Vault{}).
		Where("id = ? AND current_balance >= ?", vaultID, amount).
		UpdateColumn("current_balance", gorm.Expr("current_balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.Vault{}).Where("id = ?", vaultID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return &ledger.NotFoundError{Entity: "kasa", ID: vaultID}
		}
		return &ledger.InsufficientFundsError{VaultID: vaultID, Amount: amount}
	}
	return nil
}

// ActiveVault: Kasanın var ve aktif olduğunu doğrular. Pasif kasa üzerinden
// hiçbir para hareketi yapılamaz; oturum aç/kapa yolları da bunu kullanır.
func ActiveVault(tx *gorm.DB, vaultID uint) (*models.Vault, error) {
	var v models.Vault
	if err := tx.First(&v, "id = ?", vaultID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ledger.NotFoundError{Entity: "kasa", ID: vaultID}
		}
		return nil, err
	}
	if !v.IsActive {
		return nil, &ledger.StateError{Entity: "kasa", ID: vaultID, Reason: "kasa pasif durumda"}
	}
	return &v, nil
}

func (s *Service) Deposit(cmd DepositCommand) (*models.VaultTransaction, error) {
	if cmd.Amount <= 0 {
		return nil, &ledger.ValidationError{Reason: "tutar 0'dan büyük olmalı"}
	}

	var vtx models.VaultTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := ActiveVault(tx, cmd.VaultID); err != nil {
			return err
		}

		vtx = models.VaultTransaction{
			VaultID:     cmd.VaultID,
			UserID:      cmd.ActorID,
			Type:        models.VaultTxDeposit,
			Amount:      cmd.Amount,
			Status:      models.VaultTxCompleted,
			SessionID:   cmd.SessionID,
			Description: cmd.Description,
			Reference:   cmd.Reference,
		}
		if err := tx.Create(&vtx).Error; err != nil {
			return err
		}

		return ApplyCredit(tx, cmd.VaultID, cmd.Amount)
	})
	if err != nil {
		return nil, err
	}
	return &vtx, nil
}

func (s *Service) Withdraw(cmd WithdrawCommand) (*models.VaultTransaction, error) {
	if cmd.Amount <= 0 {
		return nil, &ledger.ValidationError{Reason: "tutar 0'dan büyük olmalı"}
	}

	var vtx models.VaultTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := ActiveVault(tx, cmd.VaultID); err != nil {
			return err
		}

		// Önce bakiye düşülür: yetersizse hareket kaydı hiç oluşmaz
		if err := ApplyDebit(tx, cmd.VaultID, cmd.Amount); err != nil {
			return err
		}

		vtx = models.VaultTransaction{
			VaultID:     cmd.VaultID,
			UserID:      cmd.ActorID,
			Type:        models.VaultTxWithdraw,
			Amount:      cmd.Amount,
			Status:      models.VaultTxCompleted,
			SessionID:   cmd.SessionID,
			Description: cmd.Description,
			Reference:   cmd.Reference,
		}
		return tx.Create(&vtx).Error
	})
	if err != nil {
		return nil, err
	}
	return &vtx, nil
}

// TransferBetweenVaults: Kaynaktan transfer_out, hedefe transfer_in; iki kayıt
// ve iki bakiye güncellemesi tek transaction'da. PairRef çifti bağlar.
func (s *Service) TransferBetweenVaults(cmd TransferCommand) (*models.VaultTransaction, *models.VaultTransaction, error) {
	if cmd.Amount <= 0 {
		return nil, nil, &ledger.ValidationError{Reason: "tutar 0'dan büyük olmalı"}
	}
	if cmd.SourceVaultID == cmd.DestVaultID {
		return nil, nil, &ledger.ValidationError{Reason: "kaynak ve hedef kasa aynı olamaz"}
	}

	pairRef := uuid.NewString()
	var out, in models.VaultTransaction

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := ActiveVault(tx, cmd.SourceVaultID); err != nil {
			return err
		}
		if _, err := ActiveVault(tx, cmd.DestVaultID); err != nil {
			return err
		}

		if err := ApplyDebit(tx, cmd.SourceVaultID, cmd.Amount); err != nil {
			return err
		}
		if err := ApplyCredit(tx, cmd.DestVaultID, cmd.Amount); err != nil {
			return err
		}

		out = models.VaultTransaction{
			VaultID:             cmd.SourceVaultID,
			UserID:              cmd.ActorID,
			Type:                models.VaultTxTransferOut,
			Amount:              cmd.Amount,
			Status:              models.VaultTxCompleted,
			CounterpartyVaultID: &cmd.DestVaultID,
			PairRef:             pairRef,
			Description:         cmd.Description,
		}
		if err := tx.Create(&out).Error; err != nil {
			return err
		}

		in = models.VaultTransaction{
			VaultID:             cmd.DestVaultID,
			UserID:              cmd.ActorID,
			Type:                models.VaultTxTransferIn,
			Amount:              cmd.Amount,
			Status:              models.VaultTxCompleted,
			CounterpartyVaultID: &cmd.SourceVaultID,
			PairRef:             pairRef,
			Description:         cmd.Description,
		}
		return tx.Create(&in).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &out, &in, nil
}

// GatedDeposit: Onay bekleyen yatırma. Bakiye etkisi talep onaylanana kadar
// uygulanmaz (bkz. CompleteGated). Talebi oluşturan transaction'ın içinden
// çağrılır ki talep ile bekleyen hareket birlikte yazılsın ya da hiç yazılmasın.
func GatedDeposit(tx *gorm.DB, cmd DepositCommand, settlementRequestID uint) (*models.VaultTransaction, error) {
	if cmd.Amount <= 0 {
		return nil, &ledger.ValidationError{Reason: "tutar 0'dan büyük olmalı"}
	}
	if _, err := ActiveVault(tx, cmd.VaultID); err != nil {
		return nil, err
	}

	vtx := models.VaultTransaction{
		VaultID:             cmd.VaultID,
		UserID:              cmd.ActorID,
		Type:                models.VaultTxDeposit,
		Amount:              cmd.Amount,
		Status:              models.VaultTxPending,
		SessionID:           cmd.SessionID,
		SettlementRequestID: &settlementRequestID,
		Description:         cmd.Description,
		Reference:           cmd.Reference,
	}
	if err := tx.Create(&vtx).Error; err != nil {
		return nil, err
	}
	return &vtx, nil
}

func (s *Service) CreateGatedDeposit(cmd DepositCommand, settlementRequestID uint) (*models.VaultTransaction, error) {
	return GatedDeposit(s.db, cmd, settlementRequestID)
}

// CompleteGated: Onaylanan talebe bağlı pending hareketleri tamamlar ve bakiyeye
// işler. Onay akışının transaction'ı içinden çağrılır.
func CompleteGated(tx *gorm.DB, settlementRequestID uint) error {
	var pending []models.VaultTransaction
	if err := tx.Where("settlement_request_id = ? AND status = ?", settlementRequestID, models.VaultTxPending).
		Find(&pending).Error; err != nil {
		return err
	}

	for _, vtx := range pending {
		if err := tx.Model(&models.VaultTransaction{}).
			Where("id = ?", vtx.ID).
			Update("status", models.VaultTxCompleted).Error; err != nil {
			return err
		}

		switch vtx.Type {
		case models.VaultTxDeposit, models.VaultTxTransferIn:
			if err := ApplyCredit(tx, vtx.VaultID, vtx.Amount); err != nil {
				return err
			}
		case models.VaultTxWithdraw, models.VaultTxTransferOut:
			if err := ApplyDebit(tx, vtx.VaultID, vtx.Amount); err != nil {
				return err
			}
		}
	}
	return nil
}

// CurrentBalance: Kasa satırındaki güncel bakiye.
func (s *Service) CurrentBalance(vaultID uint) (float64, error) {
	var v models.Vault
	if err := s.db.First(&v, "id = ?", vaultID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, &ledger.NotFoundError{Entity: "kasa", ID: vaultID}
		}
		return 0, err
	}
	return v.CurrentBalance, nil
}

// LedgerBalance: Tamamlanmış hareketlerin net toplamı. CurrentBalance ile her
// an eşit olmalı; tutarlılık kontrolü bu iki değeri karşılaştırır.
func (s *Service) LedgerBalance(vaultID uint) (float64, error) {
	var count int64
	if err := s.db.Model(&models.Vault{}).Where("id = ?", vaultID).Count(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, &ledger.NotFoundError{Entity: "kasa", ID: vaultID}
	}

	type row struct {
		Type  models.VaultTransactionType
		Total float64
	}
	var rows []row
	if err := s.db.Model(&models.VaultTransaction{}).
		Select("type, SUM(amount) as total").
		Where("vault_id = ? AND status = ?", vaultID, models.VaultTxCompleted).
		Group("type").
		Scan(&rows).Error; err != nil {
		return 0, err
	}

	var balance float64
	for _, r := range rows {
		switch r.Type {
		case models.VaultTxDeposit, models.VaultTxTransferIn:
			balance += r.Total
		case models.VaultTxWithdraw, models.VaultTxTransferOut:
			balance -= r.Total
		}
	}
	return balance, nil
}

type TransactionFilter struct {
	VaultID   *uint
	Type      models.VaultTransactionType
	Status    models.VaultTransactionStatus
	SessionID *uint
	From      *time.Time
	To        *time.Time
}

func (s *Service) ListTransactions(f TransactionFilter) ([]models.VaultTransaction, error) {
	dbq := s.db.Model(&models.VaultTransaction{})

	if f.VaultID != nil {
		dbq = dbq.Where("vault_id = ?", *f.VaultID)
	}
	if f.Type != "" {
		dbq = dbq.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		dbq = dbq.Where("status = ?", f.Status)
	}
	if f.SessionID != nil {
		dbq = dbq.Where("session_id = ?", *f.SessionID)
	}
	if f.From != nil {
		dbq = dbq.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		dbq = dbq.Where("created_at <= ?", *f.To)
	}

	var txs []models.VaultTransaction
	if err := dbq.Order("created_at asc, id asc").Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}
