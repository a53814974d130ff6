package settlement

import (
	"errors"
	"time"

	"klinik-backend/internal/ledger"
	"klinik-backend/internal/models"
	"klinik-backend/internal/vault"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service: Kart/çek tahsilatının onay kapısı. "Söz verilen para" (pending
// FinancialTransaction) ile "işlenen para" (onaylı tahsilat) ayrıdır; fatura
// bakiyesine dokunan tek yol Approve'dur.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// applyHook: Onay commit'inin ortasına hata enjekte etmek için test kancası.
// Üretimde her zaman nil.
var applyHook func(tx *gorm.DB) error

type Attachment struct {
	Path string
	Name string
	Mime string
	Size int64
}

type RequestCommand struct {
	BillableItemID uint
	RequesterID    uint
	ApproverID     uint
	Amount         float64
	Method         models.PaymentMethod
	Notes          string
	Attachment     *Attachment
	// Onaylandığında tutarın yatırılacağı kasa (opsiyonel)
	TargetVaultID *uint
}

func (s *Service) getRequest(tx *gorm.DB, id uint) (*models.SettlementRequest, error) {
	var req models.SettlementRequest
	if err := tx.First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ledger.NotFoundError{Entity: "onay talebi", ID: id}
		}
		return nil, err
	}
	return &req, nil
}

// Request: Pending FinancialTransaction + pending SettlementRequest oluşturur.
// Fatura bakiyesine dokunulmaz.
func (s *Service) Request(cmd RequestCommand) (*models.SettlementRequest, error) {
	if cmd.Amount <= 0 {
		return nil, &ledger.ValidationError{Reason: "tutar 0'dan büyük olmalı"}
	}
	if cmd.Method != models.PaymentMethodCard && cmd.Method != models.PaymentMethodCheque {
		return nil, &ledger.ValidationError{Reason: "onay süreci sadece kart ve çek için geçerli"}
	}
	if cmd.ApproverID == cmd.RequesterID {
		return nil, &ledger.ValidationError{Reason: "talep eden kendi talebini onaylayamaz"}
	}

	var item models.BillableItem
	if err := s.db.First(&item, "id = ?", cmd.BillableItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ledger.NotFoundError{Entity: "fatura kalemi", ID: cmd.BillableItemID}
		}
		return nil, err
	}

	var approver models.User
	if err := s.db.First(&approver, "id = ?", cmd.ApproverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ledger.NotFoundError{Entity: "onaylayıcı", ID: cmd.ApproverID}
		}
		return nil, err
	}

	var req models.SettlementRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ftx := models.FinancialTransaction{
			BillableItemID: cmd.BillableItemID,
			CashierID:      cmd.RequesterID,
			Amount:         cmd.Amount,
			Method:         cmd.Method,
			Status:         models.FinancialTxPending,
			Notes:          cmd.Notes,
		}
		if err := tx.Create(&ftx).Error; err != nil {
			return err
		}

		req = models.SettlementRequest{
			ReferenceNo:            uuid.NewString(),
			FinancialTransactionID: ftx.ID,
			RequesterID:            cmd.RequesterID,
			ApproverID:             cmd.ApproverID,
			Amount:                 cmd.Amount,
			Method:                 cmd.Method,
			Status:                 models.SettlementStatusPending,
			Notes:                  cmd.Notes,
			RequestedAt:            time.Now(),
		}
		if cmd.Attachment != nil {
			req.AttachmentPath = cmd.Attachment.Path
			req.AttachmentName = cmd.Attachment.Name
			req.AttachmentMime = cmd.Attachment.Mime
			req.AttachmentSize = cmd.Attachment.Size
		}
		if err := tx.Create(&req).Error; err != nil {
			return err
		}

		// Hedef kasa verildiyse onaya bağlı (pending) kasa hareketi de aynı
		// transaction'da açılır: kasa geçersizse talep de hiç oluşmaz
		if cmd.TargetVaultID != nil {
			if _, err := vault.GatedDeposit(tx, vault.DepositCommand{
				VaultID:     *cmd.TargetVaultID,
				ActorID:     cmd.RequesterID,
				Amount:      cmd.Amount,
				Description: "Onay bekleyen tahsilat",
				Reference:   req.ReferenceNo,
			}, req.ID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &req, nil
}

func (s *Service) checkResolvable(req *models.SettlementRequest, approverID uint) error {
	if req.ApproverID != approverID {
		return &ledger.AuthorizationError{Reason: "bu talebi sadece atanan onaylayıcı sonuçlandırabilir"}
	}
	if req.Status != models.SettlementStatusPending {
		return &ledger.StateError{Entity: "onay talebi", ID: req.ID, Reason: "talep zaten sonuçlanmış"}
	}
	return nil
}

// Approve: Tek atomik adımda: talep approved, bağlı FinancialTransaction
// completed, fatura kaleminin paid/remaining/payment_status alanları güncel,
// onaya bağlı kasa hareketleri bakiyeye işlenmiş olur. Ya hepsi ya hiçbiri.
func (s *Service) Approve(requestID, approverID uint, notes string) (*models.SettlementRequest, error) {
	var req *models.SettlementRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.getRequest(tx, requestID)
		if err != nil {
			return err
		}
		if err := s.checkResolvable(req, approverID); err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&models.SettlementRequest{}).
			Where("id = ? AND status = ?", requestID, models.SettlementStatusPending).
			Updates(map[string]interface{}{
				"status":           models.SettlementStatusApproved,
				"resolution_notes": notes,
				"resolved_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Yarışan ikinci onay kaybeder
			return &ledger.StateError{Entity: "onay talebi", ID: requestID, Reason: "talep zaten sonuçlanmış"}
		}

		if applyHook != nil {
			if err := applyHook(tx); err != nil {
				return err
			}
		}

		res = tx.Model(&models.FinancialTransaction{}).
			Where("id = ? AND status = ?", req.FinancialTransactionID, models.FinancialTxPending).
			Updates(map[string]interface{}{
				"status":      models.FinancialTxCompleted,
				"approver_id": approverID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &ledger.StateError{Entity: "tahsilat", ID: req.FinancialTransactionID, Reason: "tahsilat kaydı pending durumda değil"}
		}

		var ftx models.FinancialTransaction
		if err := tx.First(&ftx, "id = ?", req.FinancialTransactionID).Error; err != nil {
			return err
		}

		var item models.BillableItem
		if err := tx.First(&item, "id = ?", ftx.BillableItemID).Error; err != nil {
			return err
		}
		item.PaidAmount += req.Amount
		item.RemainingAmount -= req.Amount
		item.RecomputePaymentStatus()
		if err := tx.Model(&models.BillableItem{}).Where("id = ?", item.ID).
			Updates(map[string]interface{}{
				"paid_amount":      item.PaidAmount,
				"remaining_amount": item.RemainingAmount,
				"payment_status":   item.PaymentStatus,
			}).Error; err != nil {
			return err
		}

		// Onaya bağlı kasa hareketleri varsa şimdi bakiyeye işlenir
		if err := vault.CompleteGated(tx, requestID); err != nil {
			return err
		}

		req, err = s.getRequest(tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Reject: Talep rejected, bağlı tahsilat cancelled. Fatura bakiyesi ve kasa
// bakiyeleri hiç değişmez.
func (s *Service) Reject(requestID, approverID uint, reason string) (*models.SettlementRequest, error) {
	var req *models.SettlementRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.getRequest(tx, requestID)
		if err != nil {
			return err
		}
		if err := s.checkResolvable(req, approverID); err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&models.SettlementRequest{}).
			Where("id = ? AND status = ?", requestID, models.SettlementStatusPending).
			Updates(map[string]interface{}{
				"status":           models.SettlementStatusRejected,
				"resolution_notes": reason,
				"resolved_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &ledger.StateError{Entity: "onay talebi", ID: requestID, Reason: "talep zaten sonuçlanmış"}
		}

		if err := tx.Model(&models.FinancialTransaction{}).
			Where("id = ? AND status = ?", req.FinancialTransactionID, models.FinancialTxPending).
			Update("status", models.FinancialTxCancelled).Error; err != nil {
			return err
		}

		// Bekleyen kasa hareketleri de iptal edilir; bakiyeye hiç dokunulmamıştır
		if err := tx.Where("settlement_request_id = ? AND status = ?", requestID, models.VaultTxPending).
			Delete(&models.VaultTransaction{}).Error; err != nil {
			return err
		}

		req, err = s.getRequest(tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// SendBack: Onaylayıcı talebi düzeltme için iade eder. Bu talep örneği için
// terminaldir; veznedar düzeltilmiş tutarla yeni talep açar. Bakiye değişmez.
func (s *Service) SendBack(requestID, approverID uint, correctedAmount *float64, notes string) (*models.SettlementRequest, error) {
	if correctedAmount != nil && *correctedAmount <= 0 {
		return nil, &ledger.ValidationError{Reason: "önerilen tutar 0'dan büyük olmalı"}
	}

	var req *models.SettlementRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.getRequest(tx, requestID)
		if err != nil {
			return err
		}
		if err := s.checkResolvable(req, approverID); err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&models.SettlementRequest{}).
			Where("id = ? AND status = ?", requestID, models.SettlementStatusPending).
			Updates(map[string]interface{}{
				"status":           models.SettlementStatusSentBack,
				"corrected_amount": correctedAmount,
				"resolution_notes": notes,
				"resolved_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &ledger.StateError{Entity: "onay talebi", ID: requestID, Reason: "talep zaten sonuçlanmış"}
		}

		if err := tx.Model(&models.FinancialTransaction{}).
			Where("id = ? AND status = ?", req.FinancialTransactionID, models.FinancialTxPending).
			Update("status", models.FinancialTxCancelled).Error; err != nil {
			return err
		}

		if err := tx.Where("settlement_request_id = ? AND status = ?", requestID, models.VaultTxPending).
			Delete(&models.VaultTransaction{}).Error; err != nil {
			return err
		}

		req, err = s.getRequest(tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) Get(requestID uint) (*models.SettlementRequest, error) {
	return s.getRequest(s.db, requestID)
}

type RequestFilter struct {
	Status      models.SettlementStatus
	Method      models.PaymentMethod
	ApproverID  *uint
	RequesterID *uint
	From        *time.Time
	To          *time.Time
}

func (s *Service) List(f RequestFilter) ([]models.SettlementRequest, error) {
	dbq := s.db.Model(&models.SettlementRequest{})

	if f.Status != "" {
		dbq = dbq.Where("status = ?", f.Status)
	}
	if f.Method != "" {
		dbq = dbq.Where("method = ?", f.Method)
	}
	if f.ApproverID != nil {
		dbq = dbq.Where("approver_id = ?", *f.ApproverID)
	}
	if f.RequesterID != nil {
		dbq = dbq.Where("requester_id = ?", *f.RequesterID)
	}
	if f.From != nil {
		dbq = dbq.Where("requested_at >= ?", *f.From)
	}
	if f.To != nil {
		dbq = dbq.Where("requested_at <= ?", *f.To)
	}

	var reqs []models.SettlementRequest
	if err := dbq.Order("requested_at desc, id desc").Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}
