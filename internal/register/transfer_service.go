package register

import (
	"errors"
	"fmt"
	"log"
	"time"

	"klinik-backend/internal/ledger"
	"klinik-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransferService: Veznedarlar arası kasa devri. Devir fiziksel sorumluluğun
// el değiştirmesidir; alıcı tek kullanımlık token ile açıkça kabul etmeden
// tamamlanmaz.
type TransferService struct {
	db     *gorm.DB
	expiry time.Duration
}

func NewTransferService(db *gorm.DB, expiry time.Duration) *TransferService {
	return &TransferService{db: db, expiry: expiry}
}

type InitiateTransferCommand struct {
	FromSessionID uint
	ActorID       uint // göndereni doğrulamak için; oturumun operatörü olmalı
	ToUserID      uint
	Amount        float64
	Notes         string
}

type AcceptTransferCommand struct {
	TransferID     uint
	Token          string
	ActorID        uint // devralan; transfer.ToUserID olmalı
	AmountReceived *float64
}

func (s *TransferService) getTransfer(tx *gorm.DB, id uint) (*models.RegisterTransfer, error) {
	var transfer models.RegisterTransfer
	if err := tx.First(&transfer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ledger.NotFoundError{Entity: "devir", ID: id}
		}
		return nil, err
	}
	return &transfer, nil
}

// Initiate: Devir başlatır; token üretir, süre başlatır. Gönderen oturumu
// açık olmalı, tutar pozitif olmalı.
func (s *TransferService) Initiate(cmd InitiateTransferCommand) (*models.RegisterTransfer, error) {
	if cmd.Amount <= 0 {
		return nil, &ledger.ValidationError{Reason: "devir tutarı 0'dan büyük olmalı"}
	}

	var session models.RegisterSession
	if err := s.db.First(&session, "id = ?", cmd.FromSessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ledger.NotFoundError{Entity: "oturum", ID: cmd.FromSessionID}
		}
		return nil, err
	}
	if session.Status != models.SessionStatusOpen {
		return nil, &ledger.StateError{Entity: "oturum", ID: session.ID, Reason: "devir sadece açık oturumdan başlatılabilir"}
	}
	if session.OperatorID != cmd.ActorID {
		return nil, &ledger.AuthorizationError{Reason: "devri sadece oturumun sahibi başlatabilir"}
	}
	if cmd.ToUserID == cmd.ActorID {
		return nil, &ledger.ValidationError{Reason: "kendi üzerinize devir yapamazsınız"}
	}

	var toUser models.User
	if err := s.db.First(&toUser, "id = ?", cmd.ToUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ledger.NotFoundError{Entity: "kullanıcı", ID: cmd.ToUserID}
		}
		return nil, err
	}

	transfer := models.RegisterTransfer{
		CashRegisterID: session.CashRegisterID,
		FromSessionID:  session.ID,
		FromUserID:     cmd.ActorID,
		ToUserID:       cmd.ToUserID,
		AmountSent:     cmd.Amount,
		TransferToken:  uuid.NewString(),
		Status:         models.TransferStatusPending,
		Notes:          cmd.Notes,
		ExpiresAt:      time.Now().Add(s.expiry),
	}
	if err := s.db.Create(&transfer).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

// Accept: Token doğruysa devri tamamlar. Sayılan tutar gönderilenden farklıysa
// fark nota düşülür, asla sessizce yutulmaz. Veznede aktif oturum kalmadıysa
// devralan için devir tutarıyla yeni oturum açılır; devralanın kendi açık
// oturumu varsa devir o oturuma bağlanır.
func (s *TransferService) Accept(cmd AcceptTransferCommand) (*models.RegisterTransfer, error) {
	var transfer *models.RegisterTransfer
	var expiredErr error
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		transfer, err = s.getTransfer(tx, cmd.TransferID)
		if err != nil {
			return err
		}

		if transfer.TransferToken != cmd.Token {
			return &ledger.TokenMismatchError{TransferID: transfer.ID}
		}
		if transfer.ToUserID != cmd.ActorID {
			return &ledger.AuthorizationError{Reason: "devri sadece atanan kişi kabul edebilir"}
		}
		if transfer.Status != models.TransferStatusPending {
			return &ledger.StateError{Entity: "devir", ID: transfer.ID, Reason: "devir zaten sonuçlanmış"}
		}
		if time.Now().After(transfer.ExpiresAt) {
			// Süresi geçmiş pending devri burada da düşür; sweep beklemeye gerek yok.
			// Hata dönmeden çıkılır ki expired güncellemesi commit'lensin.
			now := time.Now()
			if err := tx.Model(&models.RegisterTransfer{}).
				Where("id = ? AND status = ?", transfer.ID, models.TransferStatusPending).
				Updates(map[string]interface{}{"status": models.TransferStatusExpired, "resolved_at": now}).Error; err != nil {
				return err
			}
			expiredErr = &ledger.StateError{Entity: "devir", ID: transfer.ID, Reason: "devrin süresi dolmuş"}
			return nil
		}

		received := transfer.AmountSent
		if cmd.AmountReceived != nil {
			received = *cmd.AmountReceived
			if received < 0 {
				return &ledger.ValidationError{Reason: "sayılan tutar negatif olamaz"}
			}
		}

		notes := transfer.Notes
		if received != transfer.AmountSent {
			diff := fmt.Sprintf("Devir farkı: gönderilen %.2f, sayılan %.2f", transfer.AmountSent, received)
			if notes != "" {
				notes = notes + " | " + diff
			} else {
				notes = diff
			}
		}

		// Devralanın eline geçen paranın oturum bağlantısı
		var toSessionID *uint
		var active models.RegisterSession
		findErr := tx.Where("cash_register_id = ? AND status IN ?", transfer.CashRegisterID,
			[]models.SessionStatus{models.SessionStatusOpen, models.SessionStatusSuspended}).
			First(&active).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			// Veznede aktif oturum yok: devralan için yeni oturum aç
			newSession := models.RegisterSession{
				CashRegisterID: transfer.CashRegisterID,
				OperatorID:     transfer.ToUserID,
				OpenedByID:     transfer.ToUserID,
				OpeningAmount:  received,
				Status:         models.SessionStatusOpen,
				OpenNotes:      fmt.Sprintf("Devir #%d ile açıldı", transfer.ID),
				OpenedAt:       time.Now(),
			}
			if err := tx.Create(&newSession).Error; err != nil {
				if isUniqueViolation(err) {
					return &ledger.ConflictError{Entity: "vezne", Reason: "bu veznede zaten açık veya askıda bir oturum var"}
				}
				return err
			}
			toSessionID = &newSession.ID
		case findErr != nil:
			return findErr
		case active.OperatorID == transfer.ToUserID:
			toSessionID = &active.ID
		default:
			// Gönderenin oturumu hâlâ aktif; sorumluluk devir kaydının üzerinde kalır
			toSessionID = nil
		}

		now := time.Now()
		res := tx.Model(&models.RegisterTransfer{}).
			Where("id = ? AND status = ?", transfer.ID, models.TransferStatusPending).
			Updates(map[string]interface{}{
				"status":          models.TransferStatusAccepted,
				"amount_received": received,
				"to_session_id":   toSessionID,
				"notes":           notes,
				"resolved_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &ledger.StateError{Entity: "devir", ID: transfer.ID, Reason: "devir zaten sonuçlanmış"}
		}

		transfer, err = s.getTransfer(tx, transfer.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expiredErr != nil {
		return nil, expiredErr
	}
	return transfer, nil
}

// Reject: Devralan devri reddeder; para gönderende kalır.
func (s *TransferService) Reject(transferID, actorID uint, reason string) (*models.RegisterTransfer, error) {
	var transfer *models.RegisterTransfer
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		transfer, err = s.getTransfer(tx, transferID)
		if err != nil {
			return err
		}

		if transfer.ToUserID != actorID {
			return &ledger.AuthorizationError{Reason: "devri sadece atanan kişi reddedebilir"}
		}
		if transfer.Status != models.TransferStatusPending {
			return &ledger.StateError{Entity: "devir", ID: transfer.ID, Reason: "devir zaten sonuçlanmış"}
		}

		notes := transfer.Notes
		if reason != "" {
			if notes != "" {
				notes = notes + " | Ret: " + reason
			} else {
				notes = "Ret: " + reason
			}
		}

		now := time.Now()
		res := tx.Model(&models.RegisterTransfer{}).
			Where("id = ? AND status = ?", transferID, models.TransferStatusPending).
			Updates(map[string]interface{}{
				"status":      models.TransferStatusRejected,
				"notes":       notes,
				"resolved_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &ledger.StateError{Entity: "devir", ID: transferID, Reason: "devir zaten sonuçlanmış"}
		}

		transfer, err = s.getTransfer(tx, transferID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

// ExpireStale: Süresi dolmuş pending devirleri expired yapar. Koşullu UPDATE
// sadece pending satırları etkilediği için tekrar çalıştırmak ek etki üretmez.
func (s *TransferService) ExpireStale(now time.Time) (int64, error) {
	res := s.db.Model(&models.RegisterTransfer{}).
		Where("status = ? AND expires_at <= ?", models.TransferStatusPending, now).
		Updates(map[string]interface{}{
			"status":      models.TransferStatusExpired,
			"resolved_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// RunExpirySweep: main'den goroutine olarak çalıştırılır.
func (s *TransferService) RunExpirySweep(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := s.ExpireStale(time.Now())
			if err != nil {
				log.Printf("Devir süre taraması hatası: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("%d devrin süresi doldu", n)
			}
		}
	}
}

type TransferFilter struct {
	RegisterID *uint
	ToUserID   *uint
	FromUserID *uint
	Status     models.TransferStatus
}

func (s *TransferService) List(f TransferFilter) ([]models.RegisterTransfer, error) {
	dbq := s.db.Model(&models.RegisterTransfer{})

	if f.RegisterID != nil {
		dbq = dbq.Where("cash_register_id = ?", *f.RegisterID)
	}
	if f.ToUserID != nil {
		dbq = dbq.Where("to_user_id = ?", *f.ToUserID)
	}
	if f.FromUserID != nil {
		dbq = dbq.Where("from_user_id = ?", *f.FromUserID)
	}
	if f.Status != "" {
		dbq = dbq.Where("status = ?", f.Status)
	}

	var transfers []models.RegisterTransfer
	if err := dbq.Order("created_at desc, id desc").Find(&transfers).Error; err != nil {
		return nil, err
	}
	return transfers, nil
}
