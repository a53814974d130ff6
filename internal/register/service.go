package register

import (
	"errors"
	"strings"
	"time"

	"klinik-backend/internal/ledger"
	"klinik-backend/internal/models"
	"klinik-backend/internal/vault"

	"gorm.io/gorm"
)

// Service: Vezne oturumu yaşam döngüsü.
// open -> suspended -> open -> closed veya open -> closed.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type OpenSessionCommand struct {
	RegisterID    uint
	OperatorID    uint
	OpenedByID    uint // zorla açmada operatörden farklı
	OpeningAmount float64
	SourceVaultID *uint
	Notes         string
}

type DenominationInput struct {
	Kind      models.DenominationKind `json:"kind"`
	FaceValue float64                 `json:"face_value"`
	Quantity  int                     `json:"quantity"`
}

type CloseSessionCommand struct {
	SessionID       uint
	ActorID         uint
	ClosingAmount   *float64
	ExpectedClosing *float64
	DestVaultID     *uint
	Denominations   []DenominationInput
	Notes           string
}

func isUniqueViolation(err error) bool {
	// Postgres: "duplicate key value violates unique constraint",
	// sqlite: "UNIQUE constraint failed"
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

func (s *Service) getSession(tx *gorm.DB, id uint) (*models.RegisterSession, error) {
	var session models.RegisterSession
	if err := tx.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ledger.NotFoundError{Entity: "oturum", ID: id}
		}
		return nil, err
	}
	return &session, nil
}

// Open: Yeni oturum açar. Aynı veznede açık/askıda oturum varsa ConflictError.
// Kaynak kasa verildiyse açılış tutarı o kasadan çekilir; böylece aynı para iki
// oturuma birden sayılamaz.
func (s *Service) Open(cmd OpenSessionCommand) (*models.RegisterSession, error) {
	if cmd.OpeningAmount < 0 {
		return nil, &ledger.ValidationError{Reason: "açılış tutarı negatif olamaz"}
	}

	var register models.CashRegister
	if err := s.db.First(&register, "id = ?", cmd.RegisterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ledger.NotFoundError{Entity: "vezne", ID: cmd.RegisterID}
		}
		return nil, err
	}
	if !register.IsActive {
		return nil, &ledger.StateError{Entity: "vezne", ID: register.ID, Reason: "vezne pasif durumda"}
	}

	var session models.RegisterSession
	err := s.db.Transaction(func(tx *gorm.DB) error {
		session = models.RegisterSession{
			CashRegisterID: cmd.RegisterID,
			OperatorID:     cmd.OperatorID,
			OpenedByID:     cmd.OpenedByID,
			SourceVaultID:  cmd.SourceVaultID,
			OpeningAmount:  cmd.OpeningAmount,
			Status:         models.SessionStatusOpen,
			OpenNotes:      cmd.Notes,
			OpenedAt:       time.Now(),
		}
		if err := tx.Create(&session).Error; err != nil {
			// Yarışan ikinci açılış partial unique index'e takılır
			if isUniqueViolation(err) {
				return &ledger.ConflictError{Entity: "vezne", Reason: "bu veznede zaten açık veya askıda bir oturum var"}
			}
			return err
		}

		if cmd.SourceVaultID != nil && cmd.OpeningAmount > 0 {
			// Pasif kasadan açılış parası çekilemez
			if _, err := vault.ActiveVault(tx, *cmd.SourceVaultID); err != nil {
				return err
			}
			if err := vault.ApplyDebit(tx, *cmd.SourceVaultID, cmd.OpeningAmount); err != nil {
				return err
			}
			vtx := models.VaultTransaction{
				VaultID:     *cmd.SourceVaultID,
				UserID:      cmd.OpenedByID,
				Type:        models.VaultTxWithdraw,
				Amount:      cmd.OpeningAmount,
				Status:      models.VaultTxCompleted,
				SessionID:   &session.ID,
				Description: "Vezne oturumu açılış parası",
			}
			if err := tx.Create(&vtx).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Suspend: Oturumu askıya alır (mola / devir arası). Sadece open iken geçerli.
func (s *Service) Suspend(sessionID uint) (*models.RegisterSession, error) {
	return s.transition(sessionID, models.SessionStatusOpen, models.SessionStatusSuspended,
		"sadece açık oturum askıya alınabilir")
}

// Resume: Askıdaki oturumu devam ettirir.
func (s *Service) Resume(sessionID uint) (*models.RegisterSession, error) {
	return s.transition(sessionID, models.SessionStatusSuspended, models.SessionStatusOpen,
		"sadece askıdaki oturum devam ettirilebilir")
}

// transition: Koşullu UPDATE ile durum geçişi. Yarışan ikinci yazar
// RowsAffected=0 ile StateError alır, sessizce ezmez.
func (s *Service) transition(sessionID uint, from, to models.SessionStatus, reason string) (*models.RegisterSession, error) {
	res := s.db.Model(&models.RegisterSession{}).
		Where("id = ? AND status = ?", sessionID, from).
		Update("status", to)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		session, err := s.getSession(s.db, sessionID)
		if err != nil {
			return nil, err
		}
		return nil, &ledger.StateError{Entity: "oturum", ID: session.ID, Reason: reason}
	}
	return s.getSession(s.db, sessionID)
}

// Close: Oturumu kapatır ve sayım mutabakatını yapar.
// counted_total kupürlerden hesaplanır, variance = counted_total - expected.
// Beklenen tutar bildirilmediyse variance boş bırakılır: closing_amount
// veznedarın beyanıdır, sayımla karşılaştırılacak bir beklenti değildir.
// Hedef kasa verildiyse kupür sayımı varsa counted_total, yoksa closing_amount
// kadar tamamlanmış bir deposit oluşturulur (tutarlı tek kural).
func (s *Service) Close(cmd CloseSessionCommand) (*models.RegisterSession, error) {
	for _, d := range cmd.Denominations {
		if d.FaceValue < 0 {
			return nil, &ledger.ValidationError{Reason: "kupür değeri negatif olamaz"}
		}
		if d.Quantity < 0 {
			return nil, &ledger.ValidationError{Reason: "kupür adedi negatif olamaz"}
		}
		if d.Kind != models.DenominationCoin && d.Kind != models.DenominationNote {
			return nil, &ledger.ValidationError{Reason: "kupür tipi 'coin' veya 'note' olmalı"}
		}
	}

	var session *models.RegisterSession
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.getSession(tx, cmd.SessionID)
		if err != nil {
			return err
		}

		// Koşullu geçiş: kapalı oturumu ikinci kez kapatmaya çalışan StateError alır
		res := tx.Model(&models.RegisterSession{}).
			Where("id = ? AND status IN ?", cmd.SessionID,
				[]models.SessionStatus{models.SessionStatusOpen, models.SessionStatusSuspended}).
			Update("status", models.SessionStatusClosed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &ledger.StateError{Entity: "oturum", ID: cmd.SessionID, Reason: "oturum zaten kapalı"}
		}

		var countedTotal *float64
		if len(cmd.Denominations) > 0 {
			total := 0.0
			for _, d := range cmd.Denominations {
				total += d.FaceValue * float64(d.Quantity)
				row := models.SessionDenomination{
					SessionID: cmd.SessionID,
					Kind:      d.Kind,
					FaceValue: d.FaceValue,
					Quantity:  d.Quantity,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
			countedTotal = &total
		}

		// Variance sadece sayım + beklenti birlikte varsa anlamlı; beyan
		// (closing_amount) beklenti yerine geçmez
		var variance *float64
		if countedTotal != nil && cmd.ExpectedClosing != nil {
			v := *countedTotal - *cmd.ExpectedClosing
			variance = &v
		}

		now := time.Now()
		updates := map[string]interface{}{
			"closing_amount":   cmd.ClosingAmount,
			"expected_closing": cmd.ExpectedClosing,
			"counted_total":    countedTotal,
			"variance":         variance,
			"dest_vault_id":    cmd.DestVaultID,
			"close_notes":      cmd.Notes,
			"closed_at":        now,
		}
		if err := tx.Model(&models.RegisterSession{}).Where("id = ?", cmd.SessionID).
			Updates(updates).Error; err != nil {
			return err
		}

		if cmd.DestVaultID != nil {
			depositAmount := 0.0
			if countedTotal != nil {
				depositAmount = *countedTotal
			} else if cmd.ClosingAmount != nil {
				depositAmount = *cmd.ClosingAmount
			}
			if depositAmount <= 0 {
				return &ledger.ValidationError{Reason: "hedef kasaya yatırılacak tutar belirlenemedi"}
			}
			// Pasif kasaya kapanış parası yatırılamaz
			if _, err := vault.ActiveVault(tx, *cmd.DestVaultID); err != nil {
				return err
			}

			vtx := models.VaultTransaction{
				VaultID:     *cmd.DestVaultID,
				UserID:      cmd.ActorID,
				Type:        models.VaultTxDeposit,
				Amount:      depositAmount,
				Status:      models.VaultTxCompleted,
				SessionID:   &cmd.SessionID,
				Description: "Vezne oturumu kapanış parası",
			}
			if err := tx.Create(&vtx).Error; err != nil {
				return err
			}
			if err := vault.ApplyCredit(tx, *cmd.DestVaultID, depositAmount); err != nil {
				return err
			}
		}

		session, err = s.getSession(tx, cmd.SessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Delete: Sadece açık/askıda ve üzerine tamamlanmış hareket işlenmemiş oturum
// silinebilir; aksi halde ConflictError.
func (s *Service) Delete(sessionID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		session, err := s.getSession(tx, sessionID)
		if err != nil {
			return err
		}

		if session.Status == models.SessionStatusClosed {
			return &ledger.ConflictError{Entity: "oturum", Reason: "kapalı oturum silinemez"}
		}

		var count int64
		if err := tx.Model(&models.VaultTransaction{}).
			Where("session_id = ? AND status = ?", sessionID, models.VaultTxCompleted).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &ledger.ConflictError{Entity: "oturum", Reason: "oturuma işlenmiş kasa hareketleri var, silinemez"}
		}

		return tx.Delete(&models.RegisterSession{}, "id = ?", sessionID).Error
	})
}

func (s *Service) Get(sessionID uint) (*models.RegisterSession, error) {
	var session models.RegisterSession
	if err := s.db.Preload("Denominations").First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ledger.NotFoundError{Entity: "oturum", ID: sessionID}
		}
		return nil, err
	}
	return &session, nil
}

type SessionFilter struct {
	RegisterID *uint
	OperatorID *uint
	Status     models.SessionStatus
	From       *time.Time
	To         *time.Time
}

func (s *Service) List(f SessionFilter) ([]models.RegisterSession, error) {
	dbq := s.db.Model(&models.RegisterSession{})

	if f.RegisterID != nil {
		dbq = dbq.Where("cash_register_id = ?", *f.RegisterID)
	}
	if f.OperatorID != nil {
		dbq = dbq.Where("operator_id = ?", *f.OperatorID)
	}
	if f.Status != "" {
		dbq = dbq.Where("status = ?", f.Status)
	}
	if f.From != nil {
		dbq = dbq.Where("opened_at >= ?", *f.From)
	}
	if f.To != nil {
		dbq = dbq.Where("opened_at <= ?", *f.To)
	}

	var sessions []models.RegisterSession
	if err := dbq.Order("opened_at asc, id asc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// ActiveSession: Veznenin açık/askıda oturumu (yoksa nil).
func (s *Service) ActiveSession(registerID uint) (*models.RegisterSession, error) {
	var session models.RegisterSession
	err := s.db.Where("cash_register_id = ? AND status IN ?", registerID,
		[]models.SessionStatus{models.SessionStatusOpen, models.SessionStatusSuspended}).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}
