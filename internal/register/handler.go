package register

import (
	"fmt"
	"time"

	"klinik-backend/internal/audit"
	"klinik-backend/internal/auth"
	"klinik-backend/internal/database"
	"klinik-backend/internal/ledger"
	"klinik-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type OpenSessionRequest struct {
	RegisterID    uint    `json:"register_id"`
	OperatorID    *uint   `json:"operator_id"` // boşsa açan kişi operatördür
	OpeningAmount float64 `json:"opening_amount"`
	SourceVaultID *uint   `json:"source_vault_id"`
	Notes         string  `json:"notes"`
}

type CloseSessionRequest struct {
	ClosingAmount   *float64            `json:"closing_amount"`
	ExpectedClosing *float64            `json:"expected_closing"`
	DestVaultID     *uint               `json:"dest_vault_id"`
	Denominations   []DenominationInput `json:"denominations"`
	Notes           string              `json:"notes"`
}

type SessionResponse struct {
	ID              uint     `json:"id"`
	RegisterID      uint     `json:"register_id"`
	OperatorID      uint     `json:"operator_id"`
	OpenedByID      uint     `json:"opened_by_id"`
	SourceVaultID   *uint    `json:"source_vault_id"`
	DestVaultID     *uint    `json:"dest_vault_id"`
	OpeningAmount   float64  `json:"opening_amount"`
	ClosingAmount   *float64 `json:"closing_amount"`
	ExpectedClosing *float64 `json:"expected_closing"`
	CountedTotal    *float64 `json:"counted_total"`
	Variance        *float64 `json:"variance"`
	Status          string   `json:"status"`
	OpenNotes       string   `json:"open_notes"`
	CloseNotes      string   `json:"close_notes"`
	OpenedAt        string   `json:"opened_at"`
	ClosedAt        *string  `json:"closed_at"`
}

func toSessionResponse(s *models.RegisterSession) SessionResponse {
	var closedAt *string
	if s.ClosedAt != nil {
		formatted := s.ClosedAt.Format("2006-01-02 15:04:05")
		closedAt = &formatted
	}
	return SessionResponse{
		ID:              s.ID,
		RegisterID:      s.CashRegisterID,
		OperatorID:      s.OperatorID,
		OpenedByID:      s.OpenedByID,
		SourceVaultID:   s.SourceVaultID,
		DestVaultID:     s.DestVaultID,
		OpeningAmount:   s.OpeningAmount,
		ClosingAmount:   s.ClosingAmount,
		ExpectedClosing: s.ExpectedClosing,
		CountedTotal:    s.CountedTotal,
		Variance:        s.Variance,
		Status:          string(s.Status),
		OpenNotes:       s.OpenNotes,
		CloseNotes:      s.CloseNotes,
		OpenedAt:        s.OpenedAt.Format("2006-01-02 15:04:05"),
		ClosedAt:        closedAt,
	}
}

func parseIDParam(c *fiber.Ctx) (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Geçersiz ID")
	}
	return id, nil
}

func writeAudit(c *fiber.Ctx, entityType string, entityID uint, action models.AuditAction, desc string, before, after any) {
	userID, ok := c.Locals(auth.CtxUserIDKey).(uint)
	if !ok {
		return
	}
	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		return
	}
	_ = audit.WriteLog(audit.LogOptions{
		UserID:      userID,
		UserName:    user.Name,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Description: desc,
		Before:      before,
		After:       after,
	})
}

// POST /api/sessions
func OpenSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body OpenSessionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if body.RegisterID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "register_id zorunlu")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		operatorID := actorID
		if body.OperatorID != nil {
			// Zorla açma: admin başka bir veznedar adına oturum açabilir
			role, _ := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
			if *body.OperatorID != actorID && role != models.RoleAdmin {
				return fiber.NewError(fiber.StatusForbidden, "Başkası adına oturumu sadece admin açabilir")
			}
			operatorID = *body.OperatorID
		}

		session, err := svc.Open(OpenSessionCommand{
			RegisterID:    body.RegisterID,
			OperatorID:    operatorID,
			OpenedByID:    actorID,
			OpeningAmount: body.OpeningAmount,
			SourceVaultID: body.SourceVaultID,
			Notes:         body.Notes,
		})
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, "register_session", session.ID, models.AuditActionCreate,
			fmt.Sprintf("Oturum açıldı: vezne #%d, %.2f TL", session.CashRegisterID, session.OpeningAmount), nil, session)

		return c.Status(fiber.StatusCreated).JSON(toSessionResponse(session))
	}
}

// POST /api/sessions/:id/suspend
func SuspendSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		session, err := svc.Suspend(id)
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, "register_session", session.ID, models.AuditActionUpdate, "Oturum askıya alındı", nil, session)

		return c.JSON(toSessionResponse(session))
	}
}

// POST /api/sessions/:id/resume
func ResumeSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		session, err := svc.Resume(id)
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, "register_session", session.ID, models.AuditActionUpdate, "Oturum devam ettirildi", nil, session)

		return c.JSON(toSessionResponse(session))
	}
}

// POST /api/sessions/:id/close
func CloseSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body CloseSessionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		session, err := svc.Close(CloseSessionCommand{
			SessionID:       id,
			ActorID:         actorID,
			ClosingAmount:   body.ClosingAmount,
			ExpectedClosing: body.ExpectedClosing,
			DestVaultID:     body.DestVaultID,
			Denominations:   body.Denominations,
			Notes:           body.Notes,
		})
		if err != nil {
			return ledger.ToFiberError(err)
		}

		desc := fmt.Sprintf("Oturum kapatıldı: vezne #%d", session.CashRegisterID)
		if session.Variance != nil {
			desc = fmt.Sprintf("%s, fark %.2f TL", desc, *session.Variance)
		}
		writeAudit(c, "register_session", session.ID, models.AuditActionUpdate, desc, nil, session)

		return c.JSON(toSessionResponse(session))
	}
}

// DELETE /api/sessions/:id
func DeleteSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		session, err := svc.Get(id)
		if err != nil {
			return ledger.ToFiberError(err)
		}

		if err := svc.Delete(id); err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, "register_session", id, models.AuditActionDelete,
			fmt.Sprintf("Oturum silindi: vezne #%d", session.CashRegisterID), session, nil)

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/sessions/:id
func GetSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		session, err := svc.Get(id)
		if err != nil {
			return ledger.ToFiberError(err)
		}

		resp := struct {
			SessionResponse
			Denominations []DenominationInput `json:"denominations"`
		}{SessionResponse: toSessionResponse(session)}

		for _, d := range session.Denominations {
			resp.Denominations = append(resp.Denominations, DenominationInput{
				Kind:      d.Kind,
				FaceValue: d.FaceValue,
				Quantity:  d.Quantity,
			})
		}

		return c.JSON(resp)
	}
}

// GET /api/sessions?register_id=1&status=open&from=2026-01-01&to=2026-01-31
func ListSessionsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filter := SessionFilter{
			Status: models.SessionStatus(c.Query("status")),
		}

		if ridStr := c.Query("register_id"); ridStr != "" {
			var rid uint
			if _, err := fmt.Sscan(ridStr, &rid); err != nil || rid == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "register_id geçersiz")
			}
			filter.RegisterID = &rid
		}
		if oidStr := c.Query("operator_id"); oidStr != "" {
			var oid uint
			if _, err := fmt.Sscan(oidStr, &oid); err != nil || oid == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "operator_id geçersiz")
			}
			filter.OperatorID = &oid
		}
		if fromStr := c.Query("from"); fromStr != "" {
			from, err := time.Parse("2006-01-02", fromStr)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "from tarihi geçersiz")
			}
			filter.From = &from
		}
		if toStr := c.Query("to"); toStr != "" {
			to, err := time.Parse("2006-01-02", toStr)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "to tarihi geçersiz")
			}
			end := to.AddDate(0, 0, 1)
			filter.To = &end
		}

		sessions, err := svc.List(filter)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Oturumlar listelenemedi")
		}

		resp := make([]SessionResponse, 0, len(sessions))
		for i := range sessions {
			resp = append(resp, toSessionResponse(&sessions[i]))
		}
		return c.JSON(resp)
	}
}
