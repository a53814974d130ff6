package register

import (
	"fmt"

	"klinik-backend/internal/auth"
	"klinik-backend/internal/ledger"
	"klinik-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type InitiateTransferRequest struct {
	FromSessionID uint    `json:"from_session_id"`
	ToUserID      uint    `json:"to_user_id"`
	Amount        float64 `json:"amount"`
	Notes         string  `json:"notes"`
}

type AcceptTransferRequest struct {
	Token          string   `json:"token"`
	AmountReceived *float64 `json:"amount_received"`
}

type RejectTransferRequest struct {
	Reason string `json:"reason"`
}

type TransferResponse struct {
	ID             uint     `json:"id"`
	RegisterID     uint     `json:"register_id"`
	FromSessionID  uint     `json:"from_session_id"`
	FromUserID     uint     `json:"from_user_id"`
	ToUserID       uint     `json:"to_user_id"`
	ToSessionID    *uint    `json:"to_session_id"`
	AmountSent     float64  `json:"amount_sent"`
	AmountReceived *float64 `json:"amount_received"`
	Status         string   `json:"status"`
	Notes          string   `json:"notes"`
	ExpiresAt      string   `json:"expires_at"`
	ResolvedAt     *string  `json:"resolved_at"`
	CreatedAt      string   `json:"created_at"`
	// Token sadece oluşturma cevabında döner; listelerde boş
	Token string `json:"token,omitempty"`
}

func toTransferResponse(t *models.RegisterTransfer, includeToken bool) TransferResponse {
	var resolvedAt *string
	if t.ResolvedAt != nil {
		formatted := t.ResolvedAt.Format("2006-01-02 15:04:05")
		resolvedAt = &formatted
	}
	resp := TransferResponse{
		ID:             t.ID,
		RegisterID:     t.CashRegisterID,
		FromSessionID:  t.FromSessionID,
		FromUserID:     t.FromUserID,
		ToUserID:       t.ToUserID,
		ToSessionID:    t.ToSessionID,
		AmountSent:     t.AmountSent,
		AmountReceived: t.AmountReceived,
		Status:         string(t.Status),
		Notes:          t.Notes,
		ExpiresAt:      t.ExpiresAt.Format("2006-01-02 15:04:05"),
		ResolvedAt:     resolvedAt,
		CreatedAt:      t.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if includeToken {
		resp.Token = t.TransferToken
	}
	return resp
}

// POST /api/transfers
func InitiateTransferHandler(svc *TransferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body InitiateTransferRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if body.FromSessionID == 0 || body.ToUserID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "from_session_id ve to_user_id zorunlu")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		transfer, err := svc.Initiate(InitiateTransferCommand{
			FromSessionID: body.FromSessionID,
			ActorID:       actorID,
			ToUserID:      body.ToUserID,
			Amount:        body.Amount,
			Notes:         body.Notes,
		})
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, "register_transfer", transfer.ID, models.AuditActionCreate,
			fmt.Sprintf("Devir başlatıldı: %.2f TL -> kullanıcı #%d", transfer.AmountSent, transfer.ToUserID), nil, transfer)

		// Token devralana iletilmek üzere sadece burada döner
		return c.Status(fiber.StatusCreated).JSON(toTransferResponse(transfer, true))
	}
}

// POST /api/transfers/:id/accept
func AcceptTransferHandler(svc *TransferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body AcceptTransferRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if body.Token == "" {
			return fiber.NewError(fiber.StatusBadRequest, "token zorunlu")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		transfer, err := svc.Accept(AcceptTransferCommand{
			TransferID:     id,
			Token:          body.Token,
			ActorID:        actorID,
			AmountReceived: body.AmountReceived,
		})
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, "register_transfer", transfer.ID, models.AuditActionUpdate,
			fmt.Sprintf("Devir kabul edildi: %.2f TL", *transfer.AmountReceived), nil, transfer)

		return c.JSON(toTransferResponse(transfer, false))
	}
}

// POST /api/transfers/:id/reject
func RejectTransferHandler(svc *TransferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body RejectTransferRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		transfer, err := svc.Reject(id, actorID, body.Reason)
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, "register_transfer", transfer.ID, models.AuditActionUpdate, "Devir reddedildi", nil, transfer)

		return c.JSON(toTransferResponse(transfer, false))
	}
}

// GET /api/transfers?register_id=1&status=pending&to_user_id=3
func ListTransfersHandler(svc *TransferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filter := TransferFilter{
			Status: models.TransferStatus(c.Query("status")),
		}

		if ridStr := c.Query("register_id"); ridStr != "" {
			var rid uint
			if _, err := fmt.Sscan(ridStr, &rid); err != nil || rid == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "register_id geçersiz")
			}
			filter.RegisterID = &rid
		}
		if uidStr := c.Query("to_user_id"); uidStr != "" {
			var uid uint
			if _, err := fmt.Sscan(uidStr, &uid); err != nil || uid == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "to_user_id geçersiz")
			}
			filter.ToUserID = &uid
		}
		if uidStr := c.Query("from_user_id"); uidStr != "" {
			var uid uint
			if _, err := fmt.Sscan(uidStr, &uid); err != nil || uid == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "from_user_id geçersiz")
			}
			filter.FromUserID = &uid
		}

		transfers, err := svc.List(filter)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Devirler listelenemedi")
		}

		resp := make([]TransferResponse, 0, len(transfers))
		for i := range transfers {
			resp = append(resp, toTransferResponse(&transfers[i], false))
		}
		return c.JSON(resp)
	}
}
