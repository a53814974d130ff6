package settlement

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

type CreateRequestBody struct {
	BillableItemID uint                 `json:"billable_item_id"`
	ApproverID     uint                 `json:"approver_id"`
	Amount         float64              `json:"amount"`
	Method         models.PaymentMethod `json:"method"`
	Notes          string               `json:"notes"`
	TargetVaultID  *uint                `json:"target_vault_id"`
	// Dosya içeriği dosya servisinde durur; burada sadece referans
	AttachmentPath string `json:"attachment_path"`
	AttachmentName string `json:"attachment_name"`
	AttachmentMime string `json:"attachment_mime"`
	AttachmentSize int64  `json:"attachment_size"`
}

type ResolveBody struct {
	Notes string `json:"notes"`
}

type SendBackBody struct {
	CorrectedAmount *float64 `json:"corrected_amount"`
	Notes           string   `json:"notes"`
}

type RequestResponse struct {
	ID                     uint     `json:"id"`
	ReferenceNo            string   `json:"reference_no"`
	FinancialTransactionID uint     `json:"financial_transaction_id"`
	RequesterID            uint     `json:"requester_id"`
	ApproverID             uint     `json:"approver_id"`
	Amount                 float64  `json:"amount"`
	CorrectedAmount        *float64 `json:"corrected_amount"`
	Method                 string   `json:"method"`
	Status                 string   `json:"status"`
	Notes                  string   `json:"notes"`
	ResolutionNotes        string   `json:"resolution_notes"`
	AttachmentName         string   `json:"attachment_name"`
	RequestedAt            string   `json:"requested_at"`
	ResolvedAt             *string  `json:"resolved_at"`
}

func toRequestResponse(r *models.SettlementRequest) RequestResponse {
	var resolvedAt *string
	if r.ResolvedAt != nil {
		formatted := r.ResolvedAt.Format("2006-01-02 15:04:05")
		resolvedAt = &formatted
	}
	return RequestResponse{
		ID:                     r.ID,
		ReferenceNo:            r.ReferenceNo,
		FinancialTransactionID: r.FinancialTransactionID,
		RequesterID:            r.RequesterID,
		ApproverID:             r.ApproverID,
		Amount:                 r.Amount,
		CorrectedAmount:        r.CorrectedAmount,
		Method:                 string(r.Method),
		Status:                 string(r.Status),
		Notes:                  r.Notes,
		ResolutionNotes:        r.ResolutionNotes,
		AttachmentName:         r.AttachmentName,
		RequestedAt:            r.RequestedAt.Format("2006-01-02 15:04:05"),
		ResolvedAt:             resolvedAt,
	}
}

func parseIDParam(c *fiber.Ctx) (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Geçersiz ID")
	}
	return id, nil
}

func writeAudit(c *fiber.Ctx, entityID uint, action models.AuditAction, desc string, after any) {
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
		EntityType:  "settlement_request",
		EntityID:    entityID,
		Action:      action,
		Description: desc,
		After:       after,
	})
}

// POST /api/settlements
func CreateRequestHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateRequestBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if body.BillableItemID == 0 || body.ApproverID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "billable_item_id ve approver_id zorunlu")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		cmd := RequestCommand{
			BillableItemID: body.BillableItemID,
			RequesterID:    actorID,
			ApproverID:     body.ApproverID,
			Amount:         body.Amount,
			Method:         body.Method,
			Notes:          body.Notes,
			TargetVaultID:  body.TargetVaultID,
		}
		if body.AttachmentPath != "" {
			cmd.Attachment = &Attachment{
				Path: body.AttachmentPath,
				Name: body.AttachmentName,
				Mime: body.AttachmentMime,
				Size: body.AttachmentSize,
			}
		}

		req, err := svc.Request(cmd)
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, req.ID, models.AuditActionCreate,
			fmt.Sprintf("Tahsilat onayı talep edildi: %.2f TL (%s)", req.Amount, req.Method), req)

		return c.Status(fiber.StatusCreated).JSON(toRequestResponse(req))
	}
}

// POST /api/settlements/:id/approve
func ApproveHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body ResolveBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		req, err := svc.Approve(id, actorID, body.Notes)
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, req.ID, models.AuditActionUpdate,
			fmt.Sprintf("Tahsilat onaylandı: %.2f TL", req.Amount), req)

		return c.JSON(toRequestResponse(req))
	}
}

// POST /api/settlements/:id/reject
func RejectHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body ResolveBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if body.Notes == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Ret gerekçesi zorunlu")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		req, err := svc.Reject(id, actorID, body.Notes)
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, req.ID, models.AuditActionUpdate, "Tahsilat reddedildi", req)

		return c.JSON(toRequestResponse(req))
	}
}

// POST /api/settlements/:id/send-back
func SendBackHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body SendBackBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		req, err := svc.SendBack(id, actorID, body.CorrectedAmount, body.Notes)
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, req.ID, models.AuditActionUpdate, "Tahsilat düzeltme için iade edildi", req)

		return c.JSON(toRequestResponse(req))
	}
}

// GET /api/settlements/:id
func GetRequestHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		req, err := svc.Get(id)
		if err != nil {
			return ledger.ToFiberError(err)
		}
		return c.JSON(toRequestResponse(req))
	}
}

// GET /api/settlements?status=pending&approver_id=2&from=2026-01-01
func ListRequestsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filter := RequestFilter{
			Status: models.SettlementStatus(c.Query("status")),
			Method: models.PaymentMethod(c.Query("method")),
		}

		if aidStr := c.Query("approver_id"); aidStr != "" {
			var aid uint
			if _, err := fmt.Sscan(aidStr, &aid); err != nil || aid == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "approver_id geçersiz")
			}
			filter.ApproverID = &aid
		}
		if ridStr := c.Query("requester_id"); ridStr != "" {
			var rid uint
			if _, err := fmt.Sscan(ridStr, &rid); err != nil || rid == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "requester_id geçersiz")
			}
			filter.RequesterID = &rid
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

		reqs, err := svc.List(filter)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Talepler listelenemedi")
		}

		resp := make([]RequestResponse, 0, len(reqs))
		for i := range reqs {
			resp = append(resp, toRequestResponse(&reqs[i]))
		}
		return c.JSON(resp)
	}
}
