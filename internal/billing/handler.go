package billing

import (
	"fmt"

	"klinik-backend/internal/database"
	"klinik-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateItemRequest struct {
	PatientRef  string  `json:"patient_ref"`
	Description string  `json:"description"`
	TotalAmount float64 `json:"total_amount"`
}

type ItemResponse struct {
	ID              uint    `json:"id"`
	PatientRef      string  `json:"patient_ref"`
	Description     string  `json:"description"`
	TotalAmount     float64 `json:"total_amount"`
	PaidAmount      float64 `json:"paid_amount"`
	RemainingAmount float64 `json:"remaining_amount"`
	PaymentStatus   string  `json:"payment_status"`
	CreatedAt       string  `json:"created_at"`
}

func toItemResponse(b *models.BillableItem) ItemResponse {
	return ItemResponse{
		ID:              b.ID,
		PatientRef:      b.PatientRef,
		Description:     b.Description,
		TotalAmount:     b.TotalAmount,
		PaidAmount:      b.PaidAmount,
		RemainingAmount: b.RemainingAmount,
		PaymentStatus:   string(b.PaymentStatus),
		CreatedAt:       b.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// POST /api/billable-items
func CreateItemHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateItemRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if body.Description == "" {
			return fiber.NewError(fiber.StatusBadRequest, "description zorunlu")
		}
		if body.TotalAmount <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "total_amount 0'dan büyük olmalı")
		}

		item := models.BillableItem{
			PatientRef:      body.PatientRef,
			Description:     body.Description,
			TotalAmount:     body.TotalAmount,
			PaidAmount:      0,
			RemainingAmount: body.TotalAmount,
			PaymentStatus:   models.PaymentStatusUnpaid,
		}

		if err := database.DB.Create(&item).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Fatura kalemi oluşturulamadı")
		}

		return c.Status(fiber.StatusCreated).JSON(toItemResponse(&item))
	}
}

// GET /api/billable-items/:id
func GetItemHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id uint
		if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz ID")
		}

		var item models.BillableItem
		if err := database.DB.First(&item, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Fatura kalemi bulunamadı")
		}
		return c.JSON(toItemResponse(&item))
	}
}

// GET /api/billable-items?patient_ref=H-1021&payment_status=partial
func ListItemsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.BillableItem{})

		if ref := c.Query("patient_ref"); ref != "" {
			dbq = dbq.Where("patient_ref = ?", ref)
		}
		if status := c.Query("payment_status"); status != "" {
			dbq = dbq.Where("payment_status = ?", status)
		}

		var items []models.BillableItem
		if err := dbq.Order("created_at desc, id desc").Find(&items).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Fatura kalemleri listelenemedi")
		}

		resp := make([]ItemResponse, 0, len(items))
		for i := range items {
			resp = append(resp, toItemResponse(&items[i]))
		}
		return c.JSON(resp)
	}
}

// GET /api/billable-items/:id/transactions - kalemin tahsilat geçmişi
func ListItemTransactionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id uint
		if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz ID")
		}

		var txs []models.FinancialTransaction
		if err := database.DB.Where("billable_item_id = ?", id).
			Order("created_at asc, id asc").Find(&txs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Tahsilatlar listelenemedi")
		}

		type txResponse struct {
			ID         uint    `json:"id"`
			Amount     float64 `json:"amount"`
			Method     string  `json:"method"`
			Status     string  `json:"status"`
			CashierID  uint    `json:"cashier_id"`
			ApproverID *uint   `json:"approver_id"`
			Notes      string  `json:"notes"`
			CreatedAt  string  `json:"created_at"`
		}

		resp := make([]txResponse, 0, len(txs))
		for _, t := range txs {
			resp = append(resp, txResponse{
				ID:         t.ID,
				Amount:     t.Amount,
				Method:     string(t.Method),
				Status:     string(t.Status),
				CashierID:  t.CashierID,
				ApproverID: t.ApproverID,
				Notes:      t.Notes,
				CreatedAt:  t.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return c.JSON(resp)
	}
}
