package dashboard

import (
	"fmt"
	"time"

	"klinik-backend/internal/auth"
	"klinik-backend/internal/database"
	"klinik-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// context'ten birim id çıkar (admin için ?department_id opsiyonel, diğer roller JWT'den)
func resolveDepartmentID(c *fiber.Ctx) (*uint, error) {
	roleVal := c.Locals(auth.CtxUserRoleKey)
	role, ok := roleVal.(models.UserRole)
	if !ok {
		return nil, fiber.NewError(fiber.StatusForbidden, "Rol bilgisi alınamadı")
	}

	if role == models.RoleAdmin {
		didStr := c.Query("department_id")
		if didStr == "" {
			return nil, nil // tüm birimler
		}
		var did uint
		if _, err := fmt.Sscan(didStr, &did); err != nil || did == 0 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "department_id geçersiz")
		}
		return &did, nil
	}

	dVal := c.Locals(auth.CtxDepartmentIDKey)
	dPtr, ok := dVal.(*uint)
	if !ok || dPtr == nil {
		return nil, fiber.NewError(fiber.StatusForbidden, "Birim bilgisi bulunamadı")
	}
	return dPtr, nil
}

func parseDateRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "from ve to tarihleri zorunlu (YYYY-MM-DD)")
	}

	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "from tarihi geçersiz")
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "to tarihi geçersiz")
	}
	return from, to.AddDate(0, 0, 1), nil
}

type SessionSummaryResponse struct {
	From          string             `json:"from"`
	To            string             `json:"to"`
	OpenCount     int                `json:"open_count"`
	ClosedCount   int                `json:"closed_count"`
	TotalOpening  float64            `json:"total_opening"`
	TotalCounted  float64            `json:"total_counted"`
	TotalVariance float64            `json:"total_variance"`
	ByRegister    []RegisterActivity `json:"by_register"`
}

type RegisterActivity struct {
	CashRegisterID uint    `json:"cash_register_id"`
	RegisterName   string  `json:"register_name"`
	SessionCount   int     `json:"session_count"`
	TotalVariance  float64 `json:"total_variance"`
}

// GET /api/dashboard/sessions?from=2026-01-01&to=2026-01-31&department_id=1
// Vezne oturumlarının dönem özeti: açık/kapalı sayıları ve sayım farkları
func SessionSummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		departmentID, err := resolveDepartmentID(c)
		if err != nil {
			return err
		}
		from, end, err := parseDateRange(c)
		if err != nil {
			return err
		}

		dbq := database.DB.Model(&models.RegisterSession{}).
			Joins("JOIN cash_registers ON cash_registers.id = register_sessions.cash_register_id").
			Where("register_sessions.opened_at >= ? AND register_sessions.opened_at < ?", from, end)
		if departmentID != nil {
			dbq = dbq.Where("cash_registers.department_id = ?", *departmentID)
		}

		var sessions []models.RegisterSession
		if err := dbq.Preload("CashRegister").Find(&sessions).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Veri toplanırken hata oluştu")
		}

		resp := SessionSummaryResponse{
			From: from.Format("2006-01-02"),
			To:   end.AddDate(0, 0, -1).Format("2006-01-02"),
		}

		perRegister := make(map[uint]*RegisterActivity)
		for _, s := range sessions {
			if s.Status == models.SessionStatusClosed {
				resp.ClosedCount++
			} else {
				resp.OpenCount++
			}
			resp.TotalOpening += s.OpeningAmount
			if s.CountedTotal != nil {
				resp.TotalCounted += *s.CountedTotal
			}
			variance := 0.0
			if s.Variance != nil {
				variance = *s.Variance
			}
			resp.TotalVariance += variance

			agg, ok := perRegister[s.CashRegisterID]
			if !ok {
				agg = &RegisterActivity{
					CashRegisterID: s.CashRegisterID,
					RegisterName:   s.CashRegister.Name,
				}
				perRegister[s.CashRegisterID] = agg
			}
			agg.SessionCount++
			agg.TotalVariance += variance
		}

		resp.ByRegister = make([]RegisterActivity, 0, len(perRegister))
		for _, agg := range perRegister {
			resp.ByRegister = append(resp.ByRegister, *agg)
		}
		// kayıt sırası deterministik olsun
		for i := 0; i < len(resp.ByRegister); i++ {
			for j := i + 1; j < len(resp.ByRegister); j++ {
				if resp.ByRegister[j].CashRegisterID < resp.ByRegister[i].CashRegisterID {
					resp.ByRegister[i], resp.ByRegister[j] = resp.ByRegister[j], resp.ByRegister[i]
				}
			}
		}

		return c.JSON(resp)
	}
}

type VaultFlowPoint struct {
	Label       string  `json:"label"`
	Deposits    float64 `json:"deposits"`
	Withdrawals float64 `json:"withdrawals"`
	TransferIn  float64 `json:"transfer_in"`
	TransferOut float64 `json:"transfer_out"`
	Net         float64 `json:"net"`
}

type VaultFlowResponse struct {
	VaultID uint             `json:"vault_id"`
	From    string           `json:"from"`
	To      string           `json:"to"`
	Points  []VaultFlowPoint `json:"points"`
	Totals  VaultFlowPoint   `json:"totals"`
}

// GET /api/dashboard/vault-flow?vault_id=1&from=2026-01-01&to=2026-01-31
// Kasanın günlük giriş/çıkış akışı
func VaultFlowHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var vaultID uint
		if _, err := fmt.Sscan(c.Query("vault_id"), &vaultID); err != nil || vaultID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "vault_id zorunlu")
		}
		from, end, err := parseDateRange(c)
		if err != nil {
			return err
		}

		var txs []models.VaultTransaction
		if err := database.DB.
			Where("vault_id = ? AND status = ? AND created_at >= ? AND created_at < ?",
				vaultID, models.VaultTxCompleted, from, end).
			Order("created_at asc, id asc").Find(&txs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Veri toplanırken hata oluştu")
		}

		// gün bazlı toplama
		buckets := make(map[string]*VaultFlowPoint)
		current := from
		for current.Before(end) {
			label := current.Format("2006-01-02")
			buckets[label] = &VaultFlowPoint{Label: label}
			current = current.AddDate(0, 0, 1)
		}

		totals := VaultFlowPoint{Label: "total"}
		for _, tx := range txs {
			point, ok := buckets[tx.CreatedAt.Format("2006-01-02")]
			if !ok {
				continue
			}
			switch tx.Type {
			case models.VaultTxDeposit:
				point.Deposits += tx.Amount
				totals.Deposits += tx.Amount
			case models.VaultTxWithdraw:
				point.Withdrawals += tx.Amount
				totals.Withdrawals += tx.Amount
			case models.VaultTxTransferIn:
				point.TransferIn += tx.Amount
				totals.TransferIn += tx.Amount
			case models.VaultTxTransferOut:
				point.TransferOut += tx.Amount
				totals.TransferOut += tx.Amount
			}
		}

		ordered := make([]VaultFlowPoint, 0, len(buckets))
		current = from
		for current.Before(end) {
			point := buckets[current.Format("2006-01-02")]
			point.Net = point.Deposits + point.TransferIn - point.Withdrawals - point.TransferOut
			ordered = append(ordered, *point)
			current = current.AddDate(0, 0, 1)
		}
		totals.Net = totals.Deposits + totals.TransferIn - totals.Withdrawals - totals.TransferOut

		return c.JSON(VaultFlowResponse{
			VaultID: vaultID,
			From:    from.Format("2006-01-02"),
			To:      end.AddDate(0, 0, -1).Format("2006-01-02"),
			Points:  ordered,
			Totals:  totals,
		})
	}
}

type SettlementSummaryResponse struct {
	From           string  `json:"from"`
	To             string  `json:"to"`
	PendingCount   int     `json:"pending_count"`
	ApprovedCount  int     `json:"approved_count"`
	RejectedCount  int     `json:"rejected_count"`
	SentBackCount  int     `json:"sent_back_count"`
	PendingAmount  float64 `json:"pending_amount"`
	ApprovedAmount float64 `json:"approved_amount"`
}

// GET /api/dashboard/settlements?from=2026-01-01&to=2026-01-31
// Onay kuyruğunun dönem özeti
func SettlementSummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, end, err := parseDateRange(c)
		if err != nil {
			return err
		}

		var reqs []models.SettlementRequest
		if err := database.DB.
			Where("requested_at >= ? AND requested_at < ?", from, end).
			Find(&reqs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Veri toplanırken hata oluştu")
		}

		resp := SettlementSummaryResponse{
			From: from.Format("2006-01-02"),
			To:   end.AddDate(0, 0, -1).Format("2006-01-02"),
		}
		for _, r := range reqs {
			switch r.Status {
			case models.SettlementStatusPending:
				resp.PendingCount++
				resp.PendingAmount += r.Amount
			case models.SettlementStatusApproved:
				resp.ApprovedCount++
				amount := r.Amount
				if r.CorrectedAmount != nil {
					amount = *r.CorrectedAmount
				}
				resp.ApprovedAmount += amount
			case models.SettlementStatusRejected:
				resp.RejectedCount++
			case models.SettlementStatusSentBack:
				resp.SentBackCount++
			}
		}

		return c.JSON(resp)
	}
}
