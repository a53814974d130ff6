package vault

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

type CreateVaultRequest struct {
	Name        string  `json:"name"`
	Location    string  `json:"location"`
	CustodianID uint    `json:"custodian_id"`
	Balance     float64 `json:"balance"` // açılış bakiyesi (devir)
}

type UpdateVaultRequest struct {
	Name        *string `json:"name"`
	Location    *string `json:"location"`
	CustodianID *uint   `json:"custodian_id"`
	IsActive    *bool   `json:"is_active"`
}

type VaultResponse struct {
	ID             uint    `json:"id"`
	Name           string  `json:"name"`
	Location       string  `json:"location"`
	CurrentBalance float64 `json:"current_balance"`
	CustodianID    uint    `json:"custodian_id"`
	IsActive       bool    `json:"is_active"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type MovementRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Reference   string  `json:"reference"`
}

type TransferRequest struct {
	DestVaultID uint    `json:"dest_vault_id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

type TransactionResponse struct {
	ID                  uint    `json:"id"`
	VaultID             uint    `json:"vault_id"`
	UserID              uint    `json:"user_id"`
	Type                string  `json:"type"`
	Amount              float64 `json:"amount"`
	Status              string  `json:"status"`
	CounterpartyVaultID *uint   `json:"counterparty_vault_id"`
	SessionID           *uint   `json:"session_id"`
	Description         string  `json:"description"`
	Reference           string  `json:"reference"`
	CreatedAt           string  `json:"created_at"`
}

func toVaultResponse(v *models.Vault) VaultResponse {
	return VaultResponse{
		ID:             v.ID,
		Name:           v.Name,
		Location:       v.Location,
		CurrentBalance: v.CurrentBalance,
		CustodianID:    v.CustodianID,
		IsActive:       v.IsActive,
		CreatedAt:      v.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:      v.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toTransactionResponse(t *models.VaultTransaction) TransactionResponse {
	return TransactionResponse{
		ID:                  t.ID,
		VaultID:             t.VaultID,
		UserID:              t.UserID,
		Type:                string(t.Type),
		Amount:              t.Amount,
		Status:              string(t.Status),
		CounterpartyVaultID: t.CounterpartyVaultID,
		SessionID:           t.SessionID,
		Description:         t.Description,
		Reference:           t.Reference,
		CreatedAt:           t.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func parseIDParam(c *fiber.Ctx) (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Geçersiz ID")
	}
	return id, nil
}

func writeAudit(c *fiber.Ctx, entityID uint, action models.AuditAction, desc string, before, after any) {
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
		EntityType:  "vault",
		EntityID:    entityID,
		Action:      action,
		Description: desc,
		Before:      before,
		After:       after,
	})
}

// POST /api/admin/vaults
func CreateVaultHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateVaultRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name zorunlu")
		}
		if body.Balance < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Açılış bakiyesi negatif olamaz")
		}
		if body.CustodianID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "custodian_id zorunlu")
		}

		var custodian models.User
		if err := database.DB.First(&custodian, "id = ?", body.CustodianID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Sorumlu kullanıcı bulunamadı")
		}

		vault := models.Vault{
			Name:           body.Name,
			Location:       body.Location,
			CurrentBalance: 0,
			CustodianID:    body.CustodianID,
			IsActive:       true,
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		if err := database.DB.Create(&vault).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Kasa oluşturulamadı")
		}

		// Açılış devri varsa ilk hareket olarak işlenir; bakiye doğrudan yazılmaz
		if body.Balance > 0 {
			svc := NewService(database.DB)
			if _, err := svc.Deposit(DepositCommand{
				VaultID:     vault.ID,
				ActorID:     actorID,
				Amount:      body.Balance,
				Description: "Açılış devri",
			}); err != nil {
				return ledger.ToFiberError(err)
			}
			vault.CurrentBalance = body.Balance
		}

		writeAudit(c, vault.ID, models.AuditActionCreate,
			fmt.Sprintf("Kasa eklendi: %s", vault.Name), nil, vault)

		return c.Status(fiber.StatusCreated).JSON(toVaultResponse(&vault))
	}
}

// GET /api/vaults
func ListVaultsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var vaults []models.Vault
		if err := database.DB.Order("name ASC").Find(&vaults).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Kasalar listelenemedi")
		}

		resp := make([]VaultResponse, 0, len(vaults))
		for i := range vaults {
			resp = append(resp, toVaultResponse(&vaults[i]))
		}
		return c.JSON(resp)
	}
}

// PUT /api/admin/vaults/:id
func UpdateVaultHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var vault models.Vault
		if err := database.DB.First(&vault, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Kasa bulunamadı")
		}

		var body UpdateVaultRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		oldVault := vault

		if body.Name != nil {
			vault.Name = *body.Name
		}
		if body.Location != nil {
			vault.Location = *body.Location
		}
		if body.CustodianID != nil {
			vault.CustodianID = *body.CustodianID
		}
		if body.IsActive != nil {
			vault.IsActive = *body.IsActive
		}

		if err := database.DB.Save(&vault).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Kasa güncellenemedi")
		}

		writeAudit(c, vault.ID, models.AuditActionUpdate,
			fmt.Sprintf("Kasa güncellendi: %s", vault.Name), oldVault, vault)

		return c.JSON(toVaultResponse(&vault))
	}
}

// DELETE /api/admin/vaults/:id
func DeleteVaultHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var vault models.Vault
		if err := database.DB.First(&vault, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Kasa bulunamadı")
		}

		// Hareket kaydı olan kasa silinmez, pasife alınır
		var count int64
		database.DB.Model(&models.VaultTransaction{}).Where("vault_id = ?", id).Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "Bu kasaya ait hareketler var, kasa silinemez; pasife alın")
		}

		if err := database.DB.Delete(&vault).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Kasa silinemedi")
		}

		writeAudit(c, vault.ID, models.AuditActionDelete,
			fmt.Sprintf("Kasa silindi: %s", vault.Name), vault, nil)

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/vaults/:id/deposit
func DepositHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body MovementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		vtx, err := svc.Deposit(DepositCommand{
			VaultID:     id,
			ActorID:     actorID,
			Amount:      body.Amount,
			Description: body.Description,
			Reference:   body.Reference,
		})
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, id, models.AuditActionUpdate,
			fmt.Sprintf("Kasaya para yatırıldı: %.2f TL", body.Amount), nil, vtx)

		return c.Status(fiber.StatusCreated).JSON(toTransactionResponse(vtx))
	}
}

// POST /api/vaults/:id/withdraw
func WithdrawHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body MovementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		vtx, err := svc.Withdraw(WithdrawCommand{
			VaultID:     id,
			ActorID:     actorID,
			Amount:      body.Amount,
			Description: body.Description,
			Reference:   body.Reference,
		})
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, id, models.AuditActionUpdate,
			fmt.Sprintf("Kasadan para çekildi: %.2f TL", body.Amount), nil, vtx)

		return c.Status(fiber.StatusCreated).JSON(toTransactionResponse(vtx))
	}
}

// POST /api/vaults/:id/transfer
func TransferHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body TransferRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		actorID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		out, in, err := svc.TransferBetweenVaults(TransferCommand{
			SourceVaultID: id,
			DestVaultID:   body.DestVaultID,
			ActorID:       actorID,
			Amount:        body.Amount,
			Description:   body.Description,
		})
		if err != nil {
			return ledger.ToFiberError(err)
		}

		writeAudit(c, id, models.AuditActionUpdate,
			fmt.Sprintf("Kasalar arası transfer: %.2f TL -> kasa #%d", body.Amount, body.DestVaultID), nil, out)

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"out": toTransactionResponse(out),
			"in":  toTransactionResponse(in),
		})
	}
}

// GET /api/vaults/:id/transactions?type=deposit&status=completed&from=2026-01-01&to=2026-01-31
func ListTransactionsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		filter := TransactionFilter{
			VaultID: &id,
			Type:    models.VaultTransactionType(c.Query("type")),
			Status:  models.VaultTransactionStatus(c.Query("status")),
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

		txs, err := svc.ListTransactions(filter)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Hareketler listelenemedi")
		}

		resp := make([]TransactionResponse, 0, len(txs))
		for i := range txs {
			resp = append(resp, toTransactionResponse(&txs[i]))
		}
		return c.JSON(resp)
	}
}

// GET /api/vaults/:id/balance - satır bakiyesi ile defter toplamını karşılaştırır
func BalanceCheckHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		current, err := svc.CurrentBalance(id)
		if err != nil {
			return ledger.ToFiberError(err)
		}
		fromLedger, err := svc.LedgerBalance(id)
		if err != nil {
			return ledger.ToFiberError(err)
		}

		return c.JSON(fiber.Map{
			"vault_id":        id,
			"current_balance": current,
			"ledger_balance":  fromLedger,
			"consistent":      current == fromLedger,
		})
	}
}
