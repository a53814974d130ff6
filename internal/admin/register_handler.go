package admin

import (
	"fmt"

	"klinik-backend/internal/audit"
	"klinik-backend/internal/database"
	"klinik-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateRegisterRequest struct {
	Name         string `json:"name"`
	DepartmentID uint   `json:"department_id"`
}

type UpdateRegisterRequest struct {
	Name         *string `json:"name"`
	DepartmentID *uint   `json:"department_id"`
	IsActive     *bool   `json:"is_active"`
}

type RegisterResponse struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	DepartmentID uint   `json:"department_id"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func toRegisterResponse(r *models.CashRegister) RegisterResponse {
	return RegisterResponse{
		ID:           r.ID,
		Name:         r.Name,
		DepartmentID: r.DepartmentID,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:    r.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// POST /api/admin/registers
func CreateRegisterHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateRegisterRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name zorunlu")
		}
		if body.DepartmentID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "department_id zorunlu")
		}

		var department models.Department
		if err := database.DB.First(&department, "id = ?", body.DepartmentID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Birim bulunamadı")
		}

		register := models.CashRegister{
			Name:         body.Name,
			DepartmentID: body.DepartmentID,
			IsActive:     true,
		}

		if err := database.DB.Create(&register).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Vezne oluşturulamadı")
		}

		userID, userName, err := getUserInfo(c)
		if err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "cash_register",
				EntityID:    register.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Vezne eklendi: %s (%s)", register.Name, department.Name),
				Before:      nil,
				After:       register,
			})
		}

		return c.Status(fiber.StatusCreated).JSON(toRegisterResponse(&register))
	}
}

// GET /api/registers?department_id=1
func ListRegistersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.CashRegister{})

		if didStr := c.Query("department_id"); didStr != "" {
			var did uint
			if _, err := fmt.Sscan(didStr, &did); err != nil || did == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "department_id geçersiz")
			}
			dbq = dbq.Where("department_id = ?", did)
		}

		var registers []models.CashRegister
		if err := dbq.Order("name ASC").Find(&registers).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Vezneler listelenemedi")
		}

		resp := make([]RegisterResponse, 0, len(registers))
		for i := range registers {
			resp = append(resp, toRegisterResponse(&registers[i]))
		}
		return c.JSON(resp)
	}
}

// PUT /api/admin/registers/:id
func UpdateRegisterHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var register models.CashRegister
		if err := database.DB.First(&register, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Vezne bulunamadı")
		}

		var body UpdateRegisterRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		oldRegister := register

		if body.Name != nil {
			register.Name = *body.Name
		}
		if body.DepartmentID != nil {
			register.DepartmentID = *body.DepartmentID
		}
		if body.IsActive != nil {
			register.IsActive = *body.IsActive
		}

		if err := database.DB.Save(&register).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Vezne güncellenemedi")
		}

		userID, userName, err := getUserInfo(c)
		if err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "cash_register",
				EntityID:    register.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("Vezne güncellendi: %s", register.Name),
				Before:      oldRegister,
				After:       register,
			})
		}

		return c.JSON(toRegisterResponse(&register))
	}
}

// DELETE /api/admin/registers/:id
func DeleteRegisterHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var register models.CashRegister
		if err := database.DB.First(&register, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Vezne bulunamadı")
		}

		// Oturum geçmişi olan vezne silinmez, pasife alınır
		var count int64
		database.DB.Model(&models.RegisterSession{}).Where("cash_register_id = ?", id).Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "Bu vezneye ait oturumlar var, vezne silinemez; pasife alın")
		}

		if err := database.DB.Delete(&register).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Vezne silinemedi")
		}

		userID, userName, err := getUserInfo(c)
		if err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "cash_register",
				EntityID:    register.ID,
				Action:      models.AuditActionDelete,
				Description: fmt.Sprintf("Vezne silindi: %s", register.Name),
				Before:      register,
				After:       nil,
			})
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}
