package admin

import (
	"fmt"

	"klinik-backend/internal/audit"
	"klinik-backend/internal/auth"
	"klinik-backend/internal/database"
	"klinik-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateDepartmentRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Phone    string `json:"phone"`
}

type UpdateDepartmentRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Phone    *string `json:"phone"`
}

type DepartmentResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toDepartmentResponse(d *models.Department) DepartmentResponse {
	return DepartmentResponse{
		ID:        d.ID,
		Name:      d.Name,
		Location:  d.Location,
		Phone:     d.Phone,
		CreatedAt: d.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt: d.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func parseIDParam(c *fiber.Ctx) (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Geçersiz ID")
	}
	return id, nil
}

// Yardımcı: Kullanıcı bilgilerini al
func getUserInfo(c *fiber.Ctx) (uint, string, error) {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return 0, "", err
	}

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		return 0, "", fiber.NewError(fiber.StatusInternalServerError, "Kullanıcı bulunamadı")
	}

	return userID, user.Name, nil
}

// POST /api/admin/departments
func CreateDepartmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateDepartmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name zorunlu")
		}

		department := models.Department{
			Name:     body.Name,
			Location: body.Location,
			Phone:    body.Phone,
		}

		if err := database.DB.Create(&department).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Birim oluşturulamadı")
		}

		userID, userName, err := getUserInfo(c)
		if err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "department",
				EntityID:    department.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Birim eklendi: %s", department.Name),
				Before:      nil,
				After:       department,
			})
		}

		return c.Status(fiber.StatusCreated).JSON(toDepartmentResponse(&department))
	}
}

// GET /api/admin/departments
func ListDepartmentsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var departments []models.Department
		if err := database.DB.Order("name ASC").Find(&departments).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Birimler listelenemedi")
		}

		resp := make([]DepartmentResponse, 0, len(departments))
		for i := range departments {
			resp = append(resp, toDepartmentResponse(&departments[i]))
		}
		return c.JSON(resp)
	}
}

// PUT /api/admin/departments/:id
func UpdateDepartmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var department models.Department
		if err := database.DB.First(&department, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Birim bulunamadı")
		}

		var body UpdateDepartmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		oldDepartment := department

		if body.Name != nil {
			department.Name = *body.Name
		}
		if body.Location != nil {
			department.Location = *body.Location
		}
		if body.Phone != nil {
			department.Phone = *body.Phone
		}

		if err := database.DB.Save(&department).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Birim güncellenemedi")
		}

		userID, userName, err := getUserInfo(c)
		if err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "department",
				EntityID:    department.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("Birim güncellendi: %s", department.Name),
				Before:      oldDepartment,
				After:       department,
			})
		}

		return c.JSON(toDepartmentResponse(&department))
	}
}

// DELETE /api/admin/departments/:id
func DeleteDepartmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var department models.Department
		if err := database.DB.First(&department, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Birim bulunamadı")
		}

		// Vezne bağlıysa silinmez
		var count int64
		database.DB.Model(&models.CashRegister{}).Where("department_id = ?", id).Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "Bu birime bağlı vezneler var, önce onları taşıyın")
		}

		if err := database.DB.Delete(&department).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Birim silinemedi")
		}

		userID, userName, err := getUserInfo(c)
		if err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "department",
				EntityID:    department.ID,
				Action:      models.AuditActionDelete,
				Description: fmt.Sprintf("Birim silindi: %s", department.Name),
				Before:      department,
				After:       nil,
			})
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}
