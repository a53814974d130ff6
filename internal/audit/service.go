package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"klinik-backend/internal/database"
	"klinik-backend/internal/models"
)

type LogOptions struct {
	DepartmentID *uint
	UserID       uint
	UserName     string
	EntityType   string
	EntityID     uint
	Action       models.AuditAction
	Description  string
	Before       any
	After        any
}

func WriteLog(opts LogOptions) error {
	// PostgreSQL jsonb için boş string yerine "null" JSON string'i kullanmalıyız
	beforeStr := "null" // Default: null JSON
	afterStr := "null"  // Default: null JSON

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	log := models.AuditLog{
		DepartmentID: opts.DepartmentID,
		UserID:       opts.UserID,
		UserName:     opts.UserName,
		EntityType:   opts.EntityType,
		EntityID:     opts.EntityID,
		Action:       opts.Action,
		Description:  opts.Description,
		BeforeData:   beforeStr,
		AfterData:    afterStr,
		Undone:       false,
		IsUndone:     false,
	}

	if err := database.DB.Create(&log).Error; err != nil {
		return fmt.Errorf("audit log kaydedilemedi: %w", err)
	}

	return nil
}

// undoable: Sadece yapısal kayıtlar geri alınabilir. Kasa defteri kayıtları
// (oturum, hareket, devir, onay) append-only'dir; düzeltme ters kayıtla yapılır.
func undoable(entityType string) bool {
	switch entityType {
	case "vault", "cash_register", "department":
		return true
	default:
		return false
	}
}

// UndoLog - Bir audit log'u undo et
func UndoLog(logID uint, userID uint, userName string) error {
	var log models.AuditLog
	if err := database.DB.First(&log, "id = ?", logID).Error; err != nil {
		return fmt.Errorf("log bulunamadı: %w", err)
	}

	// Zaten undo edilmiş mi?
	if log.IsUndone {
		return fmt.Errorf("bu işlem zaten geri alınmış")
	}

	if !undoable(log.EntityType) {
		return fmt.Errorf("kasa defteri kayıtları geri alınamaz: %s", log.EntityType)
	}

	// Undo işlemini gerçekleştir
	switch log.Action {
	case models.AuditActionCreate:
		// Create ise entity'yi sil
		if err := deleteEntity(log.EntityType, log.EntityID); err != nil {
			return fmt.Errorf("entity silinemedi: %w", err)
		}

	case models.AuditActionUpdate:
		// Update ise önceki haline geri döndür
		if err := restoreEntity(log.EntityType, log.EntityID, log.BeforeData); err != nil {
			return fmt.Errorf("entity geri yüklenemedi: %w", err)
		}

	case models.AuditActionDelete:
		// Delete ise entity'yi geri oluştur (create)
		if err := recreateEntity(log.EntityType, log.AfterData); err != nil {
			return fmt.Errorf("entity geri oluşturulamadı: %w", err)
		}

	default:
		return fmt.Errorf("bu işlem türü geri alınamaz")
	}

	// Log'u işaretle
	now := time.Now()
	log.IsUndone = true
	log.UndoneBy = &userID
	log.UndoneAt = &now

	if err := database.DB.Save(&log).Error; err != nil {
		return fmt.Errorf("log güncellenemedi: %w", err)
	}

	// Undo işlemi için yeni bir log oluştur
	undoLog := models.AuditLog{
		DepartmentID: log.DepartmentID,
		UserID:       userID,
		UserName:     userName,
		EntityType:   log.EntityType,
		EntityID:     log.EntityID,
		Action:       models.AuditActionUndo,
		Description:  fmt.Sprintf("Geri alındı: %s", log.Description),
		BeforeData:   log.AfterData,
		AfterData:    log.BeforeData,
		Undone:       true,
		IsUndone:     false,
	}

	if err := database.DB.Create(&undoLog).Error; err != nil {
		return fmt.Errorf("undo log kaydedilemedi: %w", err)
	}

	return nil
}

// deleteEntity - Entity'yi sil
func deleteEntity(entityType string, entityID uint) error {
	switch entityType {
	case "vault":
		return database.DB.Delete(&models.Vault{}, "id = ?", entityID).Error
	case "cash_register":
		return database.DB.Delete(&models.CashRegister{}, "id = ?", entityID).Error
	case "department":
		return database.DB.Delete(&models.Department{}, "id = ?", entityID).Error
	default:
		return fmt.Errorf("bilinmeyen entity tipi: %s", entityType)
	}
}

// recreateEntity - Silinen entity'yi geri oluştur
func recreateEntity(entityType string, dataJSON string) error {
	switch entityType {
	case "vault":
		var vault models.Vault
		if err := json.Unmarshal([]byte(dataJSON), &vault); err != nil {
			return err
		}
		vault.ID = 0 // Yeni entity oluştur
		return database.DB.Create(&vault).Error

	case "cash_register":
		var register models.CashRegister
		if err := json.Unmarshal([]byte(dataJSON), &register); err != nil {
			return err
		}
		register.ID = 0
		return database.DB.Create(&register).Error

	case "department":
		var department models.Department
		if err := json.Unmarshal([]byte(dataJSON), &department); err != nil {
			return err
		}
		department.ID = 0
		return database.DB.Create(&department).Error

	default:
		return fmt.Errorf("bilinmeyen entity tipi: %s", entityType)
	}
}

// restoreEntity - Entity'yi geri yükle (update)
func restoreEntity(entityType string, entityID uint, dataJSON string) error {
	switch entityType {
	case "vault":
		var vault models.Vault
		if err := json.Unmarshal([]byte(dataJSON), &vault); err != nil {
			return err
		}
		// Bakiye undo ile değişmez; sadece yapısal alanlar geri yüklenir
		return database.DB.Model(&models.Vault{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"name":         vault.Name,
			"location":     vault.Location,
			"custodian_id": vault.CustodianID,
			"is_active":    vault.IsActive,
		}).Error

	case "cash_register":
		var register models.CashRegister
		if err := json.Unmarshal([]byte(dataJSON), &register); err != nil {
			return err
		}
		return database.DB.Model(&models.CashRegister{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"name":          register.Name,
			"department_id": register.DepartmentID,
			"is_active":     register.IsActive,
		}).Error

	case "department":
		var department models.Department
		if err := json.Unmarshal([]byte(dataJSON), &department); err != nil {
			return err
		}
		return database.DB.Model(&models.Department{}).Where("id = ?", entityID).Updates(map[string]interface{}{
			"name":     department.Name,
			"location": department.Location,
			"phone":    department.Phone,
		}).Error

	default:
		return fmt.Errorf("bilinmeyen entity tipi: %s", entityType)
	}
}
