package database

import (
	"log"

	"klinik-backend/internal/config"
	"klinik-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Veritabanına bağlanılamadı: %v", err)
	}

	if err := Migrate(DB); err != nil {
		log.Fatalf("Migration hatası: %v", err)
	}

	log.Println("Veritabanı bağlantısı başarılı. Migration tamamlandı.")
}

// Migrate: AutoMigrate + elle eklenen index'ler. Testler de sqlite üzerinde
// aynı şemayı kurmak için bunu çağırır.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Department{},
		&models.User{},
		&models.Vault{},
		&models.CashRegister{},
		&models.RegisterSession{},
		&models.SessionDenomination{},
		&models.VaultTransaction{},
		&models.RegisterTransfer{},
		&models.BillableItem{},
		&models.FinancialTransaction{},
		&models.SettlementRequest{},
		&models.AuditLog{},
	)
	if err != nil {
		return err
	}

	// Aynı veznede aynı anda tek open/suspended oturum kuralı.
	// Check-then-act yerine DB seviyesinde: yarışan ikinci açılış unique ihlaliyle düşer.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_session_per_register
		ON register_sessions (cash_register_id)
		WHERE status IN ('open', 'suspended')
	`).Error; err != nil {
		return err
	}

	return nil
}
