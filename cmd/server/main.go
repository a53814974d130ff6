package main

import (
	"log"
	"strings"

	"klinik-backend/internal/admin"
	"klinik-backend/internal/audit"
	"klinik-backend/internal/auth"
	"klinik-backend/internal/billing"
	"klinik-backend/internal/config"
	"klinik-backend/internal/dashboard"
	"klinik-backend/internal/database"
	"klinik-backend/internal/models"
	"klinik-backend/internal/register"
	"klinik-backend/internal/settlement"
	"klinik-backend/internal/vault"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)

	vaultSvc := vault.NewService(database.DB)
	sessionSvc := register.NewService(database.DB)
	transferSvc := register.NewTransferService(database.DB, cfg.TransferExpiry)
	settlementSvc := settlement.NewService(database.DB)

	// süresi geçen devir taleplerini arka planda kapat
	sweepStop := make(chan struct{})
	go transferSvc.RunExpirySweep(cfg.TransferSweepInterval, sweepStop)
	defer close(sweepStop)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Println("Unexpected error:", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Beklenmeyen sunucu hatası",
			})
		},
	})

	// CORS origins'i virgülle ayrılmış string'den array'e çevir
	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	// Kullanıcı yönetimi
	adminRoutes.Post("/users", auth.CreateUserHandler())

	// Birim yönetimi
	adminRoutes.Post("/departments", admin.CreateDepartmentHandler())
	adminRoutes.Get("/departments", admin.ListDepartmentsHandler())
	adminRoutes.Put("/departments/:id", admin.UpdateDepartmentHandler())
	adminRoutes.Delete("/departments/:id", admin.DeleteDepartmentHandler())

	// Vezne tanımları
	adminRoutes.Post("/registers", admin.CreateRegisterHandler())
	adminRoutes.Put("/registers/:id", admin.UpdateRegisterHandler())
	adminRoutes.Delete("/registers/:id", admin.DeleteRegisterHandler())

	// Ana kasa tanımları
	adminRoutes.Post("/vaults", vault.CreateVaultHandler())
	adminRoutes.Put("/vaults/:id", vault.UpdateVaultHandler())
	adminRoutes.Delete("/vaults/:id", vault.DeleteVaultHandler())

	// Ortak (auth gerektiren) route'lar

	protected.Get("/registers", admin.ListRegistersHandler())
	protected.Get("/vaults", vault.ListVaultsHandler())

	// Ana kasa hareketleri
	protected.Post("/vaults/:id/deposit", vault.DepositHandler(vaultSvc))
	protected.Post("/vaults/:id/withdraw", vault.WithdrawHandler(vaultSvc))
	protected.Post("/vaults/:id/transfer", vault.TransferHandler(vaultSvc))
	protected.Get("/vaults/:id/transactions", vault.ListTransactionsHandler(vaultSvc))
	protected.Get("/vaults/:id/balance", vault.BalanceCheckHandler(vaultSvc))

	// Vezne oturumları
	protected.Post("/sessions", register.OpenSessionHandler(sessionSvc))
	protected.Post("/sessions/:id/suspend", register.SuspendSessionHandler(sessionSvc))
	protected.Post("/sessions/:id/resume", register.ResumeSessionHandler(sessionSvc))
	protected.Post("/sessions/:id/close", register.CloseSessionHandler(sessionSvc))
	protected.Delete("/sessions/:id", register.DeleteSessionHandler(sessionSvc))
	protected.Get("/sessions/:id", register.GetSessionHandler(sessionSvc))
	protected.Get("/sessions", register.ListSessionsHandler(sessionSvc))

	// Veznedarlar arası devir
	protected.Post("/transfers", register.InitiateTransferHandler(transferSvc))
	protected.Post("/transfers/:id/accept", register.AcceptTransferHandler(transferSvc))
	protected.Post("/transfers/:id/reject", register.RejectTransferHandler(transferSvc))
	protected.Get("/transfers", register.ListTransfersHandler(transferSvc))

	// Fatura kalemleri
	protected.Post("/billable-items", billing.CreateItemHandler())
	protected.Get("/billable-items", billing.ListItemsHandler())
	protected.Get("/billable-items/:id", billing.GetItemHandler())
	protected.Get("/billable-items/:id/transactions", billing.ListItemTransactionsHandler())

	// Kart/çek tahsilat onayları
	protected.Post("/settlements", settlement.CreateRequestHandler(settlementSvc))
	protected.Post("/settlements/:id/approve", settlement.ApproveHandler(settlementSvc))
	protected.Post("/settlements/:id/reject", settlement.RejectHandler(settlementSvc))
	protected.Post("/settlements/:id/send-back", settlement.SendBackHandler(settlementSvc))
	protected.Get("/settlements/:id", settlement.GetRequestHandler(settlementSvc))
	protected.Get("/settlements", settlement.ListRequestsHandler(settlementSvc))

	// Dashboard
	protected.Get("/dashboard/sessions", dashboard.SessionSummaryHandler())
	protected.Get("/dashboard/vault-flow", dashboard.VaultFlowHandler())
	protected.Get("/dashboard/settlements", dashboard.SettlementSummaryHandler())

	// Audit logs
	protected.Get("/audit-logs", audit.ListAuditLogsHandler())
	protected.Post("/audit-logs/:id/undo", audit.UndoAuditLogHandler())

	log.Println("Server çalışıyor port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
