package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"campaign-engine-system/handlers"
	"campaign-engine-system/middleware"
	"campaign-engine-system/models"
	"campaign-engine-system/services"
	"campaign-engine-system/utils"
	"campaign-engine-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.CampaignEvent{},
		&models.Claim{},
		&models.Streak{},
		&models.Voucher{},
		&models.SpinResult{},
		&models.Raffle{},
		&models.RaffleEntry{},
		&models.RaffleWinner{},
		&models.Achievement{},
		&models.DailyMetrics{},
		&models.AuditLogEntry{},
		&models.Referral{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Engine kill switch. Injected as a closure so services stay testable
	// without touching the environment.
	engineEnabled := func() bool {
		return strings.ToLower(os.Getenv("CAMPAIGN_ENGINE_DISABLED")) != "true"
	}

	eventService := services.NewEventService(db)
	claimService := services.NewClaimService(db, eventService, engineEnabled)
	choiceService := services.NewChoiceService(db, eventService, engineEnabled)
	spinService := services.NewSpinService(db, eventService, engineEnabled)
	upgradeService := services.NewUpgradeService(db, eventService, engineEnabled)
	voucherService := services.NewVoucherService(db)
	raffleService := services.NewRaffleService(db)
	metricsService := services.NewMetricsService(db)
	referralListener := services.NewReferralListener(db, eventService)

	// --- CONFIGURE Referral Service Details ---
	referralServiceURL := os.Getenv("REFERRAL_SERVICE_URL")
	if referralServiceURL == "" {
		log.Fatal("REFERRAL_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("CAMPAIGN_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("CAMPAIGN_SERVICE_TOKEN environment variable not set")
	}
	// --- END CONFIG ---

	referralWorker := workers.NewReferralSyncWorker(db, referralListener, referralServiceURL, "/api/v1/referrals/completed", serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Println("Starting Referral Sync Worker...")
		referralWorker.Start(ctx)
	}()

	eventService.StartPublishScheduler()

	// ✅ Setup routes — enforced Gateway auth + consistent /s/ prefix
	handlers.SetupCampaignRoutes(app, claimService, choiceService, spinService, upgradeService, voucherService)
	handlers.SetupAdminRoutes(app, eventService, raffleService, metricsService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Referral Sync Worker running")
	log.Println("✅ Event publish scheduler running (every 1m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
