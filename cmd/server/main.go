package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"namlend/internal/adapters/http/middleware"
	"namlend/internal/adapters/http/routes"
	"namlend/internal/adapters/persistence/repositories"
	"namlend/internal/adapters/procedures"
	"namlend/internal/adapters/rpc"
	"namlend/internal/config"
	"namlend/internal/core/ledger"
	"namlend/internal/core/roles"
	"namlend/internal/core/services"
	"namlend/internal/pkg/logger"
	"namlend/internal/pkg/monitor"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	_ "namlend/docs" // Swagger docs
)

// @title NamLend API
// @version 1.0
// @description Microlending API: loan applications, multi-stage approvals, disbursements and repayment schedules
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@namlend.com

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host api.namlend.com
// @BasePath /api/v1
// @schemes https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Must(cfg.AppMode)
	defer func() { _ = log.Sync() }()

	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatal("❌ Failed to connect to database", zap.Error(err))
	}
	defer config.CloseDatabase()

	if err := config.AutoMigrate(db); err != nil {
		log.Fatal("❌ Failed to auto migrate", zap.Error(err))
	}

	store := repositories.NewStore(db)
	if err := config.NewSeeder(store, log).Run(context.Background(), cfg.SuperAdminEmail, cfg.SuperAdminPass); err != nil {
		log.Fatal("❌ Failed to seed database", zap.Error(err))
	}

	// Procedure host behind the resilient gateway
	mon := monitor.NewZap(log)
	notifier := services.FanOut{
		procedures.NewStoreNotifier(store),
		services.NewNotificationService(cfg.LineNotifyToken, log),
	}
	host := procedures.NewHost(store, hostConfig(cfg),
		procedures.WithNotifier(notifier),
		procedures.WithMonitor(mon),
		procedures.WithLogger(log),
	)
	gw := rpc.NewGateway(host, gatewayConfig(cfg), mon, log)

	// Services
	authService := services.NewAuthService(store.Users(), services.TokenConfig{
		Secret:        cfg.JWT.Secret,
		AccessMinutes: cfg.JWT.AccessTokenMins,
	}, log)
	scheduleService := services.NewScheduleService(gw, log)

	// Nightly overdue scan
	cronService, err := services.NewCronService(scheduleService, cfg.OverdueCron, log)
	if err != nil {
		log.Fatal("❌ Invalid OVERDUE_CRON", zap.Error(err))
	}
	cronService.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "NamLend API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
	})

	// Setup middlewares
	middleware.Setup(app, cfg)

	routes.Setup(app, routes.Deps{
		Mode:          cfg.AppMode,
		DBPing:        config.HealthCheck,
		Breakers:      gw.Breakers(),
		Auth:          authService,
		Approvals:     services.NewApprovalService(gw, log),
		Disbursements: services.NewDisbursementService(gw, log),
		Schedule:      scheduleService,
		Roles:         services.NewRoleService(gw, roles.NewValidator(cfg.SuperAdminEmail), log),
	})

	// Graceful shutdown
	go gracefulShutdown(app, cronService, log)

	// Start server
	log.Info("🚀 Server starting", zap.String("port", cfg.Port), zap.String("mode", cfg.AppMode))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("❌ Failed to start server", zap.Error(err))
	}
}

func hostConfig(cfg *config.Config) procedures.Config {
	pc := procedures.DefaultConfig()
	pc.SuperAdminEmail = cfg.SuperAdminEmail
	pc.DefaultRate = cfg.Loan.DefaultRate
	pc.MaxRate = cfg.Loan.MaxRate
	pc.LateFee = ledger.LateFeePolicy{
		DailyRate: cfg.Loan.LateFeeDailyRate,
		GraceDays: cfg.Loan.LateFeeGraceDays,
		MaxRatio:  cfg.Loan.LateFeeMaxRatio,
		Cap:       cfg.Loan.LateFeeCap,
	}
	return pc
}

func gatewayConfig(cfg *config.Config) rpc.Config {
	gc := rpc.DefaultConfig()
	gc.Timeout = cfg.RPC.Timeout
	gc.MaxRetries = cfg.RPC.MaxRetries
	gc.BackoffBase = cfg.RPC.BackoffBase
	gc.SlowCall = cfg.RPC.SlowCall
	gc.Breaker.ConsecutiveFailures = uint32(cfg.RPC.BreakerThreshold)
	gc.Breaker.Cooldown = cfg.RPC.BreakerCooldown
	return gc
}

// gracefulShutdown handles graceful shutdown
func gracefulShutdown(app *fiber.App, cron *services.CronService, log *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("🛑 Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cron.Stop(ctx)
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error("❌ Error during shutdown", zap.Error(err))
	}
	log.Info("✅ Server stopped gracefully")
}
