package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joy095/treasury/clients"
	"github.com/joy095/treasury/config"
	"github.com/joy095/treasury/config/db"
	redisconn "github.com/joy095/treasury/config/redis"
	"github.com/joy095/treasury/controllers/payment_webhook_controller"
	"github.com/joy095/treasury/controllers/treasury_controller"
	"github.com/joy095/treasury/logger"
	middleware "github.com/joy095/treasury/middlewares"
	"github.com/joy095/treasury/middlewares/cors"
	logger_middleware "github.com/joy095/treasury/middlewares/logger"
	"github.com/joy095/treasury/models/ledger_models"
	"github.com/joy095/treasury/routes"
	"github.com/joy095/treasury/services/report_service"
	"github.com/joy095/treasury/services/treasury_service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Initialize loggers before using
	logger.InitLoggers(cfg.LogFile, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		logger.ErrorLogger.Fatalf("Failed to open ledger: %v", err)
	}
	defer ledger.Close()

	rdb, err := redisconn.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.ErrorLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisconn.Close(rdb)

	treasuryService := treasury_service.NewTreasuryService(ledger, treasury_service.WithMaxRetries(cfg.MaxTxRetries))
	reportService := report_service.NewReportService(ledger, rdb, cfg.DashboardCacheTTL)

	treasuryController, err := treasury_controller.NewTreasuryController(ledger, treasuryService, reportService)
	if err != nil {
		logger.ErrorLogger.Fatalf("Failed to initialize treasury controller: %v", err)
	}
	webhookController, err := payment_webhook_controller.NewPaymentWebhookController(treasuryService, clients.NewRazorpayVerifier(cfg.WebhookSecret))
	if err != nil {
		logger.ErrorLogger.Fatalf("Failed to initialize webhook controller: %v", err)
	}
	payoutLimiter, err := middleware.NewRateLimiter(rdb, cfg.PayoutRateLimit, "admin_payouts")
	if err != nil {
		logger.ErrorLogger.Fatalf("Failed to initialize payout rate limiter: %v", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// Apply CORS Middleware
	r.Use(cors.CorsMiddleware(cfg.CORSOrigins))

	// Apply Logger Middleware
	r.Use(logger_middleware.GinLogger())

	err = routes.RegisterTreasuryRoutes(r, routes.Deps{
		Treasury:      treasuryController,
		Webhook:       webhookController,
		JWTSecret:     []byte(cfg.JWTSecret),
		PayoutLimiter: payoutLimiter,
	})
	if err != nil {
		logger.ErrorLogger.Fatalf("Failed to register routes: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoLogger.Infof("Starting server on port %s (ledger: %s)", cfg.Port, cfg.LedgerBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorLogger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.InfoLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorLogger.Errorf("Server forced to shutdown: %v", err)
	}
	logger.InfoLogger.Info("Server exited")
}

func openLedger(ctx context.Context, cfg *config.Config) (ledger_models.Ledger, error) {
	if cfg.LedgerBackend == config.BackendMemory {
		logger.WarnLogger.Warn("Using in-memory ledger; data is lost on restart")
		return ledger_models.NewMemoryLedger(), nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		db.Close(pool)
		return nil, err
	}
	return ledger_models.NewPostgresLedger(pool), nil
}
