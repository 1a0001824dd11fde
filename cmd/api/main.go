package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/artifact"
	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/config"
	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/handler"
	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/reaper"
	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/repository"
	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/service"
	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/validator"
	"github.com/Kopoklesz/Szakdolgozat-sub000/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	// Create context for startup
	ctx := context.Background()

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Campus Credit Shop Vouchers",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    1 * 1024 * 1024,   // 1MB body limit (explicit, prevents large payloads)
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	// Initialize validator
	validate := validator.New()

	// Initialize voucher components (layered architecture)
	eventRepo := repository.NewEventRepository(pool)
	codeRepo := repository.NewCodeRepository(pool)
	qrRepo := repository.NewQRRepository(pool)
	balanceRepo := repository.NewBalanceRepository(pool)
	shopRepo := repository.NewShopRepository(pool)
	renderer := artifact.NewRenderer()

	voucherService := service.NewVoucherService(pool, eventRepo, codeRepo, qrRepo, balanceRepo, shopRepo, renderer, cfg.DB.TxTimeout)
	redeemService := service.NewRedeemService(pool, codeRepo, qrRepo, balanceRepo, shopRepo, cfg.DB.TxTimeout)

	voucherHandler := handler.NewVoucherHandler(voucherService, validate)
	redeemHandler := handler.NewRedeemHandler(redeemService, validate)

	// Start the expiry reaper; the health endpoint reports its last sweep
	reaperCtx, reaperCancel := context.WithCancel(ctx)
	defer reaperCancel()
	var sweepStatus handler.SweepReporter
	if cfg.Reaper.Enabled {
		rp := reaper.New(voucherService, cfg.Reaper.Interval)
		rp.Start(reaperCtx)
		sweepStatus = rp
	}

	// Health handler
	healthHandler := handler.NewHealthHandler(pool, sweepStatus)
	app.Get("/health", healthHandler.Check)

	// Issuance routes (teacher/admin, gateway identity headers)
	app.Post("/api/vouchers/codes", voucherHandler.GenerateCodes)
	app.Post("/api/vouchers/qr", voucherHandler.GenerateQR)
	app.Post("/api/vouchers/distribute", voucherHandler.Distribute)
	app.Get("/api/vouchers/codes", voucherHandler.ListCodes)
	app.Get("/api/vouchers/qrs", voucherHandler.ListQRs)
	app.Delete("/api/vouchers/codes/:code", voucherHandler.DeleteCode)
	app.Delete("/api/vouchers/qrs/:id", voucherHandler.DeleteQR)
	app.Post("/api/admin/expiry-sweep", voucherHandler.RunSweep)

	// Redemption routes (self-service)
	app.Post("/api/redeem/code", redeemHandler.RedeemCode)
	app.Post("/api/redeem/qr", redeemHandler.RedeemQR)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	// Stop the reaper before tearing the pool down
	reaperCancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Close database pool AFTER server shutdown (even if shutdown timed out)
	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("database connections closed")
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
