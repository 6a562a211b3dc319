package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/01moynul/taptosell-orders/internal/auth"
	"github.com/01moynul/taptosell-orders/internal/config"
	"github.com/01moynul/taptosell-orders/internal/database"
	"github.com/01moynul/taptosell-orders/internal/fulfillment"
	"github.com/01moynul/taptosell-orders/internal/handlers"
	"github.com/01moynul/taptosell-orders/internal/inventory"
	"github.com/01moynul/taptosell-orders/internal/ledger"
	"github.com/01moynul/taptosell-orders/internal/logger"
	"github.com/01moynul/taptosell-orders/internal/orders"
	"github.com/01moynul/taptosell-orders/internal/payments"
	"github.com/01moynul/taptosell-orders/internal/routes"
	"github.com/gin-gonic/gin"
)

// sweepBatchSize caps how many orders one reconciliation tick looks at.
const sweepBatchSize = 100

func main() {
	// 0. --- Load Configuration (.env + environment) ---
	cfg := config.Load()
	log := logger.New(logger.Options{
		Service: cfg.ServiceName,
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. --- Ledger Store ---
	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		log.Error("failed to open ledger store", "driver", cfg.LedgerDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// 2. --- Payment Gateway ---
	if cfg.StripeSecretKey == "" {
		log.Error("CRITICAL ERROR: STRIPE_SECRET_KEY environment variable is not set")
		os.Exit(1)
	}
	gateway := payments.NewBreakerGateway(payments.NewStripeGateway(cfg.StripeSecretKey), cfg.GatewayTimeout, log)

	// --- Application Setup ---
	adjuster := inventory.NewAdjuster(store)
	orderService := orders.NewService(store, adjuster)
	orderService.SetDefaultCurrency(cfg.Currency)
	reconciler := payments.NewReconciler(store, gateway, log, cfg.HeuristicMatchWindow)

	app := &handlers.Handlers{
		Orders:      orderService,
		Fulfillment: fulfillment.New(store, orderService, adjuster, reconciler, gateway, log),
		Inventory:   adjuster,
		Tokens:      auth.NewTokenService(cfg.JWTSecret, 0),
		Logger:      log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. --- Background Workers ---
	// Attaches gateway payment intents to orders that were stored without one.
	if cfg.ReconcileInterval > 0 {
		go runSweeper(ctx, reconciler, cfg.ReconcileInterval, log)
	}

	// --- Start Server ---
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           routes.SetupRouter(app, cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting order service", "port", cfg.HTTPPort, "ledger", cfg.LedgerDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

func openStore(cfg config.Config, log *slog.Logger) (ledger.Store, func(), error) {
	switch cfg.LedgerDriver {
	case "memory":
		log.Warn("using in-memory ledger store, data is lost on restart")
		return ledger.NewMemoryStore(), func() {}, nil
	case "mysql":
		db, err := database.OpenDB(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.RunMigrations {
			if err := database.RunMigrations(db); err != nil {
				db.Close()
				return nil, nil, err
			}
			log.Info("database migrations applied")
		}
		return ledger.NewMySQLStore(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown LEDGER_DRIVER %q", cfg.LedgerDriver)
	}
}

func runSweeper(ctx context.Context, reconciler *payments.Reconciler, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("reconciliation sweep started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			attached, err := reconciler.Sweep(ctx, sweepBatchSize)
			if err != nil {
				log.Error("reconciliation sweep failed", "error", err)
				continue
			}
			if attached > 0 {
				log.Info("reconciliation sweep attached payment intents", "count", attached)
			}
		}
	}
}
