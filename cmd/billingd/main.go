package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quartiermarkt/billing/internal/config"
	"github.com/quartiermarkt/billing/internal/logging"
	"github.com/quartiermarkt/billing/internal/notify"
	"github.com/quartiermarkt/billing/internal/repository"
	"github.com/quartiermarkt/billing/internal/service/accountlock"
	"github.com/quartiermarkt/billing/internal/service/dunning"
	"github.com/quartiermarkt/billing/internal/service/ledger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("billingd", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	invoices := repository.NewInvoiceRepository(db)
	sellers := repository.NewSellerRepository(db)

	commission, _ := cfg.CommissionRateDecimal()
	vatRate, _ := cfg.VATRateDecimal()
	lateFee, _ := cfg.LateFeeDecimal()

	var notifier notify.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaNotificationTopic)
		defer kn.Close()
		notifier = kn
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	escalation := cfg.EscalationDays()
	locks := accountlock.NewController(invoices, sellers, len(escalation))

	ledgerSvc := ledger.NewService(invoices, locks, ledger.Pricing{
		CommissionRate: commission,
		VATRate:        vatRate,
		GracePeriod:    cfg.GracePeriod(),
	}, cfg.PlatformIBAN)

	sweeper := dunning.NewSweeper(invoices, ledgerSvc, locks, sellers, notifier, dunning.Policy{
		EscalationDays: escalation,
		LateFee:        lateFee,
		Batch:          cfg.SweepBatch,
	})

	runner := dunning.NewRunner(sweeper, cfg.SweepInterval, logger)
	go runner.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}
