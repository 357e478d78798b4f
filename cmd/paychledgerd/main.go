// Command paychledgerd runs the payment-channel ledger daemon: an HTTP
// front-end over the ten operations paychledger/ledger implements,
// backed by Postgres.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"paychledger/config"
	"paychledger/ledger"
	"paychledger/sign"
	"paychledger/storage/postgres"
	"paychledger/storage/postgres/adminmodels"
)

func main() {
	configPath := flag.String("config", "paychledgerd.toml", "path to the daemon's TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("paychledgerd: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := postgres.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pingErr := store.Ping(ctx)
	cancel()
	if pingErr != nil {
		return pingErr
	}

	verify := sign.ECDSAVerify
	if cfg.VerifierMode == config.VerifierModeAlwaysTrue {
		verify = sign.AlwaysValid
	}
	l := ledger.New(store, verify)

	if cfg.Debug() {
		log.Printf("paychledgerd: verifier_mode=%s chain_allowlist=%v", cfg.VerifierMode, cfg.ChainAllowlist)
	}

	var admin *adminmodels.Reader
	gormDB, err := gorm.Open(gormpostgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Printf("paychledgerd: admin reporting unavailable: %v", err)
	} else if err := adminmodels.AutoMigrate(gormDB); err != nil {
		log.Printf("paychledgerd: admin reporting unavailable: %v", err)
	} else {
		admin = adminmodels.NewReader(gormDB)
	}

	srv := NewServer(l, admin, 0, 0, cfg.ChainAllowlist)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("paychledgerd: listening on %s", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		log.Printf("paychledgerd: metrics on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("paychledgerd: received %s, shutting down", sig)
	case err := <-errCh:
		log.Printf("paychledgerd: server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	return nil
}
