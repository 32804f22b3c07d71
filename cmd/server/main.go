// Package main is the entry point for the reward ledger server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"reward-ledger/internal/api"
	"reward-ledger/internal/api/handler"
	"reward-ledger/internal/config"
	"reward-ledger/internal/pkg/cache"
	"reward-ledger/internal/pkg/db"
	"reward-ledger/internal/pkg/lock"
	"reward-ledger/internal/repository"
	"reward-ledger/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	walletRepo := repository.NewWalletRepository(dbPool.Pool, cfg.Wallet.WelcomeBalance)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)

	// Initialize per-wallet locks and core services
	walletLock := lock.NewWalletLock()
	limiter := service.NewRateLimiter(txRepo, cfg.RateLimit.MaxTransactions, cfg.RateLimit.Window)
	leveling := service.NewLevelingEngine(cfg.Wallet.LevelStep, cfg.Wallet.BonusStep)

	walletService := service.NewWalletService(walletRepo, limiter, leveling, walletLock)
	transferService := service.NewTransferService(walletRepo, limiter, walletLock)

	// Optional leaderboard cache
	var leaderboardCache cache.Cache
	if cfg.Cache.Enabled {
		client, err := cache.NewClient(ctx, cfg.Cache.Addr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to cache")
		}
		defer client.Close()
		leaderboardCache = client
		log.Info().Str("addr", cfg.Cache.Addr).Msg("Leaderboard cache enabled")
	}

	queryService := service.NewQueryService(
		walletRepo,
		txRepo,
		leaderboardCache,
		cfg.Cache.TTL,
		cfg.Query.HistoryLimit,
		cfg.Query.LeaderboardLimit,
	)

	ledgerHandler := handler.NewLedgerHandler(walletService, transferService, queryService)
	router := api.NewRouter(ledgerHandler, dbPool)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Server is starting...")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}
