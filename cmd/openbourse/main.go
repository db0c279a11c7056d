package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openbourse/openbourse/internal/config"
	"github.com/openbourse/openbourse/internal/dispatch"
	"github.com/openbourse/openbourse/internal/domain"
	"github.com/openbourse/openbourse/internal/engine"
	"github.com/openbourse/openbourse/internal/handler"
	"github.com/openbourse/openbourse/internal/journal"
	"github.com/openbourse/openbourse/internal/service"
	"github.com/openbourse/openbourse/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("exchange failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	market, err := config.LoadMarket(cfg.MarketFile)
	if err != nil {
		return err
	}

	jnl, err := journal.Open(filepath.Join(cfg.DataDir, "journal"), logger.Named("journal"))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jnl.Close()

	// Stores and registries, seeded from the market file. Seed state
	// plus the journal fully determine engine state.
	instruments := domain.NewInstrumentRegistry()
	for _, in := range market.Instruments {
		instruments.Register(&domain.Instrument{
			Symbol:   in.Symbol,
			TickSize: in.TickSize,
			LotSize:  in.LotSize,
		})
	}

	accountStore := store.NewAccountStore()
	for _, ac := range market.Accounts {
		acct := &domain.Account{
			ID:          ac.ID,
			CashBalance: ac.Cash,
			Holdings:    make(map[string]*domain.Holding, len(ac.Holdings)),
			CreatedAt:   time.Now(),
		}
		for symbol, qty := range ac.Holdings {
			acct.Holdings[symbol] = &domain.Holding{Quantity: qty, Reserved: decimal.Zero}
		}
		if err := accountStore.Create(acct); err != nil {
			return fmt.Errorf("seed account %q: %w", ac.ID, err)
		}
	}

	orderStore := store.NewOrderStore()
	tradeStore := store.NewTradeStore()
	books := engine.NewBookManager()

	// The hub hangs off the journal's commit hook so subscribers see
	// committed batches in strict sequence order.
	hub := dispatch.NewHub(jnl, cfg.StreamBuffer, logger.Named("dispatch"))
	jnl.OnCommit(hub.Publish)
	matcher := engine.NewMatcher(books, accountStore, orderStore, tradeStore, instruments, jnl, logger.Named("engine"))

	// Rebuild in-memory state from the journal before serving.
	start := time.Now()
	if err := matcher.Replay(); err != nil {
		return fmt.Errorf("journal replay: %w", err)
	}
	logger.Info("journal replayed",
		zap.Uint64("last_seq", jnl.LastSeq()),
		zap.Duration("took", time.Since(start)),
	)

	expiryMgr := engine.NewExpiryManager(cfg.ExpiryInterval, matcher, logger.Named("expiry"))
	expiryMgr.Rebuild(matcher.RestingOrders())

	orderSvc := service.NewOrderService(matcher, expiryMgr, orderStore)
	accountSvc := service.NewAccountService(accountStore)
	marketSvc := service.NewMarketService(tradeStore, books, instruments, cfg.VWAPWindow, cfg.SnapshotDepth)

	router := handler.NewRouter(orderSvc, accountSvc, marketSvc, hub, logger.Named("http"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go expiryMgr.Start(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	cancel()

	logger.Info("server stopped")
	return nil
}

// buildLogger constructs a production JSON logger at the configured
// level.
func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
