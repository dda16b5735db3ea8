// Package main is the entry point for beam's billing daemon: the gRPC
// billing service described by spec §4.8 plus an HTTP ops surface
// (/health, /ready, /metrics).
//
// Lifted nearly line-for-line from the teacher's cmd/api/main.go lifecycle
// (load config → dial Redis → build domain components → gRPC server with
// interceptors → HTTP ops server → wait for SIGINT/SIGTERM → graceful
// drain), generalized from a single *ledger.Ledger to the C3/C4/C6/C7
// component set this rewrite split that ledger into, and from "PostgreSQL
// is truth, sync it down to Redis at startup" to "Redis is truth; Postgres
// is a best-effort async audit mirror" (see internal/store/audit.go and
// DESIGN.md).
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelpejol/beam/internal/auth"
	"github.com/kelpejol/beam/internal/billing"
	"github.com/kelpejol/beam/internal/config"
	"github.com/kelpejol/beam/internal/exchange"
	"github.com/kelpejol/beam/internal/money"
	"github.com/kelpejol/beam/internal/monitor"
	"github.com/kelpejol/beam/internal/pb"
	"github.com/kelpejol/beam/internal/pricing"
	"github.com/kelpejol/beam/internal/rpc"
	"github.com/kelpejol/beam/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/reflection"

	_ "github.com/kelpejol/beam/internal/transport/jsoncodec"
)

func main() {
	cfg := config.Load()
	logger := setupLogger(cfg.LogLevel, cfg.Environment)

	logger.Info().
		Str("environment", cfg.Environment).
		Str("grpc_port", cfg.GRPCPort).
		Str("http_port", cfg.HTTPPort).
		Msg("starting beam billing daemon")

	rdb, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPass, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	mirror, err := store.NewAuditMirror(cfg.PostgresURL, 4, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres audit mirror")
	}
	defer mirror.Close()
	logger.Info().Msg("audit mirror initialized")

	ctx := context.Background()

	pricingTable, err := pricing.Load(ctx, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load pricing table")
	}

	feed := noopExchangeFeed{}
	exchangeTable, err := exchange.Load(ctx, rdb, feed, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load exchange table")
	}
	exchangeTable.StartPeriodicRefresh(cfg.ExchangeRefreshInterval, cfg.ExchangeRetryBackoff)
	defer exchangeTable.Stop()

	mon := monitor.New(rdb, monitor.Thresholds{
		ErrorRate:             cfg.ErrorRateThreshold,
		LowBalanceUSD:         money.FromFloat(cfg.LowBalanceThresholdUSD),
		HighUsageTokensPerDay: cfg.HighUsageTokens,
		ReservationTTLSeconds: cfg.TTLAlertThresholdSecs,
		AlertCooldown:         cfg.MonitorCooldown,
	}, logger)
	mon.EvaluateReservationTTL(int64(cfg.ReservationTTL.Seconds()))

	billingCore := billing.New(rdb, pricingTable, exchangeTable, mon, logger, cfg.ReservationTTL, cfg.CommittedTTL)
	billingCore.SetAuditor(mirror)
	authenticator := auth.New(cfg.TokenSecret, cfg.AdminKey)

	server := rpc.New(billingCore, pricingTable, exchangeTable, mon, authenticator, logger)

	grpcServer := rpc.NewGRPCServer(logger)
	pb.RegisterBillingServiceServer(grpcServer, server)
	if cfg.Environment == "development" {
		reflection.Register(grpcServer)
		logger.Info().Msg("grpc reflection enabled")
	}

	go func() {
		listener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create grpc listener")
		}
		logger.Info().Str("port", cfg.GRPCPort).Msg("grpc server listening")
		if err := grpcServer.Serve(listener); err != nil {
			logger.Fatal().Err(err).Msg("grpc server failed")
		}
	}()

	httpServer := createHTTPServer(cfg.HTTPPort, rdb, mirror, mon, logger)
	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received, starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	logger.Info().Msg("grpc server stopped")

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	logger.Info().Msg("http server stopped")
	logger.Info().Msg("shutdown complete")
}

// noopExchangeFeed is the interface contract placeholder for the external
// exchange-rate feed (spec §1: the feed itself is out of scope, an
// interface only). It returns no rates, so each Refresh succeeds and
// leaves a table holding only the pinned USD/USDT entries; a currency
// added through AddCurrency is dropped at the next refresh.
type noopExchangeFeed struct{}

func (noopExchangeFeed) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	return nil, nil
}

func setupLogger(levelStr, environment string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if environment == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(level).
			With().
			Timestamp().
			Caller().
			Logger()
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "beam-billingd").
		Str("environment", environment).
		Logger()
}

func createHTTPServer(port string, rdb *store.RedisStore, mirror *store.AuditMirror, mon *monitor.Aggregator, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := rdb.GetBalance(ctx, "__readiness_probe__"); err != nil {
			logger.Warn().Err(err).Msg("readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(mon.Registry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
