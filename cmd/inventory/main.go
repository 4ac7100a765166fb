package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront-checkout/internal/config"
	"github.com/ariefcatur/go-storefront-checkout/internal/httpx"
	"github.com/ariefcatur/go-storefront-checkout/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/logx"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/postgres"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	service := cfg.ServiceName + "-inventory"
	log := logx.New(service, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, service, log); err != nil {
		log.Fatal().Err(err).Msg("inventory worker exited")
	}
	log.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, service string, log zerolog.Logger) error {
	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: 8})
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	reg := prometheus.NewRegistry()
	m := metrics.New(service, reg)
	stock := &inventory.PGStore{DB: db, TTL: cfg.ReservationTTL}

	alerts := &inventory.AlertService{
		Store:       stock,
		Redis:       rdb,
		Events:      prod,
		Log:         log,
		ServiceName: service,
		Threshold:   cfg.LowStockThreshold,
	}
	sweeper := &inventory.Sweeper{Store: stock, Interval: cfg.SweepInterval, Log: log, Metrics: m}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, orders.TopicOrderPlaced, cfg.InventoryWorkers, log)

	restocks := &inventory.RestockService{Store: stock, Redis: rdb, Log: log}
	restockGroup := cfg.InventoryGroup + "-restock"
	restockCons := kafkax.NewConsumer(cfg.KafkaBrokers, restockGroup, orders.TopicRestockPending, 1, log)

	// health and metrics only; the worker has no public API
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           httpx.NewRouter(log, m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("group", cfg.InventoryGroup).Str("topic", orders.TopicOrderPlaced).
			Int("workers", cfg.InventoryWorkers).Msg("inventory consumer started")
		return cons.Start(gctx, alerts.HandleOrderPlaced)
	})
	g.Go(func() error {
		log.Info().Str("group", restockGroup).Str("topic", orders.TopicRestockPending).Msg("restock consumer started")
		return restockCons.Start(gctx, restocks.HandleRestockPending)
	})
	g.Go(func() error {
		log.Info().Dur("interval", cfg.SweepInterval).Msg("reservation sweeper started")
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	// consumer and sweeper are done; flush pending alerts
	prod.Close()
	prod.WaitClosed()
	return err
}
