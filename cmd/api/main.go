package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront-checkout/internal/address"
	"github.com/ariefcatur/go-storefront-checkout/internal/cart"
	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/config"
	"github.com/ariefcatur/go-storefront-checkout/internal/httpx"
	"github.com/ariefcatur/go-storefront-checkout/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/logx"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/postgres"
	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("api exited")
	}
	log.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer, shared by every topic
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.ServiceName, reg)

	coupons, err := loadCoupons(cfg.CouponsFile)
	if err != nil {
		return err
	}

	stock := &inventory.PGStore{DB: db, TTL: cfg.ReservationTTL}
	ords := &orders.Repo{DB: db}
	book := &address.PGBook{DB: db}
	carts := &cart.Service{Store: &cart.RedisStore{Redis: rdb}, Catalog: stock}
	orch := &checkout.Orchestrator{
		Pricing: pricing.Engine{Policy: pricing.Policy{
			TaxRate:               cfg.TaxRate,
			FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
			DeliveryFee:           cfg.DeliveryFee,
			CODSurcharge:          cfg.CODSurcharge,
		}},
		Inventory: stock,
		Orders:    ords,
		Addresses: book,
		Carts:     carts,
		Attempts:  &checkout.RedisAttempts{Redis: rdb},
		Payments:  checkout.ApproveAll{},
		Coupons:   coupons,
		Redeemer:  coupons,
		Events:    prod,
		Metrics:   m,
		Log:       log,
		Service:   cfg.ServiceName,
	}

	router := httpx.NewRouter(log, m)
	httpx.Mount(router, &httpx.Authenticator{Secret: []byte(cfg.JWTSecret)},
		&httpx.CheckoutHandler{Checkout: orch, Limiter: httpx.NewRateLimiter(cfg.PlaceRatePerSec, cfg.PlaceBurst), Log: log},
		&httpx.OrdersHandler{Orders: ords, Checkout: orch, Redis: rdb, Log: log},
		&httpx.InventoryHandler{Store: stock, Log: log},
		&httpx.CartHandler{Cart: carts, Log: log},
		&httpx.AddressHandler{Book: book, Log: log},
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		// in-flight placements may still publish until Shutdown returns
		prod.Close()
		prod.WaitClosed()
		return err
	})
	return g.Wait()
}

func loadCoupons(path string) (*checkout.MemoryCoupons, error) {
	if path == "" {
		return checkout.NewMemoryCoupons(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return checkout.LoadCoupons(f)
}
