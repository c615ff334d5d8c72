package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/citylore/checkout/internal/catalog"
	"github.com/citylore/checkout/internal/checkout"
	"github.com/citylore/checkout/internal/config"
	"github.com/citylore/checkout/internal/httpx"
	kafkax "github.com/citylore/checkout/internal/kafka"
	"github.com/citylore/checkout/internal/logx"
	"github.com/citylore/checkout/internal/orders"
	"github.com/citylore/checkout/internal/payments"
	"github.com/citylore/checkout/internal/postgres"
	"github.com/citylore/checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logx.New(cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr, cfg.RedisDB)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, logger)
	prod.Start(ctx)

	provider, err := payments.NewStripeProvider(cfg.StripeSecretKey, logger)
	if err != nil {
		logger.Fatal("stripe", zap.Error(err))
	}

	svc := &checkout.Service{
		Pricer:   &catalog.Pricer{Catalog: &catalog.Repo{DB: db}},
		Ledger:   &orders.Repo{DB: db},
		Provider: provider,
		Producer: prod,
		Service:  cfg.ServiceName,
		Log:      logger,
	}

	router := httpx.NewRouter(
		&httpx.CheckoutHandler{Svc: svc, Log: logger},
		&httpx.OrderHandler{Orders: &orders.Repo{DB: db}, Log: logger},
		httpx.RateLimit(rdb, cfg.OrderRateLimit, cfg.OrderRateWindow, logger),
	)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
	prod.Close()
	cancel()
	prod.WaitClosed()
}
