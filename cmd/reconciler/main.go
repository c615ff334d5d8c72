package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/citylore/checkout/internal/config"
	kafkax "github.com/citylore/checkout/internal/kafka"
	"github.com/citylore/checkout/internal/logx"
	"github.com/citylore/checkout/internal/orders"
	"github.com/citylore/checkout/internal/postgres"
	"github.com/citylore/checkout/internal/reconcile"
	"github.com/citylore/checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logx.New(cfg.ServiceName + "-reconciler")
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

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderSettled, 1024, logger)
	prod.Start(ctx)

	svc := &reconcile.Service{
		Ledger:   &orders.Repo{DB: db},
		Stock:    &orders.StockRepo{DB: db},
		Redis:    rdb,
		Producer: prod,
		Service:  cfg.ServiceName + "-reconciler",
		Log:      logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup,
		orders.TopicPaymentConfirmation, cfg.ReconcilerWorkers, logger)

	go func() {
		logger.Info("reconciler consumer started",
			zap.String("group", cfg.ReconcilerGroup),
			zap.String("topic", orders.TopicPaymentConfirmation),
			zap.Int("workers", cfg.ReconcilerWorkers))
		if err := cons.Start(ctx, svc.HandleConfirmation); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}
