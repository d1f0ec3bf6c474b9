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

	"github.com/ariefcatur/marketplace-checkout/internal/config"
	kafkax "github.com/ariefcatur/marketplace-checkout/internal/kafka"
	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
	"github.com/ariefcatur/marketplace-checkout/internal/postgres"
	"github.com/ariefcatur/marketplace-checkout/internal/redisx"
)

// persister replays order writes that failed after the gateway had already
// taken the payment.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-persister"

	lg, err := logging.New(service, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: cfg.PGMaxConns, AppName: service})
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer untuk re-enqueue attempt berikutnya
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 256, lg)
	prod.Start(ctx)

	repo := &orders.Repo{DB: db}
	retrier := &orders.Retrier{
		// cache ikut di-invalidate supaya GET /api/orders tidak basi
		Store:       &orders.Cache{Store: repo, RDB: rdb},
		Queue:       &orders.Publisher{Producer: prod, Service: service},
		Redis:       rdb,
		Service:     service,
		MaxAttempts: cfg.PersistMaxAttempts,
		Backoff:     2 * time.Second,
		Log:         lg,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.PersisterGroup, orders.TopicOrderPersistRetry, cfg.PersisterWorkers, lg)

	go func() {
		lg.Info("persister consumer started",
			zap.String("group", cfg.PersisterGroup),
			zap.String("topic", orders.TopicOrderPersistRetry),
			zap.Int("workers", cfg.PersisterWorkers))
		if err := cons.Start(ctx, retrier.Handle); err != nil {
			lg.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	lg.Info("shutting down persister...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}
