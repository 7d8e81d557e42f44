package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/richardliu001/marketplace-ledger/internal/config"
	"github.com/richardliu001/marketplace-ledger/internal/logger"
	"github.com/richardliu001/marketplace-ledger/internal/outbox"
	"github.com/richardliu001/marketplace-ledger/internal/repo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/segmentio/kafka-go"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "internal/config/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	if cfg.Storage.Driver != config.DriverPostgres {
		log.Fatalf("outbox relay needs the %s driver, got %q", config.DriverPostgres, cfg.Storage.Driver)
	}

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{},
	}
	defer kw.Close()

	relay := outbox.NewRelay(repo.NewOutboxRepo(gdb), kw, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("outbox poller started", "topic", cfg.Kafka.Topic, "interval", cfg.Outbox.Interval)
	relay.Run(ctx, cfg.Outbox.Interval, cfg.Outbox.BatchSize)
	log.Info("outbox poller stopped")
}
