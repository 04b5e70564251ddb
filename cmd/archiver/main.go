package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bomet/internal/archive"
	"bomet/pkg/config"
	"bomet/pkg/consumer"
	"bomet/pkg/logger"
	"bomet/pkg/retry"
	"bomet/pkg/server"
	"bomet/pkg/worker"
	"bomet/pkg/writer"

	"go.uber.org/zap"
)

func main() {
	// 1. Load config
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err == nil {
		err = cfg.ValidateArchive()
	}
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: "archiver",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("archiver initializing",
		zap.String("env", cfg.Environment),
		zap.String("postgres", config.MaskURI(cfg.Postgres.URI)),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize PostgreSQL
	pgWriter, err := writer.NewPostgresWriter(ctx, writer.PostgresConfig{
		URI:             cfg.Postgres.URI,
		MinConns:        int32(cfg.Postgres.MinConns),
		MaxConns:        int32(cfg.Postgres.MaxConns),
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
	}, l.Named("writer"))
	if err != nil {
		l.Error("failed to connect to postgres", err)
		os.Exit(1)
	}
	defer pgWriter.Close()

	if err := pgWriter.EnsureSchema(ctx); err != nil {
		l.Error("failed to prepare archive schema", err)
		os.Exit(1)
	}

	// 4. Initialize consumer
	kafkaConsumer := consumer.NewKafkaConsumer(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	})

	// 5. Initialize worker pool
	workerPool := worker.NewWorkerPool(l.Named("worker"), pgWriter, kafkaConsumer, worker.Config{
		Workers:       cfg.Archive.WorkerCount,
		BatchSize:     cfg.Archive.BatchSize,
		FlushInterval: cfg.Archive.FlushInterval,
		Retry:         retry.DefaultOptions(),
	})

	// 6. Create service
	svc := archive.NewService(l, kafkaConsumer, workerPool)

	// 7. Start observability server
	obsServer := server.NewObservability(cfg.Archive.MetricsAddr, l, pgWriter.Ping)
	go func() {
		if err := obsServer.Start(); err != nil {
			l.Error("observability server failed", err)
		}
	}()

	// 8. Start service
	l.Info("archiver starting")
	failed := false
	if err := svc.Start(ctx); err != nil {
		l.Error("archiver failed", err)
		failed = true
	} else {
		l.Info("archiver stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obsServer.Shutdown(shutdownCtx)

	if failed {
		pgWriter.Close()
		l.Sync()
		os.Exit(1)
	}
}
