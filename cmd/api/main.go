package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bomet/internal/api"
	"bomet/internal/leaderboard"
	"bomet/pkg/config"
	"bomet/pkg/logger"
	"bomet/pkg/server"
	"bomet/pkg/store"

	"go.uber.org/zap"
)

func main() {
	// 1. Load config
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("leaderboard api initializing",
		zap.String("env", cfg.Environment),
		zap.String("mongodb", config.MaskURI(cfg.MongoDB.URI)),
		logger.Secret("admin_key", cfg.Admin.Key))
	if cfg.Admin.Key == "" {
		l.Warn("ADMIN_KEY is not set, leaderboard clearing is disabled")
	}

	// 3. Connect to MongoDB before listening
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), cfg.MongoDB.ConnectTimeout)
	client, err := store.Connect(connectCtx, cfg.MongoDB.URI)
	if err != nil {
		cancelConnect()
		l.Error("failed to connect to mongodb", err, zap.String("uri", config.MaskURI(cfg.MongoDB.URI)))
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	scores := store.NewMongoStore(client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection))
	if err := scores.EnsureIndexes(connectCtx); err != nil {
		cancelConnect()
		l.Error("failed to create leaderboard index", err)
		os.Exit(1)
	}
	cancelConnect()
	l.Info("connected to mongodb", zap.String("database", cfg.MongoDB.Database))

	// 4. Service and transport
	svc := leaderboard.NewService(l.Named("leaderboard"), scores, leaderboard.Config{
		AdminKey:         cfg.Admin.Key,
		MaxLimit:         cfg.Leaderboard.MaxLimit,
		OperationTimeout: cfg.MongoDB.OperationTimeout,
	})
	handler := api.NewHandler(l, svc, api.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		WelcomePage:    cfg.HTTP.WelcomePage,
		StaticDir:      cfg.HTTP.StaticDir,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	})
	srv := server.New("api", cfg.HTTP.Addr(), handler, l)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Serve until signalled
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			l.Error("http server failed", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		l.Info("leaderboard api stopping")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("graceful shutdown failed", err)
	}
}
