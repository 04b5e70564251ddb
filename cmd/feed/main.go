package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bomet/internal/feed"
	"bomet/pkg/changestream"
	"bomet/pkg/config"
	"bomet/pkg/kv"
	"bomet/pkg/logger"
	"bomet/pkg/producer"
	"bomet/pkg/retry"
	"bomet/pkg/server"
	"bomet/pkg/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Load config
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err == nil {
		err = cfg.ValidateFeed()
	}
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: "feed",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("feed service initializing",
		zap.String("env", cfg.Environment),
		zap.String("mongodb", config.MaskURI(cfg.MongoDB.URI)),
		zap.Strings("brokers", cfg.Kafka.Brokers))

	// 3. Initialize MongoDB
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), cfg.MongoDB.ConnectTimeout)
	client, err := store.Connect(connectCtx, cfg.MongoDB.URI)
	cancelConnect()
	if err != nil {
		l.Error("failed to connect to mongodb", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	coll := client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection)

	// 4. Initialize components
	tokens, tokenKey, closeTokens := tokenStore(cfg, l)
	defer closeTokens()

	kafkaProducer := producer.NewKafkaProducer(producer.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	streamWatcher := changestream.NewMongoWatcher(coll)

	// 5. Create service
	svc := feed.NewService(l, tokens, kafkaProducer, streamWatcher, feed.Config{
		TokenKey: tokenKey,
		Retry:    retry.DefaultOptions(),
	})

	// 6. Start observability server
	obsServer := server.NewObservability(cfg.Feed.MetricsAddr, l, func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
	go func() {
		if err := obsServer.Start(); err != nil {
			l.Error("observability server failed", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Start service
	l.Info("feed service starting")
	exitCode := 0
	if err := svc.Start(ctx); err != nil {
		l.Error("feed service failed", err)
		exitCode = 1
	} else {
		l.Info("feed service stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obsServer.Shutdown(shutdownCtx)

	if exitCode != 0 {
		l.Sync()
		os.Exit(exitCode)
	}
}

// tokenStore keeps the resume token in Redis when it is configured, and in
// a local file otherwise.
func tokenStore(cfg *config.AppConfig, l *logger.Logger) (kv.Store, string, func()) {
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		l.Info("resume token in redis", zap.String("addr", cfg.Redis.Addr), zap.String("key", cfg.Feed.ResumeTokenKey))
		return kv.NewRedisStore(rdb, ""), cfg.Feed.ResumeTokenKey, func() { rdb.Close() }
	}

	path := cfg.Feed.ResumeTokenPath
	l.Info("resume token on disk", zap.String("path", path))
	return kv.NewFileStore(filepath.Dir(path)), filepath.Base(path), func() {}
}
