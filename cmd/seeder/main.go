package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"bomet/pkg/client"
	"bomet/pkg/logger"
)

var names = []string{"Ana", "Bo", "Chidi", "Dara", "Emeka", "Femi", "Gbenga", "Halima", "Ife", "Jide"}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "leaderboard API base URL")
	count := flag.Int("n", 50, "number of scores to submit")
	workers := flag.Int("c", 4, "concurrent submitters")
	reset := flag.Bool("clear", false, "clear the leaderboard before seeding")
	adminKey := flag.String("key", os.Getenv("ADMIN_KEY"), "admin key for -clear")
	show := flag.Int("show", 10, "print this many leaders when done (0 to skip)")
	flag.Parse()

	l, err := logger.New(logger.Config{Level: "info", Environment: "development", ServiceName: "seeder"})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*baseURL, nil)
	if _, err := c.Health(ctx); err != nil {
		l.Error("leaderboard api is not reachable", err, zap.String("url", *baseURL))
		os.Exit(1)
	}

	if *reset {
		deleted, err := c.Clear(ctx, *adminKey)
		if err != nil {
			l.Error("failed to clear leaderboard", err)
			os.Exit(1)
		}
		l.Info("leaderboard cleared", zap.Int64("deleted", deleted))
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now()
	sent, err := seed(ctx, c, l, *count, *workers, r)
	l.Info("seeding finished", zap.Int("submitted", sent), zap.Duration("took", time.Since(start)))
	if err != nil {
		l.Error("seeding stopped early", err)
	}

	if *show > 0 {
		leaders, err := c.Leaderboard(ctx, *show)
		if err != nil {
			l.Error("failed to read leaderboard", err)
			os.Exit(1)
		}
		for i, rec := range leaders {
			fmt.Printf("%2d. %-10s %8.0f  %s\n", i+1, rec.PlayerName, rec.Score, rec.SubmittedAt.Format(time.RFC3339))
		}
	}
}

// seed submits n generated scores from the given number of goroutines and
// returns how many were accepted. It stops at the first rejected submission.
func seed(ctx context.Context, c *client.Client, l *logger.Logger, n, workers int, r *rand.Rand) (int, error) {
	subs := make([]client.Submission, n)
	for i := range subs {
		subs[i] = randomSubmission(r, i)
	}
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		next     atomic.Int64
		accepted atomic.Int64
		firstErr error
		once     sync.Once
		wg       sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= n || ctx.Err() != nil {
					return
				}
				rec, err := c.SubmitScore(ctx, subs[i])
				if err != nil {
					once.Do(func() {
						firstErr = err
						cancel()
					})
					return
				}
				accepted.Add(1)
				l.Debug("submitted", zap.String("id", rec.ID), zap.String("player", rec.PlayerName))
			}
		}()
	}
	wg.Wait()

	return int(accepted.Load()), firstErr
}

func randomSubmission(r *rand.Rand, i int) client.Submission {
	at := time.Now().UTC().Add(-time.Duration(r.Intn(72*60)) * time.Minute)
	stats, _ := json.Marshal(map[string]int{
		"wave":    r.Intn(20) + 1,
		"kills":   r.Intn(300),
		"shots":   r.Intn(1200),
		"seconds": r.Intn(900) + 30,
	})
	return client.Submission{
		PlayerName: fmt.Sprintf("%s%d", names[r.Intn(len(names))], i),
		Score:      float64(r.Intn(50000)),
		Date:       &at,
		Stats:      stats,
	}
}
