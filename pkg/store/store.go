// Package store persists leaderboard records.
package store

import (
	"context"

	"bomet/pkg/score"
)

// ScoreStore is the durable collection of submitted scores.
type ScoreStore interface {
	// Insert persists rec and returns it with its assigned ID.
	Insert(ctx context.Context, rec score.Record) (score.Record, error)

	// Top returns at most limit records in leaderboard order.
	Top(ctx context.Context, limit int) ([]score.Record, error)

	// DeleteAll removes every record in a single operation and returns how
	// many were removed.
	DeleteAll(ctx context.Context) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
