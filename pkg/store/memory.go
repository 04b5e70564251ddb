package store

import (
	"context"
	"sync"

	"bomet/pkg/score"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-process ScoreStore for tests and local runs. IDs are
// ObjectIDs so ordering ties break the same way as in MongoDB.
type MemoryStore struct {
	mu      sync.RWMutex
	records []score.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(ctx context.Context, rec score.Record) (score.Record, error) {
	if err := ctx.Err(); err != nil {
		return score.Record{}, err
	}
	rec.ID = primitive.NewObjectID().Hex()
	if rec.Stats != nil {
		rec.Stats = append([]byte(nil), rec.Stats...)
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return rec, nil
}

func (s *MemoryStore) Top(ctx context.Context, limit int) ([]score.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return score.Top(s.records, limit), nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.records))
	s.records = nil
	return n, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
