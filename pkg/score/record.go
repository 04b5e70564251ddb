// Package score defines the leaderboard entry and its ranking order.
package score

import (
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// DefaultLimit is the leaderboard size returned when no usable limit is given.
const DefaultLimit = 10

// Record is a single submitted score. Records are never modified after the
// store assigns their ID.
type Record struct {
	ID          string          `json:"_id"`
	PlayerName  string          `json:"playerName"`
	Score       float64         `json:"score"`
	SubmittedAt time.Time       `json:"date"`
	Stats       json.RawMessage `json:"stats,omitempty"`
}

// Less reports whether a ranks before b: higher score first, then earlier
// submission, then lower ID so the order is total.
func Less(a, b Record) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.ID < b.ID
}

// Rank sorts records in leaderboard order in place.
func Rank(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return Less(records[i], records[j])
	})
}

// Top returns at most limit records in leaderboard order. The input is not
// modified.
func Top(records []Record, limit int) []Record {
	ranked := make([]Record, len(records))
	copy(ranked, records)
	Rank(ranked)
	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// IsFinite reports whether v can be stored as a score.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
