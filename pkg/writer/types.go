package writer

import "time"

// ArchiveRow is one row of score_archive. Nil fields are left untouched on
// upsert so a removal never erases what a submission wrote, whatever order
// the two arrive in.
type ArchiveRow struct {
	ID          string     `db:"id"`
	PlayerName  *string    `db:"player_name"`
	Score       *float64   `db:"score"`
	SubmittedAt *time.Time `db:"submitted_at"`
	Stats       []byte     `db:"stats"`
	RemovedAt   *time.Time `db:"removed_at"`
	LastEventAt time.Time  `db:"last_event_at"`
}

func (r ArchiveRow) values() []any {
	var stats any
	if r.Stats != nil {
		stats = string(r.Stats)
	}
	return []any{r.ID, r.PlayerName, r.Score, r.SubmittedAt, stats, r.RemovedAt, r.LastEventAt}
}

var archiveColumns = []string{"id", "player_name", "score", "submitted_at", "stats", "removed_at", "last_event_at"}

// MergeRows folds rows sharing an id into one, keeping the order in which
// ids were first seen. Later non-nil fields win and last_event_at keeps the
// newest value.
func MergeRows(rows []ArchiveRow) []ArchiveRow {
	index := make(map[string]int, len(rows))
	merged := make([]ArchiveRow, 0, len(rows))

	for _, r := range rows {
		i, ok := index[r.ID]
		if !ok {
			index[r.ID] = len(merged)
			merged = append(merged, r)
			continue
		}

		m := &merged[i]
		if r.PlayerName != nil {
			m.PlayerName = r.PlayerName
		}
		if r.Score != nil {
			m.Score = r.Score
		}
		if r.SubmittedAt != nil {
			m.SubmittedAt = r.SubmittedAt
		}
		if r.Stats != nil {
			m.Stats = r.Stats
		}
		if r.RemovedAt != nil {
			m.RemovedAt = r.RemovedAt
		}
		if r.LastEventAt.After(m.LastEventAt) {
			m.LastEventAt = r.LastEventAt
		}
	}
	return merged
}
