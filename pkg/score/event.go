package score

import "time"

// EventType names what happened to a record.
type EventType string

const (
	Submitted EventType = "score.submitted"
	Removed   EventType = "score.removed"
)

// Event is a change to the leaderboard as published on the score feed.
// Record is only set for Submitted events.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	RecordID   string    `json:"record_id"`
	Record     *Record   `json:"record,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
