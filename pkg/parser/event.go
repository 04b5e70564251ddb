// Package parser encodes and decodes score events on the wire and maps them
// to archive rows.
package parser

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"bomet/pkg/score"
	"bomet/pkg/writer"
)

// EventTypeHeader carries the event type next to the payload.
const EventTypeHeader = "event-type"

// EncodeScoreEvent validates ev and renders it as JSON.
func EncodeScoreEvent(ev score.Event) ([]byte, error) {
	if err := validate(ev); err != nil {
		return nil, err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode score event: %w", err)
	}
	return data, nil
}

// ParseScoreEvent decodes and validates a score event.
func ParseScoreEvent(data []byte) (score.Event, error) {
	var ev score.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return score.Event{}, fmt.Errorf("failed to unmarshal score event: %w", err)
	}
	if err := validate(ev); err != nil {
		return score.Event{}, err
	}
	return ev, nil
}

func validate(ev score.Event) error {
	if ev.ID == "" {
		return errors.New("missing event id")
	}
	if ev.RecordID == "" {
		return errors.New("missing record id")
	}
	if ev.OccurredAt.IsZero() {
		return errors.New("missing occurred_at")
	}

	switch ev.Type {
	case score.Submitted:
		if ev.Record == nil {
			return errors.New("submitted event without record")
		}
		if ev.Record.ID != ev.RecordID {
			return fmt.Errorf("record id %q does not match event record id %q", ev.Record.ID, ev.RecordID)
		}
		if ev.Record.PlayerName == "" || !score.IsFinite(ev.Record.Score) {
			return errors.New("submitted record is not a valid score")
		}
	case score.Removed:
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

// ArchiveRow maps a validated event onto the archive table. Removed events
// only touch removed_at.
func ArchiveRow(ev score.Event) writer.ArchiveRow {
	row := writer.ArchiveRow{
		ID:          ev.RecordID,
		LastEventAt: ev.OccurredAt.UTC(),
	}

	if ev.Type == score.Removed {
		at := ev.OccurredAt.UTC()
		row.RemovedAt = &at
		return row
	}

	rec := ev.Record
	name, points, submitted := rec.PlayerName, rec.Score, rec.SubmittedAt.UTC()
	row.PlayerName = &name
	row.Score = &points
	row.SubmittedAt = &submitted
	if len(rec.Stats) > 0 && json.Valid(rec.Stats) {
		row.Stats = []byte(rec.Stats)
	}
	return row
}
