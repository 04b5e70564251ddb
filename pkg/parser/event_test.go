package parser

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"bomet/pkg/score"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var occurred = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

func submitted(id, name string, points float64) score.Event {
	return score.Event{
		ID:       "evt-" + id,
		Type:     score.Submitted,
		RecordID: id,
		Record: &score.Record{
			ID:          id,
			PlayerName:  name,
			Score:       points,
			SubmittedAt: occurred.Add(-time.Second),
			Stats:       json.RawMessage(`{"wave":3}`),
		},
		OccurredAt: occurred,
	}
}

func TestSubmittedEventsSurviveTheWire(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("archive row reflects the submitted record", prop.ForAll(
		func(id, name string, points float64) bool {
			data, err := EncodeScoreEvent(submitted(id, name, points))
			if err != nil {
				return false
			}
			ev, err := ParseScoreEvent(data)
			if err != nil {
				return false
			}
			row := ArchiveRow(ev)
			return row.ID == id &&
				*row.PlayerName == name &&
				*row.Score == points &&
				row.SubmittedAt.Equal(occurred.Add(-time.Second)) &&
				row.RemovedAt == nil &&
				row.LastEventAt.Equal(occurred) &&
				string(row.Stats) == `{"wave":3}`
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("non-JSON payloads are rejected", prop.ForAll(
		func(data string) bool {
			if json.Valid([]byte(data)) {
				return true
			}
			_, err := ParseScoreEvent([]byte(data))
			return err != nil
		},
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRemovedEventRow(t *testing.T) {
	data := []byte(`{"id":"e1","type":"score.removed","record_id":"abc","occurred_at":"2024-07-01T09:30:00Z"}`)

	ev, err := ParseScoreEvent(data)
	require.NoError(t, err)
	assert.Equal(t, score.Removed, ev.Type)
	assert.Nil(t, ev.Record)

	row := ArchiveRow(ev)
	assert.Equal(t, "abc", row.ID)
	require.NotNil(t, row.RemovedAt)
	assert.True(t, row.RemovedAt.Equal(occurred))
	assert.Nil(t, row.PlayerName)
	assert.Nil(t, row.Score)
	assert.Nil(t, row.Stats)
}

func TestParseRejectsInvalidEvents(t *testing.T) {
	cases := map[string]string{
		"missing id":      `{"type":"score.removed","record_id":"a","occurred_at":"2024-07-01T09:30:00Z"}`,
		"missing record":  `{"id":"e","type":"score.submitted","record_id":"a","occurred_at":"2024-07-01T09:30:00Z"}`,
		"unknown type":    `{"id":"e","type":"score.updated","record_id":"a","occurred_at":"2024-07-01T09:30:00Z"}`,
		"no record id":    `{"id":"e","type":"score.removed","occurred_at":"2024-07-01T09:30:00Z"}`,
		"no time":         `{"id":"e","type":"score.removed","record_id":"a"}`,
		"id mismatch":     `{"id":"e","type":"score.submitted","record_id":"a","record":{"_id":"b","playerName":"x","score":1,"date":"2024-07-01T09:30:00Z"},"occurred_at":"2024-07-01T09:30:00Z"}`,
		"blank player":    `{"id":"e","type":"score.submitted","record_id":"a","record":{"_id":"a","playerName":"","score":1,"date":"2024-07-01T09:30:00Z"},"occurred_at":"2024-07-01T09:30:00Z"}`,
		"wrong json type": `{"id":5}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScoreEvent([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestEncodeRejectsInvalidEvents(t *testing.T) {
	ev := submitted("a", "Ana", math.Inf(1))
	_, err := EncodeScoreEvent(ev)
	assert.Error(t, err)

	ev = submitted("a", "Ana", 1)
	ev.Type = "score.renamed"
	_, err = EncodeScoreEvent(ev)
	assert.Error(t, err)
}

func TestArchiveRowDropsNonJSONStats(t *testing.T) {
	ev := submitted("a", "Ana", 1)
	ev.Record.Stats = json.RawMessage(`not json`)
	assert.Nil(t, ArchiveRow(ev).Stats)
}
