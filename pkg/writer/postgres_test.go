package writer

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresProtocolSelection(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("protocol selection threshold is 100", prop.ForAll(
		func(size int) bool {
			return ShouldUseCopy(make([]ArchiveRow, size)) == (size >= CopyThreshold)
		},
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestMergeRowsProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("merged ids are unique and keep first-seen order", prop.ForAll(
		func(ids []int) bool {
			rows := make([]ArchiveRow, len(ids))
			for i, id := range ids {
				rows[i] = ArchiveRow{ID: fmt.Sprint(id)}
			}

			merged := MergeRows(rows)

			var want []string
			seen := map[string]bool{}
			for _, r := range rows {
				if !seen[r.ID] {
					seen[r.ID] = true
					want = append(want, r.ID)
				}
			}
			if len(merged) != len(want) {
				return false
			}
			for i := range want {
				if merged[i].ID != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 20)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestMergeRowsCombinesSubmitAndRemove(t *testing.T) {
	t0 := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	name, points := "Ana", 120.0

	submit := ArchiveRow{ID: "a", PlayerName: &name, Score: &points, SubmittedAt: &t0, Stats: []byte(`{}`), LastEventAt: t0}
	remove := ArchiveRow{ID: "a", RemovedAt: &t1, LastEventAt: t1}

	for _, order := range [][]ArchiveRow{{submit, remove}, {remove, submit}} {
		merged := MergeRows(order)
		require.Len(t, merged, 1)

		m := merged[0]
		assert.Equal(t, "Ana", *m.PlayerName)
		assert.Equal(t, 120.0, *m.Score)
		assert.Equal(t, t0, *m.SubmittedAt)
		assert.Equal(t, `{}`, string(m.Stats))
		assert.Equal(t, t1, *m.RemovedAt)
		assert.Equal(t, t1, m.LastEventAt)
	}
}

func TestRowValuesMapNilStatsToNull(t *testing.T) {
	vals := ArchiveRow{ID: "a"}.values()
	require.Len(t, vals, len(archiveColumns))
	assert.Nil(t, vals[4])

	vals = ArchiveRow{ID: "a", Stats: []byte(`{"w":1}`)}.values()
	assert.Equal(t, `{"w":1}`, vals[4])
}
