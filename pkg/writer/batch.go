package writer

import (
	"sync"
	"time"

	"bomet/pkg/consumer"
)

// Record pairs a row with the message it came from, so the offset can be
// committed once the row is written.
type Record struct {
	Row     ArchiveRow
	Message consumer.Message
	// Skip records only carry an offset to commit.
	Skip bool
}

// BatchBuffer accumulates records until a size or age limit is reached.
type BatchBuffer interface {
	// Add appends a record and reports whether the buffer is full.
	Add(record Record) bool

	Flush() []Record

	Size() int

	// ShouldFlush reports whether the oldest buffered record has waited
	// at least maxAge.
	ShouldFlush(maxAge time.Duration) bool
}

type InMemoryBuffer struct {
	mu       sync.Mutex
	records  []Record
	capacity int
	oldest   time.Time
	now      func() time.Time
}

func NewInMemoryBuffer(capacity int) *InMemoryBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &InMemoryBuffer{
		records:  make([]Record, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

func (b *InMemoryBuffer) Add(record Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) == 0 {
		b.oldest = b.now()
	}
	b.records = append(b.records, record)
	return len(b.records) >= b.capacity
}

func (b *InMemoryBuffer) Flush() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.records
	b.records = make([]Record, 0, b.capacity)
	b.oldest = time.Time{}
	return batch
}

func (b *InMemoryBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

func (b *InMemoryBuffer) ShouldFlush(maxAge time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) == 0 {
		return false
	}
	return b.now().Sub(b.oldest) >= maxAge
}

// Rows returns the archive rows of a flushed batch, leaving out skips.
func Rows(records []Record) []ArchiveRow {
	rows := make([]ArchiveRow, 0, len(records))
	for _, r := range records {
		if !r.Skip {
			rows = append(rows, r.Row)
		}
	}
	return rows
}
