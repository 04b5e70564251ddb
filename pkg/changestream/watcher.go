// Package changestream tails the scores collection and reports inserted and
// deleted records.
package changestream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bomet/pkg/score"
	"bomet/pkg/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	OpInsert = "insert"
	OpDelete = "delete"
)

// Change is one insert or delete on the scores collection.
type Change struct {
	// EventID identifies the change stream event, stable across resumes.
	EventID   string
	Operation string
	RecordID  string
	// Record is set for inserts.
	Record      *score.Record
	ClusterTime time.Time
	ResumeToken bson.Raw
	// Err is set when the event could not be decoded. The change still
	// carries its resume token so the reader can move past it.
	Err error
}

// Watcher streams scores collection changes.
type Watcher interface {
	// Watch starts after resumeToken, or at the current time when it is nil.
	Watch(ctx context.Context, resumeToken bson.Raw) (<-chan Change, <-chan error)

	Close() error
}

// MongoWatcher implements Watcher with a MongoDB change stream.
type MongoWatcher struct {
	collection *mongo.Collection

	mu     sync.Mutex
	stream *mongo.ChangeStream
}

func NewMongoWatcher(coll *mongo.Collection) *MongoWatcher {
	return &MongoWatcher{
		collection: coll,
	}
}

// pipeline keeps only the operations the leaderboard can produce.
func pipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{OpInsert, OpDelete}}}},
		}}},
	}
}

func (w *MongoWatcher) Watch(ctx context.Context, resumeToken bson.Raw) (<-chan Change, <-chan error) {
	changes := make(chan Change)
	errs := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errs)

		opts := options.ChangeStream()
		if resumeToken != nil {
			opts.SetResumeAfter(resumeToken)
		}

		stream, err := w.collection.Watch(ctx, pipeline(), opts)
		if err != nil {
			errs <- fmt.Errorf("failed to open change stream: %w", err)
			return
		}
		w.mu.Lock()
		w.stream = stream
		w.mu.Unlock()
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			change := toChange(stream.Current, stream.ResumeToken())

			select {
			case changes <- change:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("change stream error: %w", err)
		}
	}()

	return changes, errs
}

// toChange never fails: an undecodable event comes back with Err set.
func toChange(raw, resumeToken bson.Raw) Change {
	change, err := parseEvent(raw)
	if err != nil {
		change.Err = fmt.Errorf("failed to parse change event: %w", err)
	}
	change.ResumeToken = append(bson.Raw(nil), resumeToken...)
	return change
}

// parseEvent returns whatever it could read from the envelope together with
// any error, so a bad document is still identifiable.
func parseEvent(raw bson.Raw) (Change, error) {
	var event struct {
		ID            bson.Raw            `bson:"_id"`
		OperationType string              `bson:"operationType"`
		FullDocument  bson.Raw            `bson:"fullDocument"`
		DocumentKey   struct {
			ID primitive.ObjectID `bson:"_id"`
		} `bson:"documentKey"`
		ClusterTime primitive.Timestamp `bson:"clusterTime"`
	}
	if err := bson.Unmarshal(raw, &event); err != nil {
		return Change{}, err
	}
	if event.DocumentKey.ID.IsZero() {
		return Change{}, errors.New("change event has no document key")
	}

	change := Change{
		EventID:     eventID(event.ID),
		Operation:   event.OperationType,
		RecordID:    event.DocumentKey.ID.Hex(),
		ClusterTime: time.Unix(int64(event.ClusterTime.T), 0).UTC(),
	}

	switch event.OperationType {
	case OpInsert:
		if len(event.FullDocument) == 0 {
			return change, fmt.Errorf("insert of %s carries no document", change.RecordID)
		}
		rec, err := store.DecodeRecord(event.FullDocument)
		if err != nil {
			return change, err
		}
		change.Record = &rec
	case OpDelete:
	default:
		return change, fmt.Errorf("unexpected operation %q", event.OperationType)
	}
	return change, nil
}

// eventID reads the resume token's _data string, falling back to the raw
// document's string form.
func eventID(id bson.Raw) string {
	if v, err := id.LookupErr("_data"); err == nil {
		if s, ok := v.StringValueOK(); ok {
			return s
		}
	}
	return id.String()
}

func (w *MongoWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stream != nil {
		return w.stream.Close(context.Background())
	}
	return nil
}
