package store

import (
	"context"
	"fmt"
	"time"

	"bomet/pkg/score"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// rankIndexName names the compound index backing leaderboard reads.
const rankIndexName = "leaderboard_rank"

// scoreDocument is the BSON shape of a record in the scores collection.
type scoreDocument struct {
	ID         primitive.ObjectID `bson:"_id"`
	PlayerName string             `bson:"playerName"`
	Score      float64            `bson:"score"`
	Date       time.Time          `bson:"date"`
	Stats      []byte             `bson:"stats,omitempty"`
}

func (d scoreDocument) record() score.Record {
	return score.Record{
		ID:          d.ID.Hex(),
		PlayerName:  d.PlayerName,
		Score:       d.Score,
		SubmittedAt: d.Date.UTC(),
		Stats:       d.Stats,
	}
}

// MongoStore implements ScoreStore on a MongoDB collection
type MongoStore struct {
	collection *mongo.Collection
}

// Connect opens a client and verifies the deployment answers a ping before
// returning it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

// NewMongoStore creates a new MongoStore instance
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{collection: coll}
}

// EnsureIndexes creates the compound index matching the leaderboard sort.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    rankSort(),
		Options: options.Index().SetName(rankIndexName),
	})
	if err != nil {
		return fmt.Errorf("failed to create %s index: %w", rankIndexName, err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, rec score.Record) (score.Record, error) {
	doc := scoreDocument{
		ID:         primitive.NewObjectID(),
		PlayerName: rec.PlayerName,
		Score:      rec.Score,
		Date:       rec.SubmittedAt,
		Stats:      rec.Stats,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return score.Record{}, fmt.Errorf("insert score: %w", err)
	}
	return doc.record(), nil
}

func (s *MongoStore) Top(ctx context.Context, limit int) ([]score.Record, error) {
	opts := options.Find().SetSort(rankSort()).SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find top scores: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []scoreDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode top scores: %w", err)
	}

	records := make([]score.Record, len(docs))
	for i, d := range docs {
		records[i] = d.record()
	}
	return records, nil
}

func (s *MongoStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("delete scores: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.collection.Database().Client().Ping(ctx, nil)
}

// rankSort mirrors score.Less.
func rankSort() bson.D {
	return bson.D{
		{Key: "score", Value: -1},
		{Key: "date", Value: 1},
		{Key: "_id", Value: 1},
	}
}

// DecodeRecord decodes a raw scores collection document, as delivered in a
// change stream's fullDocument.
func DecodeRecord(raw bson.Raw) (score.Record, error) {
	var doc scoreDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return score.Record{}, fmt.Errorf("decode score document: %w", err)
	}
	rec := doc.record()
	if rec.Stats != nil {
		// The decoder may alias raw, which change streams reuse.
		rec.Stats = append([]byte(nil), rec.Stats...)
	}
	return rec, nil
}
