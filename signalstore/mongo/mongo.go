// Package mongo provides a signalstore.Store backed by MongoDB, for
// recordings that must be durable and independently queryable outside the
// engine process. Metadata and events for a recording are stored as a
// single document; events are appended via $push to preserve order exactly
// as the engine emits them.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/signalstore"
)

const defaultCollection = "recordings"
const defaultOpTimeout = 5 * time.Second

// Options configures the Mongo-backed store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store is a MongoDB-backed signalstore.Store.
type Store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

type wireEvent struct {
	ID        string       `bson:"id"`
	Name      string       `bson:"name"`
	Payload   any          `bson:"payload"`
	Timestamp int64        `bson:"timestamp"`
	Source    event.Source `bson:"source"`
}

type document struct {
	ID          string      `bson:"_id"`
	Name        string      `bson:"name"`
	Tags        []string    `bson:"tags"`
	CreatedAt   time.Time   `bson:"createdAt"`
	FinalizedAt time.Time   `bson:"finalizedAt,omitempty"`
	DurationMs  int64       `bson:"durationMs"`
	Events      []wireEvent `bson:"events"`
}

func (d document) metadata() signalstore.Metadata {
	return signalstore.Metadata{
		ID:          d.ID,
		Name:        d.Name,
		Tags:        d.Tags,
		CreatedAt:   d.CreatedAt,
		FinalizedAt: d.FinalizedAt,
		DurationMs:  d.DurationMs,
	}
}

// New constructs a Store. opts.Client and opts.Database are required.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("signalstore/mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("signalstore/mongo: database is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)
	return &Store{coll: coll, timeout: timeout}, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Create(ctx context.Context, name string, tags []string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := document{
		ID:        uuid.New().String(),
		Name:      name,
		Tags:      tags,
		CreatedAt: time.Now(),
		Events:    []wireEvent{},
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("signalstore/mongo: insert: %w", err)
	}
	return doc.ID, nil
}

func (s *Store) AppendBatch(ctx context.Context, id string, events []event.Event) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if len(events) == 0 {
		return nil
	}
	wire := make([]wireEvent, len(events))
	for i, evt := range events {
		wire[i] = wireEvent{
			ID:        evt.ID(),
			Name:      evt.Name(),
			Payload:   evt.Payload(),
			Timestamp: evt.Timestamp(),
			Source:    evt.Source(),
		}
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$push": bson.M{"events": bson.M{"$each": wire}}},
	)
	if err != nil {
		return fmt.Errorf("signalstore/mongo: append: %w", err)
	}
	if res.MatchedCount == 0 {
		return signalstore.ErrNotFound
	}
	return nil
}

func (s *Store) Finalize(ctx context.Context, id string, durationMs int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"finalizedAt": time.Now(), "durationMs": durationMs}},
	)
	if err != nil {
		return fmt.Errorf("signalstore/mongo: finalize: %w", err)
	}
	if res.MatchedCount == 0 {
		return signalstore.ErrNotFound
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*signalstore.Recording, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc document
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, signalstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("signalstore/mongo: load: %w", err)
	}
	events := make([]event.Event, len(doc.Events))
	for i, w := range doc.Events {
		events[i] = event.New(w.ID, w.Name, w.Payload, w.Source)
	}
	return &signalstore.Recording{Metadata: doc.metadata(), Events: events}, nil
}

func (s *Store) List(ctx context.Context, q signalstore.Query) ([]signalstore.Metadata, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{"events": 0})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("signalstore/mongo: list: %w", err)
	}
	defer cur.Close(ctx)

	var out []signalstore.Metadata
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("signalstore/mongo: decode: %w", err)
		}
		meta := doc.metadata()
		if q.Matches(meta) {
			out = append(out, meta)
		}
	}
	return out, cur.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("signalstore/mongo: delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return signalstore.ErrNotFound
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("signalstore/mongo: exists: %w", err)
	}
	return n > 0, nil
}

var _ signalstore.Store = (*Store)(nil)
