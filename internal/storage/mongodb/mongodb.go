// Package mongodb is the MongoDB implementation of storage.Storage and the
// connection manager for the document store.
//
// New connects and pings; Close disconnects. Both log the state change.
// Heartbeat failures seen by the driver's server monitor are logged as
// connection errors. Nothing here retries: a failed connect is returned
// to the caller as storage.ErrConnection.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/aanand-mishra/people-lifecycle/internal/config"
	"github.com/aanand-mishra/people-lifecycle/internal/storage"
	"github.com/aanand-mishra/people-lifecycle/internal/types"
)

// Mongo holds the client and the one collection the script works on.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *zap.Logger
}

var _ storage.Storage = (*Mongo)(nil)

// personDocument is the stored shape of a types.Person.
type personDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name,omitempty"`
	Age       *int               `bson:"age,omitempty"`
	Gender    types.Gender       `bson:"gender,omitempty"`
	Salary    *float64           `bson:"salary,omitempty"`
	CreatedAt time.Time          `bson:"createdAt,omitempty"`
	UpdatedAt time.Time          `bson:"updatedAt,omitempty"`
}

func toDocument(p types.Person, id primitive.ObjectID) personDocument {
	return personDocument{
		ID:        id,
		Name:      p.Name,
		Age:       p.Age,
		Gender:    p.Gender,
		Salary:    p.Salary,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (d personDocument) person() types.Person {
	return types.Person{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Age:       d.Age,
		Gender:    d.Gender,
		Salary:    d.Salary,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// New connects to cfg.Mongo.URI, pings the primary and returns a handle
// on cfg.Mongo.Database / cfg.Mongo.Collection. The connection string is
// never logged since it may carry credentials.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Mongo, error) {
	monitor := &event.ServerMonitor{
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			log.Warn("connection error",
				zap.String("connection", e.ConnectionID),
				zap.Duration("after", e.Duration),
				zap.Error(e.Failure))
		},
	}

	opts := options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetConnectTimeout(cfg.Mongo.ConnectTimeout).
		SetServerSelectionTimeout(cfg.Mongo.ConnectTimeout).
		SetServerMonitor(monitor)

	ctx, cancel := context.WithTimeout(ctx, cfg.Mongo.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		log.Error("connection error", zap.Error(err))
		return nil, fmt.Errorf("mongodb.New: %w: connect: %v", storage.ErrConnection, err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		log.Error("connection error", zap.Error(err))
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb.New: %w: ping: %v", storage.ErrConnection, err)
	}

	log.Info("connected",
		zap.String("driver", config.DriverMongo),
		zap.String("database", cfg.Mongo.Database),
		zap.String("collection", cfg.Mongo.Collection))

	return &Mongo{
		client: client,
		coll:   client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection),
		log:    log,
	}, nil
}

// InsertOne inserts p under a freshly generated ObjectID.
func (m *Mongo) InsertOne(ctx context.Context, p types.Person) (types.Person, error) {
	doc := toDocument(p, primitive.NewObjectID())
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return types.Person{}, fmt.Errorf("InsertOne: %w: %v", storage.ErrQuery, err)
	}
	return doc.person(), nil
}

// InsertMany is an unordered bulk insert: the server attempts every
// document and reports the failed ones by index. IDs are assigned here
// so successful entries can be returned without a read-back.
func (m *Mongo) InsertMany(ctx context.Context, ps []types.Person) ([]types.Person, error) {
	if len(ps) == 0 {
		return []types.Person{}, nil
	}

	docs := make([]interface{}, len(ps))
	out := make([]types.Person, len(ps))
	for i, p := range ps {
		doc := toDocument(p, primitive.NewObjectID())
		docs[i] = doc
		out[i] = doc.person()
	}

	_, err := m.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return out, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || (len(bwe.WriteErrors) == 0 && bwe.WriteConcernError == nil) {
		// Not a per-document failure (network, command error...): treat
		// the whole batch as failed.
		return nil, fmt.Errorf("InsertMany: %w: %v", storage.ErrQuery, err)
	}

	failed := &storage.InsertError{}
	for _, we := range bwe.WriteErrors {
		failed.Add(we.Index, fmt.Errorf("%w: code %d: %s", storage.ErrQuery, we.Code, we.Message))
		if we.Index >= 0 && we.Index < len(out) {
			out[we.Index].ID = ""
		}
	}
	// A write concern error means the documents without a write error
	// were applied; they stay in out with their IDs.
	if wce := bwe.WriteConcernError; wce != nil {
		failed.Unacknowledged = fmt.Errorf("%w: code %d: %s", storage.ErrUnacknowledged, wce.Code, wce.Message)
		m.log.Warn("insert not acknowledged", zap.Int("code", wce.Code), zap.String("reason", wce.Message))
	}
	return out, failed.OrNil()
}

// Find returns matching documents sorted ascending by opts.Sort.
func (m *Mongo) Find(ctx context.Context, filter types.Filter, opts types.FindOptions) ([]types.Person, error) {
	q, err := filterDocument(filter)
	if err != nil {
		return nil, fmt.Errorf("Find: %w: %v", storage.ErrQuery, err)
	}
	findOpts, err := findOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("Find: %w: %v", storage.ErrQuery, err)
	}

	cursor, err := m.coll.Find(ctx, q, findOpts)
	if err != nil {
		return nil, fmt.Errorf("Find: %w: %v", storage.ErrQuery, err)
	}
	defer cursor.Close(ctx)

	var docs []personDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("Find: %w: decode: %v", storage.ErrQuery, err)
	}

	people := make([]types.Person, 0, len(docs))
	for _, d := range docs {
		people = append(people, d.person())
	}
	return people, nil
}

// Count returns the number of documents matching filter.
func (m *Mongo) Count(ctx context.Context, filter types.Filter) (int64, error) {
	q, err := filterDocument(filter)
	if err != nil {
		return 0, fmt.Errorf("Count: %w: %v", storage.ErrQuery, err)
	}
	n, err := m.coll.CountDocuments(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("Count: %w: %v", storage.ErrQuery, err)
	}
	return n, nil
}

// DeleteMany removes every document matching filter.
func (m *Mongo) DeleteMany(ctx context.Context, filter types.Filter) (types.DeleteResult, error) {
	q, err := filterDocument(filter)
	if err != nil {
		return types.DeleteResult{}, fmt.Errorf("DeleteMany: %w: %v", storage.ErrQuery, err)
	}
	res, err := m.coll.DeleteMany(ctx, q)
	if err != nil {
		return types.DeleteResult{}, fmt.Errorf("DeleteMany: %w: %v", storage.ErrQuery, err)
	}
	return types.DeleteResult{Deleted: res.DeletedCount}, nil
}

// UpdateMany applies patch as a $set to every document matching filter.
func (m *Mongo) UpdateMany(ctx context.Context, filter types.Filter, patch types.Patch) (types.UpdateResult, error) {
	q, err := filterDocument(filter)
	if err != nil {
		return types.UpdateResult{}, fmt.Errorf("UpdateMany: %w: %v", storage.ErrQuery, err)
	}
	res, err := m.coll.UpdateMany(ctx, q, updateDocument(patch))
	if err != nil {
		return types.UpdateResult{}, fmt.Errorf("UpdateMany: %w: %v", storage.ErrQuery, err)
	}
	return types.UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		m.log.Error("connection error", zap.Error(err))
		return fmt.Errorf("mongodb.Close: %w: %v", storage.ErrConnection, err)
	}
	m.log.Info("disconnected", zap.String("driver", config.DriverMongo))
	return nil
}
