// Package people is the repository over the Person collection.
//
// Every write goes through here: records and patches are validated (and
// names trimmed) before the backend sees them, and createdAt/updatedAt
// are stamped from the repository's clock. The backend is any
// storage.Storage, injected by the caller.
package people

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aanand-mishra/people-lifecycle/internal/storage"
	"github.com/aanand-mishra/people-lifecycle/internal/types"
	"github.com/aanand-mishra/people-lifecycle/internal/validate"
)

// Repository validates and timestamps records on their way into a
// storage.Storage.
type Repository struct {
	store storage.Storage
	log   *zap.Logger
	now   func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock replaces time.Now as the source of timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New returns a repository over store.
func New(store storage.Storage, log *zap.Logger, opts ...Option) *Repository {
	r := &Repository{
		store: store,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// stamp returns the current time at the millisecond precision MongoDB
// stores, in UTC.
func (r *Repository) stamp() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

// InsertOne validates p and persists it. The stored record, including
// its generated ID and timestamps, is returned.
func (r *Repository) InsertOne(ctx context.Context, p types.Person) (types.Person, error) {
	valid, err := validate.Person(p)
	if err != nil {
		return types.Person{}, fmt.Errorf("insert %q: %w", p.Name, err)
	}

	now := r.stamp()
	valid.CreatedAt, valid.UpdatedAt = now, now

	stored, err := r.store.InsertOne(ctx, valid)
	if err != nil {
		return types.Person{}, fmt.Errorf("insert %q: %w", valid.Name, err)
	}

	r.log.Debug("person inserted", zap.String("id", stored.ID), zap.String("name", stored.Name))
	return stored, nil
}

// InsertMany is best-effort. Records that fail validation are not sent;
// the rest are written in one unordered batch. The returned slice holds
// only the records that were stored, in input order. When anything
// failed, the error is a *storage.InsertError keyed by input index.
// Records the backend wrote without an acknowledged write concern are
// returned as stored and flagged in InsertError.Unacknowledged.
func (r *Repository) InsertMany(ctx context.Context, ps []types.Person) ([]types.Person, error) {
	failed := &storage.InsertError{}

	now := r.stamp()
	batch := make([]types.Person, 0, len(ps))
	origin := make([]int, 0, len(ps)) // batch index -> input index

	for i, p := range ps {
		valid, err := validate.Person(p)
		if err != nil {
			failed.Add(i, err)
			continue
		}
		valid.CreatedAt, valid.UpdatedAt = now, now
		batch = append(batch, valid)
		origin = append(origin, i)
	}

	stored := make([]types.Person, 0, len(batch))
	if len(batch) > 0 {
		out, err := r.store.InsertMany(ctx, batch)
		switch e := err.(type) {
		case nil:
		case *storage.InsertError:
			for bi, ferr := range e.Failures {
				failed.Add(origin[bi], ferr)
			}
			failed.Unacknowledged = e.Unacknowledged
		default:
			// The whole batch was rejected.
			for _, i := range origin {
				failed.Add(i, e)
			}
			out = nil
		}
		for _, p := range out {
			if p.ID != "" {
				stored = append(stored, p)
			}
		}
	}

	r.log.Debug("batch inserted", zap.Int("requested", len(ps)), zap.Int("stored", len(stored)))
	return stored, failed.OrNil()
}

// FindSorted returns records matching filter, sorted ascending by
// sortKey, projected to projection (id is always included) and capped at
// limit. limit 0 means no cap.
func (r *Repository) FindSorted(ctx context.Context, filter types.Filter, sortKey types.Field, projection []types.Field, limit int64) ([]types.Person, error) {
	if limit < 0 {
		return nil, fmt.Errorf("find: %w: negative limit %d", storage.ErrQuery, limit)
	}
	if sortKey != "" && !sortKey.Valid() {
		return nil, fmt.Errorf("find: %w: unknown sort field %q", storage.ErrQuery, sortKey)
	}
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("find: %w: %v", storage.ErrQuery, err)
	}

	people, err := r.store.Find(ctx, filter, types.FindOptions{
		Sort:       sortKey,
		Projection: projection,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return people, nil
}

// Count returns how many records match filter.
func (r *Repository) Count(ctx context.Context, filter types.Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, fmt.Errorf("count: %w: %v", storage.ErrQuery, err)
	}
	n, err := r.store.Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// DeleteMany removes every record matching filter. An empty filter
// empties the collection.
func (r *Repository) DeleteMany(ctx context.Context, filter types.Filter) (types.DeleteResult, error) {
	if err := filter.Validate(); err != nil {
		return types.DeleteResult{}, fmt.Errorf("delete: %w: %v", storage.ErrQuery, err)
	}
	res, err := r.store.DeleteMany(ctx, filter)
	if err != nil {
		return types.DeleteResult{}, fmt.Errorf("delete: %w", err)
	}
	return res, nil
}

// UpdateMany merges patch into every record matching filter: fields the
// patch leaves nil keep their stored values. The patch is validated with
// the same rules as inserts, so an update can never store an invalid
// record. An empty patch is a no-op and touches nothing.
func (r *Repository) UpdateMany(ctx context.Context, filter types.Filter, patch types.Patch) (types.UpdateResult, error) {
	if err := filter.Validate(); err != nil {
		return types.UpdateResult{}, fmt.Errorf("update: %w: %v", storage.ErrQuery, err)
	}
	valid, err := validate.Patch(patch)
	if err != nil {
		return types.UpdateResult{}, fmt.Errorf("update: %w", err)
	}
	if valid.Empty() {
		return types.UpdateResult{}, nil
	}

	valid.UpdatedAt = r.stamp()
	res, err := r.store.UpdateMany(ctx, filter, valid)
	if err != nil {
		return types.UpdateResult{}, fmt.Errorf("update: %w", err)
	}
	return res, nil
}
