// Package storage defines the Storage interface, a contract that any
// document backend must satisfy to hold Person records.
//
// WHY AN INTERFACE?
// ─────────────────
// The repository and the task sequencer should not know or care which
// database they are talking to. By depending only on this interface:
//
//   - Switching backends = implement the interface for the new store,
//     change the driver in config. Zero repository changes.
//
//   - Writing tests = use the embedded SQLite backend in a temp dir.
//     No MongoDB server needed for unit tests.
//
// Backends persist records exactly as handed to them. Validation,
// trimming and timestamps are the repository's job (internal/people).
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/people-lifecycle/internal/types"
)

// Error kinds. Backends wrap driver errors with one of these so callers
// can branch with errors.Is without importing a driver package.
var (
	ErrConnection = errors.New("connection error")
	ErrValidation = errors.New("validation error")
	ErrQuery      = errors.New("query error")

	// ErrUnacknowledged marks a write the server applied without
	// satisfying the requested write concern.
	ErrUnacknowledged = errors.New("write not acknowledged")
)

// Storage is the document-collection contract.
type Storage interface {
	// InsertOne persists p and returns it with its generated ID.
	InsertOne(ctx context.Context, p types.Person) (types.Person, error)

	// InsertMany persists every record it can. The returned slice is
	// index-aligned with ps; entries that failed have an empty ID and
	// are listed in the returned *InsertError. Documents written without
	// a satisfied write concern keep their ID and are reported through
	// InsertError.Unacknowledged.
	InsertMany(ctx context.Context, ps []types.Person) ([]types.Person, error)

	// Find returns records matching filter, sorted ascending by
	// opts.Sort, projected to opts.Projection and capped at opts.Limit.
	// Returns an empty slice (not nil) if nothing matches.
	Find(ctx context.Context, filter types.Filter, opts types.FindOptions) ([]types.Person, error)

	// Count returns how many records match filter.
	Count(ctx context.Context, filter types.Filter) (int64, error)

	// DeleteMany removes every record matching filter.
	DeleteMany(ctx context.Context, filter types.Filter) (types.DeleteResult, error)

	// UpdateMany merges patch into every record matching filter.
	UpdateMany(ctx context.Context, filter types.Filter, patch types.Patch) (types.UpdateResult, error)

	// Close releases the connection. Safe to call once on every exit path.
	Close(ctx context.Context) error
}
