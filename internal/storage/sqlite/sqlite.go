// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface.
//
// WHY SQLite?
// ───────────
// SQLite stores everything in a single file on disk. There is no
// network, no separate server process, and no installation beyond the
// driver. That makes it the offline backend for the lifecycle script and
// the real store the repository tests run against.
//
// Queries are built with squirrel (so filters become placeholders, never
// string concatenation) and rows are scanned into types.Person by sqlx
// using the db:"..." struct tags.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aanand-mishra/people-lifecycle/internal/config"
	"github.com/aanand-mishra/people-lifecycle/internal/storage"
	"github.com/aanand-mishra/people-lifecycle/internal/types"

	// Blank import: side-effect only (registers the "sqlite3" driver).
	_ "github.com/mattn/go-sqlite3"
)

const table = "people"

// columns maps logical fields to column names.
var columns = map[types.Field]string{
	types.FieldID:        "id",
	types.FieldName:      "name",
	types.FieldAge:       "age",
	types.FieldGender:    "gender",
	types.FieldSalary:    "salary",
	types.FieldCreatedAt: "created_at",
	types.FieldUpdatedAt: "updated_at",
}

var allColumns = []string{"id", "name", "age", "gender", "salary", "created_at", "updated_at"}

// SQLite is the concrete implementation of storage.Storage.
type SQLite struct {
	Db  *sqlx.DB
	log *zap.Logger
}

var _ storage.Storage = (*SQLite)(nil)

// New opens the SQLite database at cfg.StoragePath, creates the people
// table if it does not already exist, and returns a ready-to-use *SQLite.
func New(cfg *config.Config, log *zap.Logger) (*SQLite, error) {
	if dir := filepath.Dir(cfg.StoragePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.New: %w: create dir: %v", storage.ErrConnection, err)
		}
	}

	db, err := sqlx.Open("sqlite3", cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: %w: open db: %v", storage.ErrConnection, err)
	}
	// SQLite serialises writers anyway; one connection keeps every
	// statement of the script on the same file handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: %w: ping: %v", storage.ErrConnection, err)
	}

	// CREATE TABLE IF NOT EXISTS is idempotent, safe to run on every
	// startup. age and salary are nullable: both are optional fields.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS people (
			id         TEXT     PRIMARY KEY,
			name       TEXT     NOT NULL,
			age        INTEGER,
			gender     TEXT     NOT NULL,
			salary     REAL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: %w: create table: %v", storage.ErrConnection, err)
	}

	log.Info("connected", zap.String("driver", config.DriverSQLite), zap.String("path", cfg.StoragePath))
	return &SQLite{Db: db, log: log}, nil
}

// InsertOne inserts a new row and returns the record with its generated ID.
// IDs are UUIDv7, so they sort in insertion order like ObjectIDs do.
func (s *SQLite) InsertOne(ctx context.Context, p types.Person) (types.Person, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return types.Person{}, fmt.Errorf("InsertOne: %w: id: %v", storage.ErrQuery, err)
	}
	p.ID = id.String()

	query, args, err := sq.Insert(table).
		Columns(allColumns...).
		Values(p.ID, p.Name, p.Age, p.Gender, p.Salary, p.CreatedAt, p.UpdatedAt).
		ToSql()
	if err != nil {
		return types.Person{}, fmt.Errorf("InsertOne: %w: build: %v", storage.ErrQuery, err)
	}

	if _, err := s.Db.ExecContext(ctx, query, args...); err != nil {
		return types.Person{}, fmt.Errorf("InsertOne: %w: exec: %v", storage.ErrQuery, err)
	}
	return p, nil
}

// InsertMany inserts row by row and keeps going past failures. There is
// no enclosing transaction: rows that made it in stay in.
func (s *SQLite) InsertMany(ctx context.Context, ps []types.Person) ([]types.Person, error) {
	out := make([]types.Person, len(ps))
	failed := &storage.InsertError{}

	for i, p := range ps {
		stored, err := s.InsertOne(ctx, p)
		if err != nil {
			failed.Add(i, err)
			out[i] = p
			out[i].ID = ""
			continue
		}
		out[i] = stored
	}
	return out, failed.OrNil()
}

// Find runs a SELECT with the filter as WHERE, the sort key as ORDER BY
// and the projection as the column list.
func (s *SQLite) Find(ctx context.Context, filter types.Filter, opts types.FindOptions) ([]types.Person, error) {
	cols, err := projection(opts.Projection)
	if err != nil {
		return nil, fmt.Errorf("Find: %w: %v", storage.ErrQuery, err)
	}

	b := sq.Select(cols...).From(table)
	if b, err = where(b, filter); err != nil {
		return nil, fmt.Errorf("Find: %w: %v", storage.ErrQuery, err)
	}
	if opts.Sort != "" {
		col, ok := columns[opts.Sort]
		if !ok {
			return nil, fmt.Errorf("Find: %w: unknown sort field %q", storage.ErrQuery, opts.Sort)
		}
		// id breaks ties so equal keys come back in a stable order.
		b = b.OrderBy(col+" ASC", "id ASC")
	}
	if opts.Limit > 0 {
		b = b.Limit(uint64(opts.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("Find: %w: build: %v", storage.ErrQuery, err)
	}

	// Pre-allocate an empty (non-nil) slice.
	people := make([]types.Person, 0)
	if err := s.Db.SelectContext(ctx, &people, query, args...); err != nil {
		return nil, fmt.Errorf("Find: %w: select: %v", storage.ErrQuery, err)
	}
	return people, nil
}

// Count returns the number of rows matching filter.
func (s *SQLite) Count(ctx context.Context, filter types.Filter) (int64, error) {
	b, err := where(sq.Select("COUNT(*)").From(table), filter)
	if err != nil {
		return 0, fmt.Errorf("Count: %w: %v", storage.ErrQuery, err)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("Count: %w: build: %v", storage.ErrQuery, err)
	}

	var n int64
	if err := s.Db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("Count: %w: scan: %v", storage.ErrQuery, err)
	}
	return n, nil
}

// DeleteMany removes every row matching filter.
func (s *SQLite) DeleteMany(ctx context.Context, filter types.Filter) (types.DeleteResult, error) {
	pred, err := predicate(filter)
	if err != nil {
		return types.DeleteResult{}, fmt.Errorf("DeleteMany: %w: %v", storage.ErrQuery, err)
	}
	b := sq.Delete(table)
	if pred != nil {
		b = b.Where(pred)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return types.DeleteResult{}, fmt.Errorf("DeleteMany: %w: build: %v", storage.ErrQuery, err)
	}

	n, err := s.exec(ctx, query, args)
	if err != nil {
		return types.DeleteResult{}, fmt.Errorf("DeleteMany: %w", err)
	}
	return types.DeleteResult{Deleted: n}, nil
}

// UpdateMany sets the patched columns on every row matching filter.
// Columns the patch leaves nil are not touched.
func (s *SQLite) UpdateMany(ctx context.Context, filter types.Filter, patch types.Patch) (types.UpdateResult, error) {
	pred, err := predicate(filter)
	if err != nil {
		return types.UpdateResult{}, fmt.Errorf("UpdateMany: %w: %v", storage.ErrQuery, err)
	}

	b := sq.Update(table).SetMap(setClause(patch))
	if pred != nil {
		b = b.Where(pred)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return types.UpdateResult{}, fmt.Errorf("UpdateMany: %w: build: %v", storage.ErrQuery, err)
	}

	n, err := s.exec(ctx, query, args)
	if err != nil {
		return types.UpdateResult{}, fmt.Errorf("UpdateMany: %w", err)
	}
	// Every matched row gets a new updated_at, so matched == modified.
	return types.UpdateResult{Matched: n, Modified: n}, nil
}

// Close closes the underlying database handle.
func (s *SQLite) Close(context.Context) error {
	if err := s.Db.Close(); err != nil {
		return fmt.Errorf("sqlite.Close: %w: %v", storage.ErrConnection, err)
	}
	s.log.Info("disconnected", zap.String("driver", config.DriverSQLite))
	return nil
}

func (s *SQLite) exec(ctx context.Context, query string, args []any) (int64, error) {
	res, err := s.Db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: exec: %v", storage.ErrQuery, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", storage.ErrQuery, err)
	}
	return n, nil
}

// projection returns the SELECT column list. id is always included.
func projection(fields []types.Field) ([]string, error) {
	if len(fields) == 0 {
		return allColumns, nil
	}
	cols := []string{"id"}
	for _, f := range fields {
		col, ok := columns[f]
		if !ok {
			return nil, fmt.Errorf("unknown projection field %q", f)
		}
		if col != "id" {
			cols = append(cols, col)
		}
	}
	return cols, nil
}

func where(b sq.SelectBuilder, filter types.Filter) (sq.SelectBuilder, error) {
	pred, err := predicate(filter)
	if err != nil {
		return b, err
	}
	if pred != nil {
		b = b.Where(pred)
	}
	return b, nil
}

// predicate translates a filter into a squirrel conjunction. A nil
// result means "no WHERE clause".
func predicate(filter types.Filter) (sq.Sqlizer, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return nil, nil
	}

	and := make(sq.And, 0, len(filter))
	for _, c := range filter {
		col := columns[c.Field]
		switch c.Op {
		case types.OpEq:
			and = append(and, sq.Eq{col: c.Value})
		case types.OpNe:
			and = append(and, sq.NotEq{col: c.Value})
		case types.OpGt:
			and = append(and, sq.Gt{col: c.Value})
		case types.OpGte:
			and = append(and, sq.GtOrEq{col: c.Value})
		case types.OpLt:
			and = append(and, sq.Lt{col: c.Value})
		case types.OpLte:
			and = append(and, sq.LtOrEq{col: c.Value})
		}
	}
	return and, nil
}

func setClause(p types.Patch) map[string]any {
	set := map[string]any{"updated_at": p.UpdatedAt}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Age != nil {
		set["age"] = *p.Age
	}
	if p.Gender != nil {
		set["gender"] = *p.Gender
	}
	if p.Salary != nil {
		set["salary"] = *p.Salary
	}
	return set
}
