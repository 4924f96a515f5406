package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aanand-mishra/people-lifecycle/internal/config"
	"github.com/aanand-mishra/people-lifecycle/internal/people"
	"github.com/aanand-mishra/people-lifecycle/internal/storage"
	"github.com/aanand-mishra/people-lifecycle/internal/storage/sqlite"
	"github.com/aanand-mishra/people-lifecycle/internal/types"
)

// trackedStore records whether Close was called and can fail Count.
type trackedStore struct {
	storage.Storage
	closed   bool
	countErr error
}

func (s *trackedStore) Count(ctx context.Context, f types.Filter) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.Storage.Count(ctx, f)
}

func (s *trackedStore) Close(ctx context.Context) error {
	s.closed = true
	return s.Storage.Close(ctx)
}

func sqliteConfig(t *testing.T, mode config.ErrorMode) *config.Config {
	t.Helper()
	return &config.Config{
		Driver:      config.DriverSQLite,
		StoragePath: filepath.Join(t.TempDir(), "people.db"),
		ErrorMode:   mode,
	}
}

func opener(t *testing.T, cfg *config.Config, wrap func(storage.Storage) storage.Storage) Opener {
	return func(context.Context) (storage.Storage, error) {
		s, err := sqlite.New(cfg, zaptest.NewLogger(t))
		if err != nil {
			return nil, err
		}
		return wrap(s), nil
	}
}

func TestFixturesLowestSalaries(t *testing.T) {
	cfg := sqliteConfig(t, config.FailFast)
	store, err := sqlite.New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	repo := people.New(store, zaptest.NewLogger(t))
	ctx := context.Background()

	stored, err := repo.InsertMany(ctx, Fixtures())
	require.NoError(t, err)
	require.Len(t, stored, 7)

	got, err := repo.FindSorted(ctx, nil, types.FieldSalary, summary, SortedLimit)
	require.NoError(t, err)

	names := make([]string, 0, len(got))
	salaries := make([]float64, 0, len(got))
	for _, p := range got {
		names = append(names, p.Name)
		salaries = append(salaries, *p.Salary)
	}
	assert.Equal(t, []string{"Neesha", "Simon", "Mike", "Emma", "Mary"}, names)
	assert.Equal(t, []float64{1000, 3456, 4519, 4800, 5402}, salaries)
}

func TestExecuteFullScript(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	cfg := sqliteConfig(t, config.FailFast)
	cfg.Reset = true

	var tracked *trackedStore
	open := opener(t, cfg, func(s storage.Storage) storage.Storage {
		tracked = &trackedStore{Storage: s}
		return tracked
	})

	report, err := Execute(context.Background(), cfg, open, log)
	require.NoError(t, err)
	assert.True(t, tracked.closed)

	ran := make([]string, 0, len(report.Results))
	for _, r := range report.Results {
		ran = append(ran, r.Task)
	}
	assert.Equal(t, []string{
		"reset", "insert-one", "insert-many", "find-sorted", "find-filtered",
		"count", "delete", "update", "find-updated",
	}, ran)

	count := logs.FilterMessage("documents counted").All()
	require.Len(t, count, 1)
	assert.Equal(t, int64(8), count[0].ContextMap()["count"])

	deleted := logs.FilterMessage("documents deleted").All()
	require.Len(t, deleted, 1)
	// Everyone except Animesh (21) and Neesha (23).
	assert.Equal(t, int64(6), deleted[0].ContextMap()["deletedCount"])

	updated := logs.FilterMessage("documents updated").All()
	require.Len(t, updated, 1)
	assert.Equal(t, int64(1), updated[0].ContextMap()["modifiedCount"])

	var after []map[string]any
	for _, e := range logs.FilterMessage("found").All() {
		if m := e.ContextMap(); m["query"] == "updated records" {
			after = append(after, m)
		}
	}
	require.Len(t, after, 1)
	assert.Equal(t, "Neesha", after[0]["name"])
	assert.Equal(t, FemaleSalary, after[0]["salary"])
	assert.Equal(t, int64(23), after[0]["age"])
}

func TestExecuteIsRepeatableWithReset(t *testing.T) {
	cfg := sqliteConfig(t, config.FailFast)
	cfg.Reset = true
	open := opener(t, cfg, func(s storage.Storage) storage.Storage { return s })

	for i := 0; i < 2; i++ {
		core, logs := observer.New(zapcore.InfoLevel)
		_, err := Execute(context.Background(), cfg, open, zap.New(core))
		require.NoError(t, err)

		count := logs.FilterMessage("documents counted").All()
		require.Len(t, count, 1)
		assert.Equal(t, int64(8), count[0].ContextMap()["count"], "run %d", i+1)
	}
}

func TestExecuteFailFastClosesStore(t *testing.T) {
	cfg := sqliteConfig(t, config.FailFast)
	boom := errors.New("count exploded")

	var tracked *trackedStore
	open := opener(t, cfg, func(s storage.Storage) storage.Storage {
		tracked = &trackedStore{Storage: s, countErr: boom}
		return tracked
	})

	report, err := Execute(context.Background(), cfg, open, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, boom)
	assert.True(t, tracked.closed, "store closed on the error path")

	last := report.Results[len(report.Results)-1]
	assert.Equal(t, "count", last.Task)
}

func TestExecuteContinueRunsPastFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := sqliteConfig(t, config.ContinueOnError)
	boom := errors.New("count exploded")

	var tracked *trackedStore
	open := opener(t, cfg, func(s storage.Storage) storage.Storage {
		tracked = &trackedStore{Storage: s, countErr: boom}
		return tracked
	})

	report, err := Execute(context.Background(), cfg, open, zap.New(core))
	require.NoError(t, err)
	assert.True(t, tracked.closed)
	assert.Len(t, report.Results, 8)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "count", failed[0].Task)

	assert.Len(t, logs.FilterMessage("task failed").All(), 1)
	assert.Len(t, logs.FilterMessage("documents updated").All(), 1, "tasks after the failure still ran")
}

func TestExecuteConnectionFailure(t *testing.T) {
	cfg := sqliteConfig(t, config.ContinueOnError)
	refused := errors.Join(storage.ErrConnection, errors.New("refused"))

	report, err := Execute(context.Background(), cfg, func(context.Context) (storage.Storage, error) {
		return nil, refused
	}, zaptest.NewLogger(t))

	assert.ErrorIs(t, err, storage.ErrConnection)
	assert.Empty(t, report.Results)
}
