package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/aanand-mishra/people-lifecycle/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder builds tasks that append their name to a shared trace, so
// tests can assert what ran and in which order.
type recorder struct {
	ran []string
}

func (r *recorder) task(name string, err error) Task {
	return Task{Name: name, Run: func(context.Context) error {
		r.ran = append(r.ran, name)
		return err
	}}
}

func TestRunExecutesInOrder(t *testing.T) {
	rec := &recorder{}
	runner := NewRunner(config.ContinueOnError, zaptest.NewLogger(t))

	report, err := runner.Run(context.Background(), []Task{
		rec.task("a", nil), rec.task("b", nil), rec.task("c", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rec.ran)
	require.Len(t, report.Results, 3)
	assert.Empty(t, report.Failed())
}

func TestRunEachTaskSeesPreviousCompleted(t *testing.T) {
	inserted := false
	runner := NewRunner(config.FailFast, zaptest.NewLogger(t))

	_, err := runner.Run(context.Background(), []Task{
		{Name: "insert", Run: func(context.Context) error { inserted = true; return nil }},
		{Name: "delete", Run: func(context.Context) error {
			if !inserted {
				return errors.New("delete ran before insert finished")
			}
			return nil
		}},
	})
	require.NoError(t, err)
}

func TestRunContinueOnError(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	runner := NewRunner(config.ContinueOnError, zaptest.NewLogger(t))

	report, err := runner.Run(context.Background(), []Task{
		rec.task("a", nil), rec.task("b", boom), rec.task("c", nil),
	})
	require.NoError(t, err, "continue mode logs and returns normally")
	assert.Equal(t, []string{"a", "b", "c"}, rec.ran)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].Task)
	assert.ErrorIs(t, failed[0].Err, boom)
}

func TestRunFailFast(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	runner := NewRunner(config.FailFast, zaptest.NewLogger(t))

	report, err := runner.Run(context.Background(), []Task{
		rec.task("a", nil), rec.task("b", boom), rec.task("c", nil),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, rec.ran)
	assert.Len(t, report.Results, 2)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	runner := NewRunner(config.ContinueOnError, zaptest.NewLogger(t))

	_, err := runner.Run(ctx, []Task{
		{Name: "a", Run: func(context.Context) error { rec.ran = append(rec.ran, "a"); cancel(); return nil }},
		rec.task("b", nil),
	})
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, rec.ran)
}

func TestRunEmpty(t *testing.T) {
	report, err := NewRunner(config.FailFast, zaptest.NewLogger(t)).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}
