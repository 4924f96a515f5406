// Package lifecycle runs the person data-lifecycle script: an ordered
// list of tasks against one repository, each starting only after the
// previous one has returned.
//
// Later tasks depend on data written by earlier ones (the delete and
// update steps work on the inserted records), so there is no
// parallelism and no timer: the completion of one Run call is the
// signal for the next.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aanand-mishra/people-lifecycle/internal/config"
)

const instrumentationName = "github.com/aanand-mishra/people-lifecycle/internal/lifecycle"

// Task is one step of the script.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result is the outcome of one task that ran.
type Result struct {
	Task     string
	Err      error
	Duration time.Duration
}

// Report collects the results of a run in execution order.
type Report struct {
	Results []Result
}

// Failed returns the results whose task returned an error.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// ErrAborted is wrapped by the error Run returns when a fail-fast run
// stops early.
var ErrAborted = errors.New("run aborted")

// Runner executes tasks one after another.
type Runner struct {
	mode     config.ErrorMode
	log      *zap.Logger
	tracer   trace.Tracer
	failures metric.Int64Counter
}

// NewRunner returns a runner using the global OpenTelemetry providers.
// Without an SDK installed by the host these are no-ops.
func NewRunner(mode config.ErrorMode, log *zap.Logger) *Runner {
	meter := otel.Meter(instrumentationName)
	failures, err := meter.Int64Counter("people.task.failures",
		metric.WithDescription("Number of lifecycle tasks that returned an error"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		log.Warn("task failure counter unavailable", zap.Error(err))
	}
	return &Runner{
		mode:     mode,
		log:      log,
		tracer:   otel.Tracer(instrumentationName),
		failures: failures,
	}
}

// Run executes tasks in order and returns what happened.
//
// In continue mode every task runs; failures are logged and recorded in
// the report, and Run returns a nil error. In fail-fast mode the run
// stops at the first failure and Run returns it wrapped in ErrAborted.
// A cancelled ctx stops the run before the next task in either mode.
func (r *Runner) Run(ctx context.Context, tasks []Task) (Report, error) {
	var report Report

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%w before %q: %w", ErrAborted, task.Name, err)
		}

		log := r.log.With(zap.Int("step", i+1), zap.String("task", task.Name))
		log.Info("task started")

		res := r.runOne(ctx, task)
		report.Results = append(report.Results, res)

		if res.Err == nil {
			log.Info("task finished", zap.Duration("took", res.Duration))
			continue
		}

		log.Error("task failed", zap.Duration("took", res.Duration), zap.Error(res.Err))
		if r.mode == config.FailFast {
			return report, fmt.Errorf("%w at %q: %w", ErrAborted, task.Name, res.Err)
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		r.log.Warn("run finished with failures", zap.Int("failed", len(failed)), zap.Int("tasks", len(report.Results)))
	}
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, task Task) Result {
	ctx, span := r.tracer.Start(ctx, task.Name, trace.WithAttributes(attribute.String("task", task.Name)))
	defer span.End()

	start := time.Now()
	err := task.Run(ctx)
	res := Result{Task: task.Name, Err: err, Duration: time.Since(start)}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if r.failures != nil {
			r.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task.Name)))
		}
	}
	return res
}
