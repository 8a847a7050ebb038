// Package engine runs a task set through the policy with a bounded pool of
// workers and records completions in the ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/perbu/promptrun/internal/ledger"
	"github.com/perbu/promptrun/internal/metrics"
	"github.com/perbu/promptrun/internal/policy"
	"github.com/perbu/promptrun/internal/sink"
	"github.com/perbu/promptrun/internal/task"
)

// Resolver turns a task into a completion record. *policy.Policy
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, t task.Task) (sink.Record, error)
}

// Options configures an Engine
type Options struct {
	Workers        int
	FlushThreshold int
	Resolver       Resolver
	Sink           sink.Sink
	Ledger         ledger.Ledger
	Metrics        *metrics.Recorder // optional
	Logger         *slog.Logger      // optional
}

// Engine processes task sets
type Engine struct {
	workers   int
	threshold int
	resolver  Resolver
	sink      sink.Sink
	ledger    ledger.Ledger
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// Stages at which a task can fail
const (
	StageService = "service" // no attempt produced text
	StageOutput  = "output"  // text was produced but the record could not be written
)

// FailureReport describes a task that ended without a record. For an
// output failure Target is the target that produced the text and Attempts
// is zero.
type FailureReport struct {
	ID       string `json:"id"`
	Stage    string `json:"stage"`
	Target   string `json:"target"`
	Detail   string `json:"detail"`
	Attempts int    `json:"attempts"`
}

// Summary describes a finished (or aborted) run
type Summary struct {
	RunID     string          `json:"run_id"`
	Total     int             `json:"total"`     // descriptors read, valid or not
	Skipped   int             `json:"skipped"`   // already in the ledger
	Succeeded int             `json:"succeeded"` // record written
	Failed    int             `json:"failed"`    // final failures
	Invalid   int             `json:"invalid"`   // descriptor errors
	Escalated int             `json:"escalated"` // succeeded on a target other than the declared one
	Aborted   int             `json:"aborted"`   // never attempted because the run aborted
	Failures  []FailureReport `json:"failures,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// New creates an Engine
func New(opts Options) *Engine {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		workers:   workers,
		threshold: opts.FlushThreshold,
		resolver:  opts.Resolver,
		sink:      opts.Sink,
		ledger:    opts.Ledger,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// run holds the mutable state of a single Run call
type run struct {
	*Engine
	logger  *slog.Logger
	batcher *ledger.Batcher
	start   time.Time
	pending int

	mu       sync.Mutex
	summary  *Summary
	finished int
}

// Run processes every task in set whose id is not already in the ledger
// and returns once all of them reached a terminal outcome. A ledger write
// failure aborts the run: tasks not yet started are never attempted and
// the returned error wraps ledger.ErrWrite. The summary is returned in
// both cases.
func (e *Engine) Run(ctx context.Context, set *task.Set) (*Summary, error) {
	r := &run{
		Engine: e,
		start:  time.Now(),
		summary: &Summary{
			RunID:   uuid.NewString(),
			Total:   len(set.Tasks) + len(set.Invalid),
			Invalid: len(set.Invalid),
		},
	}
	r.logger = e.logger.With("run_id", r.summary.RunID)
	r.batcher = ledger.NewBatcher(e.ledger, e.threshold, r.logger)
	if e.metrics != nil {
		r.batcher.OnFlush = e.metrics.ObserveFlush
	}

	for _, de := range set.Invalid {
		r.logger.Warn("Skipping invalid descriptor", "source", de.Source, "line", de.Line, "id", de.ID, "error", de.Err)
	}

	todo, err := r.filter(ctx, set.Tasks)
	if err != nil {
		r.finish()
		return r.summary, err
	}
	r.pending = len(todo)

	r.logger.Info("Starting run",
		"tasks", len(todo),
		"skipped", r.summary.Skipped,
		"invalid", r.summary.Invalid,
		"workers", e.workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, t := range todo {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// an abort may have happened while waiting for a slot
			if gctx.Err() != nil {
				return nil
			}
			return r.process(ctx, t)
		})
	}
	runErr := g.Wait()

	if runErr == nil {
		runErr = r.batcher.Flush(ctx)
	}

	r.finish()
	if runErr != nil {
		r.logger.Error("Run aborted", "error", runErr, "aborted", r.summary.Aborted)
		return r.summary, fmt.Errorf("run %s aborted: %w", r.summary.RunID, runErr)
	}

	r.logger.Info("Run complete",
		"succeeded", r.summary.Succeeded,
		"failed", r.summary.Failed,
		"skipped", r.summary.Skipped,
		"invalid", r.summary.Invalid,
		"escalated", r.summary.Escalated,
		"duration", r.summary.Duration.Round(time.Millisecond))
	return r.summary, nil
}

// filter drops tasks already in the ledger. The result is the fixed set
// processed by this run.
func (r *run) filter(ctx context.Context, tasks []task.Task) ([]task.Task, error) {
	todo := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		done, err := r.ledger.Contains(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check ledger for %s: %w", t.ID, err)
		}
		if done {
			r.summary.Skipped++
			r.logger.Debug("Skipping completed task", "id", t.ID)
			continue
		}
		todo = append(todo, t)
	}
	return todo, nil
}

// process runs one task end to end. Only a ledger error is returned; it
// cancels the group.
func (r *run) process(ctx context.Context, t task.Task) error {
	if r.metrics != nil {
		r.metrics.TaskStarted()
		defer r.metrics.TaskDone()
	}

	rec, err := r.resolver.Resolve(ctx, t)
	if err != nil {
		r.fail(t, err)
		return nil
	}

	if err := r.sink.Write(rec); err != nil {
		r.failOutput(t, rec, err)
		return nil
	}

	r.succeed(t, rec)

	if err := r.batcher.Stage(ctx, t.ID); err != nil {
		return err
	}
	return nil
}

func (r *run) succeed(t task.Task, rec sink.Record) {
	r.mu.Lock()
	r.summary.Succeeded++
	if rec.TargetUsed != t.Target {
		r.summary.Escalated++
	}
	n := r.tick()
	r.mu.Unlock()

	r.logger.Info("Task succeeded",
		"progress", fmt.Sprintf("[%d/%d]", n, r.pending),
		"id", t.ID,
		"target", rec.TargetUsed,
		"rate", r.rate(n))
}

func (r *run) fail(t task.Task, err error) {
	report := FailureReport{ID: t.ID, Stage: StageService, Target: t.Target, Detail: err.Error()}
	var ff *policy.FinalFailure
	if errors.As(err, &ff) {
		report.Detail = ff.Detail
		report.Attempts = len(ff.Attempts)
	}
	r.report(report)
}

func (r *run) failOutput(t task.Task, rec sink.Record, err error) {
	r.report(FailureReport{
		ID:     t.ID,
		Stage:  StageOutput,
		Target: rec.TargetUsed,
		Detail: fmt.Sprintf("failed to write record: %v", err),
	})
}

func (r *run) report(report FailureReport) {
	r.mu.Lock()
	r.summary.Failed++
	r.summary.Failures = append(r.summary.Failures, report)
	n := r.tick()
	r.mu.Unlock()

	r.logger.Error("Task failed",
		"progress", fmt.Sprintf("[%d/%d]", n, r.pending),
		"id", report.ID,
		"stage", report.Stage,
		"target", report.Target,
		"attempts", report.Attempts,
		"rate", r.rate(n),
		"error", report.Detail)
}

// tick counts a finished task; callers hold mu
func (r *run) tick() int {
	r.finished++
	return r.finished
}

func (r *run) rate(n int) string {
	elapsed := time.Since(r.start).Seconds()
	if elapsed <= 0 {
		return "0.00 tasks/sec"
	}
	return fmt.Sprintf("%.2f tasks/sec", float64(n)/elapsed)
}

// finish fills in the fields known only at the end of a run
func (r *run) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.summary
	s.Duration = time.Since(r.start)
	s.Aborted = r.pending - r.finished

	if r.metrics != nil {
		r.metrics.TaskResult(metrics.ResultSucceeded, s.Succeeded)
		r.metrics.TaskResult(metrics.ResultFailed, s.Failed)
		r.metrics.TaskResult(metrics.ResultSkipped, s.Skipped)
		r.metrics.TaskResult(metrics.ResultInvalid, s.Invalid)
		r.metrics.RunFinished(s.Duration.Seconds(), time.Now().Unix())
	}
}
