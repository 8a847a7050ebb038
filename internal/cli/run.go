package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/perbu/promptrun/internal/engine"
	"github.com/perbu/promptrun/internal/llm"
	"github.com/perbu/promptrun/internal/metrics"
	"github.com/perbu/promptrun/internal/notify"
	"github.com/perbu/promptrun/internal/policy"
	"github.com/perbu/promptrun/internal/sink"
	"github.com/perbu/promptrun/internal/task"
)

// Run executes the run command. Final task failures are reported but do
// not fail the command; a ledger write failure does.
func (c *RunCmd) Run(ctx *Context) error {
	cfg := ctx.Config
	if c.Tasks != "" {
		cfg.TasksDir = c.Tasks
	}
	if c.Output != "" {
		cfg.OutputDir = c.Output
	}
	if c.Workers > 0 {
		cfg.Engine.Workers = c.Workers
	}
	if c.NoEscalate {
		cfg.Policy.Escalate = false
	}
	if c.FlushThreshold > 0 {
		cfg.Ledger.FlushThreshold = c.FlushThreshold
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// no signal handling: killing the process is the abort path
	runCtx := context.Background()

	set, err := task.LoadDir(cfg.GetTasksDir())
	if err != nil {
		return err
	}

	client, err := llm.NewClient(runCtx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create service client: %w", err)
	}

	out, err := sink.NewFileSink(cfg.GetOutputDir())
	if err != nil {
		return err
	}

	l, err := ctx.openLedger(runCtx)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer l.Close()

	notifier, err := notify.FromConfig(cfg)
	if err != nil {
		return err
	}

	rec := metrics.New()
	resolver := policy.New(client, policy.Config{
		Escalate:    cfg.Policy.Escalate,
		Lightweight: cfg.Policy.LightweightTargets,
		Fallback:    cfg.Policy.FallbackTarget,
		OnAttempt: func(_ task.Task, _ int, out llm.Outcome) {
			rec.ObserveAttempt(out)
		},
	}, slog.Default())

	e := engine.New(engine.Options{
		Workers:        cfg.PoolSize(),
		FlushThreshold: cfg.Ledger.FlushThreshold,
		Resolver:       resolver,
		Sink:           out,
		Ledger:         l,
		Metrics:        rec,
	})

	summary, runErr := e.Run(runCtx, set)
	printSummary(ctx.out(), summary)

	if cfg.Metrics.Textfile != "" {
		if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			slog.Warn("Failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	if notifier != nil {
		if err := notifier.Notify(runCtx, summary, runErr); err != nil {
			slog.Warn("Failed to send run report", "error", err)
		}
	}

	return runErr
}

func printSummary(w io.Writer, s *engine.Summary) {
	if s == nil {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", s.RunID)
	fmt.Fprintf(tw, "Descriptors:\t%d\n", s.Total)
	fmt.Fprintf(tw, "Succeeded:\t%d (%d escalated)\n", s.Succeeded, s.Escalated)
	fmt.Fprintf(tw, "Failed:\t%d\n", s.Failed)
	fmt.Fprintf(tw, "Skipped:\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "Invalid:\t%d\n", s.Invalid)
	if s.Aborted > 0 {
		fmt.Fprintf(tw, "Not attempted:\t%d\n", s.Aborted)
	}
	fmt.Fprintf(tw, "Duration:\t%s\n", s.Duration.Round(10*time.Millisecond))
	tw.Flush()

	for _, f := range s.Failures {
		if f.Stage == engine.StageOutput {
			fmt.Fprintf(w, "FAILED %s (%s, record not written): %s\n", f.ID, f.Target, f.Detail)
			continue
		}
		fmt.Fprintf(w, "FAILED %s (%s, %d attempt(s)): %s\n", f.ID, f.Target, f.Attempts, f.Detail)
	}
}
