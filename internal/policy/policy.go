// Package policy decides which targets a task is attempted against and
// turns the attempts into a completion record or a final failure.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/perbu/promptrun/internal/llm"
	"github.com/perbu/promptrun/internal/sink"
	"github.com/perbu/promptrun/internal/task"
)

// Config controls fallback escalation
type Config struct {
	Escalate    bool
	Lightweight []string // targets that may escalate
	Fallback    string   // target appended for lightweight tasks

	// OnAttempt, if set, is called after every attempt
	OnAttempt func(t task.Task, attempt int, out llm.Outcome)
}

// FinalFailure is returned when every attempt for a task failed. The task
// is left out of the ledger so a later run picks it up again.
type FinalFailure struct {
	ID       string
	Target   string // declared target
	Detail   string // diagnostic from the last attempt
	Attempts []llm.Outcome
}

func (f *FinalFailure) Error() string {
	return fmt.Sprintf("task %s failed after %d attempt(s): %s", f.ID, len(f.Attempts), f.Detail)
}

// Policy runs the attempt list for a task
type Policy struct {
	client llm.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a policy using client for attempts
func New(client llm.Client, cfg Config, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{client: client, cfg: cfg, logger: logger}
}

// Attempts returns the ordered list of targets tried for a task declared
// on target. At most one fallback is ever appended.
func (p *Policy) Attempts(target string) []string {
	attempts := []string{target}
	if p.cfg.Escalate &&
		p.cfg.Fallback != "" &&
		p.cfg.Fallback != target &&
		slices.Contains(p.cfg.Lightweight, target) {
		attempts = append(attempts, p.cfg.Fallback)
	}
	return attempts
}

// Resolve attempts t sequentially until one target succeeds. Permanent
// failures escalate the same way transient ones do. The returned error is
// always a *FinalFailure.
func (p *Policy) Resolve(ctx context.Context, t task.Task) (sink.Record, error) {
	targets := p.Attempts(t.Target)
	outcomes := make([]llm.Outcome, 0, len(targets))

	for i, target := range targets {
		out := p.client.Attempt(ctx, target, t.Payload)
		outcomes = append(outcomes, out)
		if p.cfg.OnAttempt != nil {
			p.cfg.OnAttempt(t, i+1, out)
		}

		if out.OK() {
			if i > 0 {
				p.logger.Info("Escalated task succeeded", "id", t.ID, "target", target, "declared", t.Target)
			}
			return sink.Record{ID: t.ID, TargetUsed: target, Text: out.Text}, nil
		}

		logArgs := []any{
			"id", t.ID,
			"target", target,
			"attempt", i + 1,
			"outcome", out.Kind.String(),
			"status", out.Status,
			"error", out.Detail,
		}
		if i+1 < len(targets) {
			p.logger.Warn("Attempt failed, escalating", append(logArgs, "next", targets[i+1])...)
		} else {
			p.logger.Debug("Attempt failed", logArgs...)
		}
	}

	last := outcomes[len(outcomes)-1]
	return sink.Record{}, &FinalFailure{
		ID:       t.ID,
		Target:   t.Target,
		Detail:   last.Detail,
		Attempts: outcomes,
	}
}
