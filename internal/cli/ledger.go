package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
)

// Run executes the ledger list command
func (c *LedgerListCmd) Run(ctx *Context) error {
	bg := context.Background()
	l, err := ctx.openLedger(bg)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer l.Close()

	entries, err := l.List(bg)
	if err != nil {
		return err
	}

	w := ctx.out()
	switch c.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "table":
		if len(entries) == 0 {
			fmt.Fprintln(w, "No completed tasks")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		defer tw.Flush()
		fmt.Fprintln(tw, "ID\tCOMPLETED")
		for _, e := range entries {
			completed := "-"
			if !e.CompletedAt.IsZero() {
				completed = e.CompletedAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%s\t%s\n", e.ID, completed)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", c.Format)
	}
}

// Run executes the ledger forget command
func (c *LedgerForgetCmd) Run(ctx *Context) error {
	bg := context.Background()
	l, err := ctx.openLedger(bg)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer l.Close()

	n, err := l.Forget(bg, c.IDs)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.out(), "Forgot %d of %d task(s)\n", n, len(c.IDs))
	return nil
}
