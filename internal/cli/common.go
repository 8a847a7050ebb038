package cli

import (
	"context"
	"io"
	"os"

	"github.com/perbu/promptrun/internal/config"
	"github.com/perbu/promptrun/internal/ledger"
)

// Context holds common dependencies for CLI commands
type Context struct {
	Config *config.Config
	Stdout io.Writer
}

func (c *Context) out() io.Writer {
	if c.Stdout == nil {
		return os.Stdout
	}
	return c.Stdout
}

func (c *Context) openLedger(ctx context.Context) (ledger.Ledger, error) {
	return ledger.Open(ctx, c.Config)
}
