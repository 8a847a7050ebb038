package cli

import "github.com/alecthomas/kong"

// CLI is the root command structure for kong
type CLI struct {
	Config  string           `short:"c" help:"Config file path" type:"path"`
	DataDir string           `short:"d" name:"data-dir" help:"Data directory" type:"path"`
	Debug   bool             `help:"Enable debug logging"`
	Version kong.VersionFlag `short:"V" help:"Show version"`

	Run        RunCmd        `cmd:"" help:"Process every task not yet in the ledger"`
	Ledger     LedgerCmd     `cmd:"" help:"Inspect and edit the completion ledger"`
	ShowConfig ShowConfigCmd `cmd:"" name:"show-config" help:"Print the effective configuration"`
}

// RunCmd processes the task directory
type RunCmd struct {
	Tasks          string `help:"Task descriptor directory (default: <data-dir>/prompts)" type:"path"`
	Output         string `help:"Completion record directory (default: <data-dir>/completions)" type:"path"`
	Workers        int    `short:"w" help:"Number of parallel workers (default: CPU count, capped by engine.max_workers)"`
	NoEscalate     bool   `name:"no-escalate" help:"Never retry failed tasks on the fallback target"`
	FlushThreshold int    `name:"flush-threshold" help:"Completed tasks buffered before a ledger write (1 writes every completion)"`
}

// LedgerCmd is the parent command for ledger management
type LedgerCmd struct {
	List   LedgerListCmd   `cmd:"" help:"List completed tasks"`
	Forget LedgerForgetCmd `cmd:"" help:"Remove tasks from the ledger so the next run redoes them"`
}

// LedgerListCmd lists ledger entries
type LedgerListCmd struct {
	Format string `help:"Output format" enum:"table,json" default:"table"`
}

// LedgerForgetCmd removes ids from the ledger
type LedgerForgetCmd struct {
	IDs []string `arg:"" name:"id" help:"Task id(s)" required:""`
}

// ShowConfigCmd prints the configuration with secrets masked
type ShowConfigCmd struct{}
