package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/perbu/promptrun/internal/cli"
	"github.com/perbu/promptrun/internal/config"
)

var version = "dev"

// setupLogger configures the global slog logger based on debug setting
func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	var root cli.CLI
	kctx := kong.Parse(&root,
		kong.Name("promptrun"),
		kong.Description("Run batches of prompts against a text-generation service."),
		kong.Vars{"version": version},
		kong.UsageOnError(),
	)

	// Load configuration
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override data dir if specified
	if root.DataDir != "" {
		cfg.DataDir = root.DataDir
	}

	// Override debug if specified via CLI flag
	if root.Debug {
		cfg.Debug = true
	}

	setupLogger(cfg.Debug)
	slog.Debug("starting promptrun", "version", version, "command", kctx.Command())

	// Require data directory to be specified
	if cfg.DataDir == "" {
		return fmt.Errorf("data directory must be specified via --data-dir flag or config file")
	}

	return kctx.Run(&cli.Context{Config: cfg})
}
