package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/oltdash/internal/cache"
	"github.com/hpungsan/oltdash/internal/config"
	"github.com/hpungsan/oltdash/internal/ops"
	"github.com/hpungsan/oltdash/internal/source"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "records": true, "summary": true, "status": true,
	"mcp": true, "help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
         _ _      _           _
    ___ | | |_ __| | __ _ ___| |__
   / _ \| | __/ _' |/ _' / __| '_ \
  | (_) | | || (_| | (_| \__ \ | | |
   \___/|_|\__\__,_|\__,_|___/_| |_|

  Business clients per OLT

  Usage: oltdash serve
         oltdash <command> [options]
         oltdash --help

  MCP server mode requires piped input.`)
}

// baseDir returns $OLTDASH_HOME, or ~/.oltdash.
func baseDir() (string, error) {
	if dir := os.Getenv("OLTDASH_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".oltdash"), nil
}

// loadConfig merges the global and project configs and applies the environment.
func loadConfig() (*config.Config, error) {
	dir, err := baseDir()
	if err != nil {
		return nil, err
	}
	cwd, _ := os.Getwd()

	cfg, err := config.LoadWithLocal(dir, cwd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyEnv(cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newPipeline wires the configured row source behind the dataset cache.
func newPipeline(ctx context.Context, cfg *config.Config, opts cache.Options) (*ops.Pipeline, error) {
	src, err := source.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize source: %w", err)
	}
	opts.TTL = cfg.CacheTTL()
	opts.FetchTimeout = cfg.FetchTimeout()
	return ops.NewPipeline(src, opts), nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before config and source setup
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, nil)
		if err := app.Run(os.Args); err != nil {
			fatal(err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'oltdash --help' for usage.\n")
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fatal(err)
	}

	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fatal(err)
	}

	pipeline, err := newPipeline(context.Background(), cfg, cache.Options{Logger: logger})
	if err != nil {
		fatal(err)
	}

	if isCLIMode() {
		app := newCLIApp(pipeline, cfg, logger)
		if err := app.Run(os.Args); err != nil {
			fatal(err)
		}
		return
	}

	// MCP server mode (default)
	app := newCLIApp(pipeline, cfg, logger)
	if err := app.Run([]string{os.Args[0], "mcp"}); err != nil {
		fatal(err)
	}
}
