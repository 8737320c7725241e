package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/oltdash/internal/auth"
	"github.com/hpungsan/oltdash/internal/config"
	"github.com/hpungsan/oltdash/internal/errors"
	"github.com/hpungsan/oltdash/internal/mcp"
	"github.com/hpungsan/oltdash/internal/ops"
	"github.com/hpungsan/oltdash/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(p *ops.Pipeline, cfg *config.Config, logger *slog.Logger) *cli.App {
	if logger == nil {
		logger = slog.Default()
	}
	app := &cli.App{
		Name:    "oltdash",
		Usage:   "Business clients per OLT, from the operations spreadsheet",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(p, cfg, logger),
			recordsCmd(p, cfg),
			summaryCmd(p),
			statusCmd(p),
			mcpCmd(p, cfg, logger),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(p *ops.Pipeline, cfg *config.Config, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the login-gated web dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Usage: "Address to bind (overrides config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			if bind := c.String("bind"); bind != "" {
				cfg.Bind = bind
			}
			if c.IsSet("port") {
				cfg.Port = c.Int("port")
			}
			if err := cfg.ValidateLogin(); err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			sessions, err := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL())
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if cfg.SessionSecret == "" {
				logger.Warn("session_secret is not set, sessions will not survive a restart")
			}

			srv, err := web.NewServer(web.Deps{
				Pipeline: p,
				Config:   cfg,
				Sessions: sessions,
				Logger:   logger,
				Version:  Version,
			})
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Warm the cache in the background.
			go func() { _, _ = p.Cache().Get(ctx) }()

			return web.Run(ctx, srv, logger)
		},
	}
}

// recordsCmd creates the records command.
func recordsCmd(p *ops.Pipeline, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "records",
		Usage: "List clients whose OLT name contains the query",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "OLT name substring (case-insensitive)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Rows per page (default: row_limit)"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Rows to skip"},
		},
		Action: func(c *cli.Context) error {
			input := ops.RecordsInput{
				Query:  c.String("query"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			}
			if !c.IsSet("limit") {
				input.Limit = cfg.RowLimit
			}

			output, err := p.Records(c.Context, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// summaryCmd creates the summary command.
func summaryCmd(p *ops.Pipeline) *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Count clients per OLT for the rows matching the query",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "OLT name substring (case-insensitive)"},
		},
		Action: func(c *cli.Context) error {
			output, err := p.Summary(c.Context, ops.SummaryInput{Query: c.String("query")})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(p *ops.Pipeline) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Load the dataset and report its size and fetch state",
		Action: func(c *cli.Context) error {
			// A one-shot process has an empty cache, so always load once.
			output, err := p.Status(c.Context, ops.StatusInput{Refresh: true})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(p *ops.Pipeline, cfg *config.Config, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the dashboard tools over MCP stdio",
		Action: func(c *cli.Context) error {
			if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
				logger.Warn("ignoring unknown disabled_tools", "tools", unknown, "known", mcp.AllToolNames())
			}
			if err := mcp.Run(p, cfg, logger, Version); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var dErr *errors.DashError
	if stderrors.As(err, &dErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", dErr.Code, dErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
