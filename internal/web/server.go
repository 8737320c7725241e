package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hpungsan/oltdash/internal/auth"
	"github.com/hpungsan/oltdash/internal/config"
	"github.com/hpungsan/oltdash/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the collaborators the web UI serves from.
type Deps struct {
	Pipeline *ops.Pipeline
	Config   *config.Config
	Sessions *auth.Sessions
	Logger   *slog.Logger
	Version  string
}

// NewServer creates and configures the HTTP server for the dashboard.
func NewServer(deps Deps) (*http.Server, error) {
	handler, err := newHandler(deps)
	if err != nil {
		return nil, err
	}
	cfg := deps.Config
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Bind, strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func newHandler(deps Deps) (http.Handler, error) {
	h, err := newHandlers(deps)
	if err != nil {
		return nil, err
	}

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	mux.HandleFunc("GET /login", h.HandleLoginPage)
	mux.HandleFunc("POST /login", h.HandleLogin)
	mux.HandleFunc("POST /logout", h.HandleLogout)
	mux.HandleFunc("GET /dashboard", h.requireSession(h.HandleDashboard))
	mux.HandleFunc("POST /refresh", h.requireSession(h.HandleRefresh))
	mux.HandleFunc("GET /api/records", h.requireSession(h.HandleRecords))
	mux.HandleFunc("GET /api/summary", h.requireSession(h.HandleSummary))
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))
	mux.HandleFunc("GET /", h.HandleNotFound)

	return requestID(accessLog(h.log, securityHeaders(mux))), nil
}

func newHandlers(deps Deps) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	renderer, err := NewRenderer(templateSub, cfg.Title, deps.Version, logger)
	if err != nil {
		return nil, err
	}

	rowLimit := cfg.RowLimit
	if rowLimit <= 0 {
		rowLimit = ops.DefaultRowLimit
	}

	return &Handlers{
		pipeline:    deps.Pipeline,
		credentials: auth.Credentials{Username: cfg.Username, Password: cfg.Password},
		sessions:    deps.Sessions,
		limiter:     auth.NewLimiter(cfg.LoginRatePerMinute),
		renderer:    renderer,
		notice:      renderMarkdown(cfg.Notice),
		rowLimit:    rowLimit,
		log:         logger,
	}, nil
}

// Run serves until ctx is canceled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("dashboard listening", "url", "http://"+srv.Addr)

	host, _, _ := net.SplitHostPort(srv.Addr)
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
