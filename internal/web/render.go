package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/oltdash/internal/errors"
	"github.com/hpungsan/oltdash/internal/ops"
	"github.com/hpungsan/oltdash/internal/table"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title    string
	Version  string
	Username string // empty on the login page
}

// LoginPageData is the template data for the login page.
type LoginPageData struct {
	PageData
	Error string
	Login string // username echoed back into the form
}

// DashboardPageData is the template data for the dashboard.
type DashboardPageData struct {
	PageData
	Notice template.HTML
	View   *ops.ViewOutput
	Bars   []Bar
	Prev   *PageLink
	Next   *PageLink
}

// PageLink is a pagination link.
type PageLink struct {
	Offset int
	Limit  int
}

// Bar is one bar of the clients-per-OLT chart, laid out in SVG units.
type Bar struct {
	Label string
	Count int
	Y     int
	Width int
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Chart geometry, in SVG user units.
const (
	chartLabelWidth = 180
	chartBarMax     = 480
	chartRowHeight  = 26
)

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	title     string
	version   string
	log       *slog.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, title, version string, logger *slog.Logger) (*Renderer, error) {
	funcMap := template.FuncMap{
		"add":         func(a, b int) int { return a + b },
		"cell":        table.Text,
		"formatCount": formatCount,
		"formatTime":  formatTime,
		"chartHeight": func(bars []Bar) int { return len(bars)*chartRowHeight + 4 },
		"labelWidth":  func() int { return chartLabelWidth },
		"barMax":      func() int { return chartBarMax },
	}

	layout, err := template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	pages := map[string]string{
		"login":     "login.html",
		"dashboard": "dashboard.html",
		"error":     "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		title:     title,
		version:   version,
		log:       logger,
	}, nil
}

// page returns the common page fields.
func (r *Renderer) page(username string) PageData {
	return PageData{Title: r.title, Version: r.version, Username: username}
}

// renderPage renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPage(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.log.Error("template not found", "template", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.log.Error("template execution failed", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var dErr *errors.DashError
	if !stderrors.As(err, &dErr) {
		r.log.Error("unhandled error", "error", err, "request_id", requestIDFrom(req.Context()))
		dErr = errors.NewInternal(nil)
	}

	status := dErr.Status
	message := dErr.Message

	if dErr.Code == errors.ErrRateLimited {
		if secs, ok := dErr.Details["retry_after"].(int); ok && secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}

	if wantsJSON(req) {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(dErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	username := ""
	if s := sessionFrom(req.Context()); s != nil {
		username = s.Username
	}
	data := ErrorPageData{
		PageData:   r.page(username),
		StatusCode: status,
		Message:    message,
	}
	data.Title = fmt.Sprintf("Error %d", status)
	r.renderPage(w, status, "error", data)
}

// wantsJSON reports whether the client asked for JSON or hit an API route.
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark.
// Raw HTML in the source is not passed through.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// chartBars lays out groups as horizontal bars scaled to the largest count.
func chartBars(groups []table.GroupCount) []Bar {
	maxCount := 0
	for _, g := range groups {
		maxCount = max(maxCount, g.Count)
	}
	bars := make([]Bar, len(groups))
	for i, g := range groups {
		width := 0
		if maxCount > 0 {
			width = g.Count * chartBarMax / maxCount
		}
		label := g.Key
		if label == "" {
			label = "(no OLT)"
		}
		bars[i] = Bar{Label: label, Count: g.Count, Y: i * chartRowHeight, Width: max(width, 1)}
	}
	return bars
}

// formatTime formats a time as "2006-01-02 15:04" UTC.
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// formatCount formats an integer with comma thousands separators.
func formatCount(n int) string {
	if n < 0 {
		return "-" + formatCount(-n)
	}
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
