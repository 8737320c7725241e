package web

import (
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hpungsan/oltdash/internal/auth"
	"github.com/hpungsan/oltdash/internal/errors"
	"github.com/hpungsan/oltdash/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	pipeline    *ops.Pipeline
	credentials auth.Credentials
	sessions    *auth.Sessions
	limiter     *auth.Limiter
	renderer    *Renderer
	notice      template.HTML
	rowLimit    int
	log         *slog.Logger
}

// HandleLoginPage handles GET /login.
func (h *Handlers) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.renderer.renderPage(w, http.StatusOK, "login", LoginPageData{
		PageData: h.renderer.page(""),
	})
}

// HandleLogin handles POST /login.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if ok, retry := h.limiter.Allow(ip); !ok {
		h.log.Warn("login rate limited", "client", ip, "request_id", requestIDFrom(r.Context()))
		h.renderer.renderError(w, r, errors.NewRateLimited(retry))
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	if !h.credentials.Verify(username, password) {
		h.log.Info("login failed", "client", ip, "request_id", requestIDFrom(r.Context()))
		h.renderer.renderPage(w, http.StatusUnauthorized, "login", LoginPageData{
			PageData: h.renderer.page(""),
			Error:    "Incorrect username or password.",
			Login:    username,
		})
		return
	}

	token, err := h.sessions.Issue(username)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessions.TTL().Seconds()),
	})
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleLogout handles POST /logout.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleDashboard handles GET /dashboard.
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := parseIntParam(r, "limit", h.rowLimit)
	offset := parseIntParam(r, "offset", 0)

	view, err := h.pipeline.View(r.Context(), ops.ViewInput{
		Query:  query,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data := DashboardPageData{
		PageData: h.renderer.page(sessionFrom(r.Context()).Username),
		Notice:   h.notice,
		View:     view,
		Bars:     chartBars(view.Chart),
	}
	p := view.Pagination
	if p.Offset > 0 {
		data.Prev = &PageLink{Offset: max(p.Offset-p.Limit, 0), Limit: p.Limit}
	}
	if p.HasMore {
		data.Next = &PageLink{Offset: p.Offset + p.Limit, Limit: p.Limit}
	}

	h.renderer.renderPage(w, http.StatusOK, "dashboard", data)
}

// HandleRecords handles GET /api/records.
func (h *Handlers) HandleRecords(w http.ResponseWriter, r *http.Request) {
	out, err := h.pipeline.Records(r.Context(), ops.RecordsInput{
		Query:  strings.TrimSpace(r.URL.Query().Get("q")),
		Limit:  parseIntParam(r, "limit", h.rowLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleSummary handles GET /api/summary.
func (h *Handlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	out, err := h.pipeline.Summary(r.Context(), ops.SummaryInput{
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleRefresh handles POST /refresh by reloading the dataset now.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	out, err := h.pipeline.Status(r.Context(), ops.StatusInput{Refresh: true})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}
	target := "/dashboard"
	if q := r.PostFormValue("q"); q != "" {
		target += "?q=" + url.QueryEscape(q)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleHealth handles GET /healthz. It reports cache state without touching the source.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	out, err := h.pipeline.Status(r.Context(), ops.StatusInput{})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	// Public route: the reason is reported, the remote error text is not.
	out.LastError = ""
	renderJSON(w, http.StatusOK, out)
}

// HandleNotFound renders a 404 for any path without a route.
func (h *Handlers) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderError(w, r, errors.NewNotFound(r.URL.Path))
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
