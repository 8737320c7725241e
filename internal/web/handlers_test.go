package web

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hpungsan/oltdash/internal/auth"
	"github.com/hpungsan/oltdash/internal/cache"
	"github.com/hpungsan/oltdash/internal/config"
	"github.com/hpungsan/oltdash/internal/errors"
	"github.com/hpungsan/oltdash/internal/ops"
	"github.com/hpungsan/oltdash/internal/source"
	"github.com/hpungsan/oltdash/internal/table"
)

func scenarioRecords() []table.Record {
	return []table.Record{
		{{Name: "OLT NAME", Value: "OLT-A"}, {Name: "ONT ID", Value: float64(123)}, {Name: "CLIENTE", Value: "Acme <Ltda>"}},
		{{Name: "OLT NAME", Value: "OLT-B"}, {Name: "ONT ID", Value: float64(456)}, {Name: "CLIENTE", Value: "Beta"}},
		{{Name: "OLT NAME", Value: "OLT-A"}, {Name: "ONT ID", Value: float64(789)}, {Name: "CLIENTE", Value: "Gamma"}},
	}
}

type testEnv struct {
	handler  http.Handler
	sessions *auth.Sessions
	fetches  *atomic.Int32
	failing  *atomic.Bool
}

func setupTest(t *testing.T, recs []table.Record) *testEnv {
	t.Helper()

	var fetches atomic.Int32
	var failing atomic.Bool
	src := source.Func(func(ctx context.Context) ([]table.Record, error) {
		fetches.Add(1)
		if failing.Load() {
			return nil, errors.NewRemoteAccess(errors.ReasonTransport, stderrors.New("sheet unreachable"))
		}
		return recs, nil
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := ops.NewPipeline(src, cache.Options{TTL: time.Hour, Logger: logger})

	cfg := config.DefaultConfig()
	cfg.Username = "admin"
	cfg.Password = "s3cret"
	cfg.LoginRatePerMinute = 3

	sessions, err := auth.NewSessions("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}

	handler, err := newHandler(Deps{
		Pipeline: pipeline,
		Config:   cfg,
		Sessions: sessions,
		Logger:   logger,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("newHandler: %v", err)
	}
	return &testEnv{handler: handler, sessions: sessions, fetches: &fetches, failing: &failing}
}

func (e *testEnv) do(t *testing.T, req *http.Request, loggedIn bool) *httptest.ResponseRecorder {
	t.Helper()
	if loggedIn {
		token, err := e.sessions.Issue("admin")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func loginRequest(user, pass string) *http.Request {
	form := url.Values{"username": {user}, "password": {pass}}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// --- Auth ---

func TestRoot_RedirectsToDashboard(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/", nil), false)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/dashboard" {
		t.Errorf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestDashboard_RequiresLogin(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/dashboard", nil), false)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
	if env.fetches.Load() != 0 {
		t.Error("unauthenticated request must not fetch data")
	}
}

func TestDashboard_RejectsForgedCookie(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	other, _ := auth.NewSessions("other-secret", time.Hour)
	token, _ := other.Issue("admin")

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	rec := env.do(t, req, false)
	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", rec.Code)
	}
}

func TestLoginPage(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/login", nil), false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `name="password"`) {
		t.Error("expected password field")
	}

	rec = env.do(t, httptest.NewRequest("GET", "/login", nil), true)
	if rec.Code != http.StatusSeeOther {
		t.Errorf("logged-in status = %d, want 303", rec.Code)
	}
}

func TestLogin_Success(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, loginRequest("admin", "s3cret"), false)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			session = c
		}
	}
	if session == nil || !session.HttpOnly {
		t.Fatalf("expected HttpOnly session cookie, got %+v", session)
	}

	// The cookie opens the dashboard
	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(session)
	rec = env.do(t, req, false)
	if rec.Code != http.StatusOK {
		t.Errorf("dashboard status = %d, want 200", rec.Code)
	}
}

func TestLogin_WrongCredentials(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, loginRequest("admin", "wrong"), false)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Incorrect username or password.") {
		t.Error("expected error message")
	}
	if !strings.Contains(body, `value="admin"`) {
		t.Error("expected username echoed back")
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("failed login must not set a cookie")
	}
}

func TestLogin_RateLimited(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	for i := 0; i < 3; i++ {
		env.do(t, loginRequest("admin", "wrong"), false)
	}

	rec := env.do(t, loginRequest("admin", "s3cret"), false)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestLogout(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("POST", "/logout", nil), true)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected expired session cookie, got %+v", cookies)
	}
}

// --- Dashboard ---

func TestDashboard_AllClients(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/dashboard", nil), true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Showing all clients",
		"Total clients found",
		`<span class="metric-value">3</span>`,
		`<span class="metric-value">2</span>`,
		"<td>123</td>",
		"Acme &lt;Ltda&gt;",
		"Total clients per OLT",
		"<strong>OLT</strong>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in body", want)
		}
	}
	if strings.Contains(body, "Acme <Ltda>") {
		t.Error("cell values must be escaped")
	}
}

func TestDashboard_Query(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/dashboard?q=olt-b", nil), true)

	body := rec.Body.String()
	if !strings.Contains(body, "Showing results for: 'olt-b'") {
		t.Error("expected results heading")
	}
	if !strings.Contains(body, "<td>Beta</td>") || strings.Contains(body, "<td>Gamma</td>") {
		t.Error("expected only OLT-B rows")
	}
	if !strings.Contains(body, `<span class="metric-value">1</span>`) {
		t.Error("expected metrics of 1")
	}
}

func TestDashboard_NoMatches(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/dashboard?q=zzz", nil), true)

	body := rec.Body.String()
	if !strings.Contains(body, "No clients match this search.") {
		t.Error("expected empty-table message")
	}
	if strings.Contains(body, "Total clients per OLT") {
		t.Error("chart must be hidden for an empty selection")
	}
}

func TestDashboard_EmptyDataset(t *testing.T) {
	env := setupTest(t, nil)
	rec := env.do(t, httptest.NewRequest("GET", "/dashboard", nil), true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, ops.WarnNoData) {
		t.Error("expected no-data warning")
	}
	if strings.Contains(body, "Total clients found") {
		t.Error("metrics must be hidden without data")
	}
}

func TestDashboard_SourceFailureShowsWarning(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	env.failing.Store(true)

	rec := env.do(t, httptest.NewRequest("GET", "/dashboard", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `role="alert"`) {
		t.Error("expected warning banner")
	}
	if strings.Contains(body, "sheet unreachable") {
		t.Error("internal error details must not be shown")
	}
}

func TestDashboard_Pagination(t *testing.T) {
	var recs []table.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, table.Record{{Name: "OLT NAME", Value: "OLT-A"}, {Name: "ONT ID", Value: float64(i)}})
	}
	env := setupTest(t, recs)

	rec := env.do(t, httptest.NewRequest("GET", "/dashboard?limit=2&offset=2", nil), true)
	body := rec.Body.String()
	if !strings.Contains(body, "Rows 3 to 4 of 5") {
		t.Error("expected page range")
	}
	if !strings.Contains(body, "offset=0&amp;limit=2") || !strings.Contains(body, "offset=4&amp;limit=2") {
		t.Error("expected previous and next links")
	}
	if !strings.Contains(body, `<span class="metric-value">5</span>`) {
		t.Error("metrics must cover the whole selection")
	}
}

func TestDashboard_MemoizesFetch(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	for i := 0; i < 3; i++ {
		env.do(t, httptest.NewRequest("GET", "/dashboard?q=OLT", nil), true)
	}
	if env.fetches.Load() != 1 {
		t.Errorf("fetches = %d, want 1", env.fetches.Load())
	}
}

func TestRefresh(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	env.do(t, httptest.NewRequest("GET", "/dashboard", nil), true)

	form := url.Values{"q": {"OLT A"}}
	req := httptest.NewRequest("POST", "/refresh", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(t, req, true)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard?q=OLT+A" {
		t.Errorf("Location = %q", loc)
	}
	if env.fetches.Load() != 2 {
		t.Errorf("fetches = %d, want 2", env.fetches.Load())
	}
}

// --- API ---

func TestAPIRecords(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/api/records?q=OLT-A&limit=1", nil), true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out ops.RecordsOutput
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Rows) != 1 || out.Pagination.Total != 2 || !out.Pagination.HasMore {
		t.Errorf("out = %+v", out)
	}
	if out.Rows[0][1] != "123" {
		t.Errorf("ONT ID = %#v, want \"123\"", out.Rows[0][1])
	}
}

func TestAPIRecords_Unauthorized(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/api/records", nil), false)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var resp map[string]map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"]["code"] != "UNAUTHORIZED" {
		t.Errorf("code = %v", resp["error"]["code"])
	}
}

func TestAPIRecords_InvalidPage(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/api/records?offset=-3", nil), true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAPISummary(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/api/summary", nil), true)

	var out ops.SummaryOutput
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.TotalRows != 3 || out.TotalGroups != 2 {
		t.Errorf("totals = %d/%d, want 3/2", out.TotalRows, out.TotalGroups)
	}
	if out.Groups[0].Key != "OLT-A" || out.Groups[0].Count != 2 {
		t.Errorf("Groups[0] = %+v", out.Groups[0])
	}
}

func TestHealthz(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	env.do(t, httptest.NewRequest("GET", "/dashboard", nil), true)

	rec := env.do(t, httptest.NewRequest("GET", "/healthz", nil), false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out ops.StatusOutput
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Rows != 3 || out.Refreshes != 1 || !out.Fresh {
		t.Errorf("status = %+v", out)
	}
}

func TestHealthz_HidesRemoteErrorText(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	env.failing.Store(true)
	env.do(t, httptest.NewRequest("GET", "/dashboard", nil), true)

	rec := env.do(t, httptest.NewRequest("GET", "/healthz", nil), false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "sheet unreachable") {
		t.Error("remote error text must not be served without login")
	}
	var out ops.StatusOutput
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Failures != 1 || out.LastReason != errors.ReasonTransport || out.LastError != "" {
		t.Errorf("status = %+v", out)
	}
}

func TestNotFound(t *testing.T) {
	env := setupTest(t, scenarioRecords())

	rec := env.do(t, httptest.NewRequest("GET", "/nope", nil), false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not found: /nope") {
		t.Error("expected not found page")
	}

	rec = env.do(t, httptest.NewRequest("GET", "/api/nope", nil), false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(errors.ErrNotFound) {
		t.Errorf("code = %q, want NOT_FOUND", body.Error.Code)
	}
}

// --- Middleware ---

func TestMiddleware_Headers(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/login", nil), false)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected X-Frame-Options")
	}
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "default-src 'self'") {
		t.Error("expected CSP")
	}

	req := httptest.NewRequest("GET", "/login", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = env.do(t, req, false)
	if rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Error("expected incoming request ID to be reused")
	}
}

func TestStatic(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	rec := env.do(t, httptest.NewRequest("GET", "/static/style.css", nil), false)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRenderError_HTML(t *testing.T) {
	env := setupTest(t, scenarioRecords())
	req := httptest.NewRequest("POST", "/login", strings.NewReader("%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(t, req, false)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid form data") {
		t.Error("expected error page message")
	}
}

// --- Helpers ---

func TestChartBars(t *testing.T) {
	bars := chartBars([]table.GroupCount{{Key: "OLT-A", Count: 4}, {Key: "", Count: 2}, {Key: "OLT-C", Count: 0}})
	if bars[0].Width != chartBarMax || bars[1].Width != chartBarMax/2 {
		t.Errorf("widths = %d, %d", bars[0].Width, bars[1].Width)
	}
	if bars[1].Label != "(no OLT)" {
		t.Errorf("label = %q", bars[1].Label)
	}
	if bars[2].Width != 1 || bars[2].Y != 2*chartRowHeight {
		t.Errorf("bar 2 = %+v", bars[2])
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}
	for _, tt := range tests {
		if got := formatCount(tt.in); got != tt.want {
			t.Errorf("formatCount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
