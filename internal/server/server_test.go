package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
	"github.com/dagbolade/clipboard-guardian/internal/audit"
	"github.com/dagbolade/clipboard-guardian/internal/auth"
	"github.com/dagbolade/clipboard-guardian/internal/clipboard"
	"github.com/dagbolade/clipboard-guardian/internal/mediation"
	"github.com/dagbolade/clipboard-guardian/internal/metrics"
)

type fakeGuard struct {
	mu       sync.Mutex
	verdict  approval.Verdict
	content  clipboard.Content
	writeErr error
	written  []clipboard.Content
	actors   []string
}

func (g *fakeGuard) HandleRead(_ context.Context, actorID, _ string) (clipboard.Content, mediation.Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.actors = append(g.actors, actorID)
	out := mediation.Outcome{RequestID: "r1", Verdict: g.verdict, Resolution: mediation.ResolutionUser}
	if !out.Allowed() {
		return clipboard.Content{}, out
	}
	return g.content, out
}

func (g *fakeGuard) HandleWrite(_ context.Context, actorID, _ string, c clipboard.Content) (mediation.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.actors = append(g.actors, actorID)
	out := mediation.Outcome{RequestID: "w1", Verdict: g.verdict, Resolution: mediation.ResolutionUser}
	if out.Allowed() && g.writeErr == nil {
		g.written = append(g.written, c)
	}
	return out, g.writeErr
}

type fakeHistory struct {
	entries []audit.Entry
	err     error
	asked   int
}

func (h *fakeHistory) Recent(_ context.Context, n int) ([]audit.Entry, error) {
	h.asked = n
	if h.err != nil {
		return nil, h.err
	}
	if n < len(h.entries) {
		return h.entries[len(h.entries)-n:], nil
	}
	return h.entries, nil
}

type fakeProtection struct {
	enabled bool
	err     error
}

func (p *fakeProtection) Enabled() bool { return p.enabled }

func (p *fakeProtection) Set(enabled bool) error {
	p.enabled = enabled
	return p.err
}

type fixture struct {
	srv        *Server
	channel    *approval.Channel
	guard      *fakeGuard
	history    *fakeHistory
	protection *fakeProtection
	auth       *auth.Manager
}

func newFixture(t *testing.T, requireAuth bool) *fixture {
	t.Helper()

	f := &fixture{
		channel:    approval.NewChannel(),
		guard:      &fakeGuard{verdict: approval.VerdictAllow, content: clipboard.Content{Text: "hello"}},
		history:    &fakeHistory{},
		protection: &fakeProtection{enabled: true},
		auth: auth.NewManager(auth.Config{
			JWTSecret:   "test-secret",
			RequireAuth: requireAuth,
		}),
	}
	t.Cleanup(func() { f.channel.Close() })

	f.srv = New(Config{Port: 8080}, Deps{
		Guard:           f.guard,
		Channel:         f.channel,
		History:         f.history,
		Protection:      f.protection,
		Auth:            f.auth,
		AuthUsers:       "alice:pw:approver",
		Metrics:         metrics.New(),
		DecisionTimeout: 2500 * time.Millisecond,
	})
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var response map[string]string
	decode(t, rec, &response)
	if response["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", response["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestPendingAndDecision(t *testing.T) {
	f := newFixture(t, false)

	created := time.Now()
	resultCh := f.channel.Open(approval.Request{
		ID:        "req-1",
		Direction: approval.DirectionWrite,
		ActorID:   "com.example.app",
		Preview:   "secret",
		CreatedAt: created,
	})

	rec := f.do(http.MethodGet, "/pending", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var pending struct {
		Total   int              `json:"total"`
		Pending []pendingRequest `json:"pending"`
	}
	decode(t, rec, &pending)
	if pending.Total != 1 || pending.Pending[0].ID != "req-1" {
		t.Fatalf("unexpected pending list: %+v", pending)
	}
	if pending.Pending[0].ExpiresAt == nil || !pending.Pending[0].ExpiresAt.Equal(created.Add(2500*time.Millisecond)) {
		t.Errorf("expected expires_at = created + timeout, got %v", pending.Pending[0].ExpiresAt)
	}

	rec = f.do(http.MethodPost, "/requests/req-1/decision", `{"verdict":"allow"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	select {
	case v := <-resultCh:
		if v != approval.VerdictAllow {
			t.Errorf("expected allow, got %s", v)
		}
	case <-time.After(time.Second):
		t.Fatal("verdict never reached the waiter")
	}

	// Second verdict for the same id is a no-op.
	rec = f.do(http.MethodPost, "/requests/req-1/decision", `{"verdict":"deny"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for resolved request, got %d", rec.Code)
	}
}

func TestDecisionValidation(t *testing.T) {
	f := newFixture(t, false)
	f.channel.Open(approval.Request{ID: "req-1", Direction: approval.DirectionRead, CreatedAt: time.Now()})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "unknown id", path: "/requests/nope/decision", body: `{"verdict":"allow"}`, status: http.StatusNotFound},
		{name: "bad verdict", path: "/requests/req-1/decision", body: `{"verdict":"maybe"}`, status: http.StatusBadRequest},
		{name: "missing verdict", path: "/requests/req-1/decision", body: `{}`, status: http.StatusBadRequest},
		{name: "malformed body", path: "/requests/req-1/decision", body: `{"verdict":`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, tt.path, tt.body, nil)
			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}

	if f.channel.Len() != 1 {
		t.Errorf("invalid decisions must not resolve the request")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	f := newFixture(t, false)
	f.history.entries = []audit.Entry{
		{Timestamp: time.Now(), Action: audit.ActionCopy, Decision: audit.DecisionPending, Note: "first"},
		{Timestamp: time.Now(), Action: audit.ActionCopy, Decision: audit.DecisionBlocked, Note: "second"},
	}

	rec := f.do(http.MethodGet, "/history?limit=1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp struct {
		Total   int           `json:"total"`
		Entries []audit.Entry `json:"entries"`
	}
	decode(t, rec, &resp)
	if resp.Total != 1 || resp.Entries[0].Note != "second" {
		t.Errorf("expected only the newest entry, got %+v", resp.Entries)
	}

	f.do(http.MethodGet, "/history", "", nil)
	if f.history.asked != defaultHistoryLimit {
		t.Errorf("expected default limit %d, got %d", defaultHistoryLimit, f.history.asked)
	}

	f.do(http.MethodGet, "/history?limit=999999", "", nil)
	if f.history.asked != maxHistoryLimit {
		t.Errorf("expected limit capped at %d, got %d", maxHistoryLimit, f.history.asked)
	}

	if rec := f.do(http.MethodGet, "/history?limit=abc", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad limit, got %d", rec.Code)
	}

	f.history.err = errors.New("disk gone")
	if rec := f.do(http.MethodGet, "/history", "", nil); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}

func TestProtectionEndpoints(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(http.MethodPut, "/protection", `{"enabled":false}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if f.protection.enabled {
		t.Error("expected protection to be disabled")
	}

	rec = f.do(http.MethodGet, "/protection", "", nil)
	var state map[string]bool
	decode(t, rec, &state)
	if state["enabled"] {
		t.Error("expected GET to report disabled")
	}

	if rec := f.do(http.MethodPut, "/protection", `{}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without enabled, got %d", rec.Code)
	}

	f.protection.err = errors.New("read-only fs")
	if rec := f.do(http.MethodPut, "/protection", `{"enabled":true}`, nil); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500 when persisting fails, got %d", rec.Code)
	}
}

func TestClipboardRead(t *testing.T) {
	f := newFixture(t, false)
	headers := map[string]string{auth.ActorHeader: "com.example.app"}

	rec := f.do(http.MethodGet, "/clipboard", "", headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp clipboardResponse
	decode(t, rec, &resp)
	if resp.Content.Text != "hello" {
		t.Errorf("expected clipboard text, got %q", resp.Content.Text)
	}
	if f.guard.actors[0] != "com.example.app" {
		t.Errorf("expected actor from header, got %q", f.guard.actors[0])
	}

	f.guard.verdict = approval.VerdictDeny
	rec = f.do(http.MethodGet, "/clipboard", "", headers)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
	resp = clipboardResponse{}
	decode(t, rec, &resp)
	if !resp.Content.IsEmpty() {
		t.Errorf("denied read leaked content: %+v", resp.Content)
	}
}

func TestClipboardWrite(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(http.MethodPut, "/clipboard", `{"text":"new"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if len(f.guard.written) != 1 || f.guard.written[0].Text != "new" {
		t.Errorf("expected the write to reach the guard, got %+v", f.guard.written)
	}

	f.guard.verdict = approval.VerdictDeny
	if rec := f.do(http.MethodPut, "/clipboard", `{"text":"again"}`, nil); rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rec.Code)
	}

	if rec := f.do(http.MethodPut, "/clipboard", `{"text":"  "}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for empty content, got %d", rec.Code)
	}

	f.guard.verdict = approval.VerdictAllow
	f.guard.writeErr = clipboard.ErrLocked
	if rec := f.do(http.MethodPut, "/clipboard", `{"text":"locked"}`, nil); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500 for failed write, got %d", rec.Code)
	}
}

func TestRolesEnforced(t *testing.T) {
	f := newFixture(t, true)

	actorToken, err := f.auth.GenerateToken(auth.Principal{Subject: "com.example.app", Roles: []string{auth.RoleActor}})
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	asActor := map[string]string{"Authorization": "Bearer " + actorToken}

	if rec := f.do(http.MethodGet, "/pending", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 without token, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/pending", "", asActor); rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403 for actor on approver route, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/clipboard", "", asActor); rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for actor read, got %d", rec.Code)
	}
	if got := f.guard.actors[len(f.guard.actors)-1]; got != "com.example.app" {
		t.Errorf("expected actor from token subject, got %q", got)
	}

	rec := f.do(http.MethodPost, "/login", `{"username":"alice","password":"pw"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login to succeed, got %d", rec.Code)
	}
	var login auth.LoginResponse
	decode(t, rec, &login)

	asApprover := map[string]string{"Authorization": "Bearer " + login.Token}
	if rec := f.do(http.MethodGet, "/pending", "", asApprover); rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for approver, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/clipboard", "", asApprover); rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403 for approver on actor route, got %d", rec.Code)
	}
}
