package middleware

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

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/leadrelay/keygate/internal/model"
	"github.com/leadrelay/keygate/internal/service"
	"github.com/leadrelay/keygate/internal/store"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == "" {
		t.Error("expected X-Request-ID in response header")
	}
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestRequestIDReplacesOversizedID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", maxRequestIDLen+1))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("expected a generated UUID, got %q", got)
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	id := GetRequestID(context.Background())
	if id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// Key extraction
// ---------------------------------------------------------------------------

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		bearer string
		query  string
		want   string
	}{
		{"none", "", "", "", ""},
		{"header", "lr_live_h", "", "", "lr_live_h"},
		{"bearer", "", "Bearer lr_live_b", "", "lr_live_b"},
		{"lowercase bearer", "", "bearer lr_live_b", "", "lr_live_b"},
		{"query", "", "", "lr_live_q", "lr_live_q"},
		{"header wins", "lr_live_h", "Bearer lr_live_b", "lr_live_q", "lr_live_h"},
		{"bearer beats query", "", "Bearer lr_live_b", "lr_live_q", "lr_live_b"},
		{"basic auth ignored", "", "Basic abc", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/x"
			if tt.query != "" {
				target += "?api_key=" + tt.query
			}
			req := httptest.NewRequest("GET", target, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", tt.bearer)
			}
			if got := ExtractAPIKey(req); got != tt.want {
				t.Errorf("ExtractAPIKey = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Authenticator
// ---------------------------------------------------------------------------

const goodSecret = "lr_live_goodsecretvalue"

type fakeKeys struct {
	cred       *store.KeyCredential
	resolveErr error
	touchErr   error
	touched    int
}

func (f *fakeKeys) ResolveKey(_ context.Context, presented string) (*store.KeyCredential, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if presented != goodSecret {
		return nil, service.ErrInvalidKey
	}
	return f.cred, nil
}

func (f *fakeKeys) TouchKey(context.Context, int64) error {
	f.touched++
	return f.touchErr
}

type fakeLimiter struct {
	d   service.Decision
	err error
}

func (f *fakeLimiter) CheckAndIncrement(context.Context, int64, int) (service.Decision, error) {
	return f.d, f.err
}

type fakeUsage struct {
	mu      sync.Mutex
	entries []model.UsageLogEntry
}

func (f *fakeUsage) Record(_ context.Context, e model.UsageLogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func testCredential() *store.KeyCredential {
	return &store.KeyCredential{
		Key: model.KeyRecord{
			ID: 11, AccountID: 3, Name: "sync", KeyPrefix: goodSecret[:12],
			Permissions: []string{"contacts:read"}, RateLimit: 100, IsActive: true,
		},
		AccountName:   "Acme",
		AccountActive: true,
	}
}

func allowDecision() service.Decision {
	return service.Decision{Allowed: true, Count: 1, Limit: 100, Remaining: 99,
		ResetAt: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), RetryAfter: 600}
}

func newTestAuthenticator(keys *fakeKeys, limiter *fakeLimiter) (*Authenticator, *fakeUsage) {
	logger, _ := test.NewNullLogger()
	usage := &fakeUsage{}
	return NewAuthenticator(keys, limiter, usage, logger), usage
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Success bool           `json:"success"`
		Error   map[string]any `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Success {
		t.Error("expected success=false")
	}
	return body.Error
}

func TestAuthenticatorMissingKey(t *testing.T) {
	auth, usage := newTestAuthenticator(&fakeKeys{}, &fakeLimiter{})
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called without a key")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/contacts", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := decodeError(t, rr)["code"]; code != CodeMissingAPIKey {
		t.Errorf("expected %s, got %v", CodeMissingAPIKey, code)
	}
	if len(usage.entries) != 0 {
		t.Errorf("expected no usage entry, got %d", len(usage.entries))
	}
}

func TestAuthenticatorInvalidKey(t *testing.T) {
	auth, usage := newTestAuthenticator(&fakeKeys{cred: testCredential()}, &fakeLimiter{d: allowDecision()})
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called for an invalid key")
	}))

	req := httptest.NewRequest("GET", "/contacts", nil)
	req.Header.Set("X-API-Key", "lr_live_wrongsecret")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := decodeError(t, rr)["code"]; code != CodeInvalidAPIKey {
		t.Errorf("expected %s, got %v", CodeInvalidAPIKey, code)
	}
	if len(usage.entries) != 0 {
		t.Errorf("expected no usage entry, got %d", len(usage.entries))
	}
}

func TestAuthenticatorInternalErrors(t *testing.T) {
	tests := []struct {
		name        string
		keys        *fakeKeys
		limiter     *fakeLimiter
		wantUsage   int
		wantHeaders bool
	}{
		{"resolve fails", &fakeKeys{resolveErr: errors.New("db down")}, &fakeLimiter{d: allowDecision()}, 0, false},
		{"limiter fails", &fakeKeys{cred: testCredential()}, &fakeLimiter{err: errors.New("db down")}, 1, false},
		{"touch fails", &fakeKeys{cred: testCredential(), touchErr: errors.New("db down")}, &fakeLimiter{d: allowDecision()}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, usage := newTestAuthenticator(tt.keys, tt.limiter)
			handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("inner handler should not be called")
			}))

			req := httptest.NewRequest("GET", "/contacts", nil)
			req.Header.Set("X-API-Key", goodSecret)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rr.Code)
			}
			body := decodeError(t, rr)
			if body["code"] != CodeAuthenticationError {
				t.Errorf("expected %s, got %v", CodeAuthenticationError, body["code"])
			}
			if strings.Contains(body["message"].(string), "db down") {
				t.Error("internal error leaked to client")
			}
			if len(usage.entries) != tt.wantUsage {
				t.Fatalf("expected %d usage entries, got %d", tt.wantUsage, len(usage.entries))
			}
			if tt.wantUsage == 1 && usage.entries[0].Outcome != model.OutcomeError {
				t.Errorf("expected outcome error, got %q", usage.entries[0].Outcome)
			}
			// A counted request reports its quota even when it then fails.
			limit, remaining := rr.Header().Get(HeaderRateLimitLimit), rr.Header().Get(HeaderRateLimitRemaining)
			if tt.wantHeaders && (limit != "100" || remaining != "99") {
				t.Errorf("expected limit 100 remaining 99, got %q/%q", limit, remaining)
			}
			if !tt.wantHeaders && limit != "" {
				t.Errorf("expected no rate limit headers, got limit %q", limit)
			}
		})
	}
}

func TestAuthenticatorRateLimited(t *testing.T) {
	d := service.Decision{Allowed: false, Count: 101, Limit: 100, Remaining: 0,
		ResetAt: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), RetryAfter: 42}
	keys := &fakeKeys{cred: testCredential()}
	auth, usage := newTestAuthenticator(keys, &fakeLimiter{d: d})
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called over the limit")
	}))

	req := httptest.NewRequest("GET", "/contacts", nil)
	req.Header.Set("X-API-Key", goodSecret)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body["code"] != CodeRateLimitExceeded {
		t.Errorf("expected %s, got %v", CodeRateLimitExceeded, body["code"])
	}
	if body["retry_after"] != float64(42) {
		t.Errorf("expected retry_after 42, got %v", body["retry_after"])
	}
	if got := rr.Header().Get("Retry-After"); got != "42" {
		t.Errorf("expected Retry-After 42, got %q", got)
	}
	if got := rr.Header().Get(HeaderRateLimitRemaining); got != "0" {
		t.Errorf("expected remaining 0, got %q", got)
	}
	if keys.touched != 0 {
		t.Error("rejected request must not touch the key")
	}
	if len(usage.entries) != 1 || usage.entries[0].Outcome != model.OutcomeRejected || usage.entries[0].StatusCode != 429 {
		t.Fatalf("expected one rejected 429 usage entry, got %+v", usage.entries)
	}
	if msg := usage.entries[0].ErrorMessage; msg == nil || *msg != "rate limit exceeded" {
		t.Errorf("expected error message %q on the rejected entry, got %v", "rate limit exceeded", msg)
	}
}

func TestDisplayPrefix(t *testing.T) {
	tests := []struct {
		presented string
		want      string
	}{
		{"lr_live_AbCdEfGhIjKlMn", "lr_live_AbCd"},
		{"sk_live_0123456789abcdef", ""},
		{"ghp_supersecrettokenvalue", ""},
		{"lr_live_", ""},
	}
	for _, tt := range tests {
		if got := displayPrefix(tt.presented); got != tt.want {
			t.Errorf("displayPrefix(%q) = %q, want %q", tt.presented, got, tt.want)
		}
	}
}

func TestAuthenticatorSuccess(t *testing.T) {
	keys := &fakeKeys{cred: testCredential()}
	auth, usage := newTestAuthenticator(keys, &fakeLimiter{d: allowDecision()})

	var got *model.KeyContext
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetKeyContext(r.Context())
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))

	req := httptest.NewRequest("POST", "/contacts?x=1", nil)
	req.Header.Set("Authorization", "Bearer "+goodSecret)
	req.Header.Set("User-Agent", "crm-sync/1.0")
	req.RemoteAddr = "203.0.113.9:5555"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if got == nil || got.KeyID != 11 || got.AccountName != "Acme" || got.RateLimit != 100 {
		t.Fatalf("unexpected key context %+v", got)
	}
	if rr.Header().Get(HeaderRateLimitLimit) != "100" || rr.Header().Get(HeaderRateLimitRemaining) != "99" {
		t.Errorf("unexpected rate limit headers %v", rr.Header())
	}
	if keys.touched != 1 {
		t.Errorf("expected key touched once, got %d", keys.touched)
	}
	if len(usage.entries) != 1 {
		t.Fatalf("expected 1 usage entry, got %d", len(usage.entries))
	}
	e := usage.entries[0]
	if e.StatusCode != 201 || e.Outcome != model.OutcomeCompleted || e.Endpoint != "/contacts" ||
		e.Method != "POST" || e.IPAddress != "203.0.113.9" || e.UserAgent != "crm-sync/1.0" {
		t.Errorf("unexpected usage entry %+v", e)
	}
}

func TestAuthenticatorClientAbort(t *testing.T) {
	auth, usage := newTestAuthenticator(&fakeKeys{cred: testCredential()}, &fakeLimiter{d: allowDecision()})

	ctx, cancel := context.WithCancel(context.Background())
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel() // client goes away mid-request
	}))

	req := httptest.NewRequest("GET", "/contacts", nil).WithContext(ctx)
	req.Header.Set("X-API-Key", goodSecret)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(usage.entries) != 1 || usage.entries[0].Outcome != model.OutcomeAborted {
		t.Errorf("expected one aborted usage entry, got %+v", usage.entries)
	}
}

func TestAuthenticatorHandlerPanic(t *testing.T) {
	auth, usage := newTestAuthenticator(&fakeKeys{cred: testCredential()}, &fakeLimiter{d: allowDecision()})
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest("GET", "/contacts", nil)
	req.Header.Set("X-API-Key", goodSecret)

	func() {
		defer func() {
			if rec := recover(); rec != "boom" {
				t.Errorf("expected panic to propagate, got %v", rec)
			}
		}()
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}()

	if len(usage.entries) != 1 {
		t.Fatalf("expected 1 usage entry, got %d", len(usage.entries))
	}
	if e := usage.entries[0]; e.StatusCode != 500 || e.Outcome != model.OutcomeError || e.ErrorMessage == nil {
		t.Errorf("unexpected usage entry %+v", e)
	}
}

// ---------------------------------------------------------------------------
// Permission gates
// ---------------------------------------------------------------------------

func gatedRequest(perms []string) *http.Request {
	req := httptest.NewRequest("GET", "/campaigns", nil)
	if perms != nil {
		req = req.WithContext(WithKeyContext(req.Context(), &model.KeyContext{KeyID: 1, Permissions: perms}))
	}
	return req
}

func TestRequirePermission(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name  string
		perms []string
		want  int
	}{
		{"no context", nil, http.StatusUnauthorized},
		{"exact", []string{"campaigns:write"}, http.StatusOK},
		{"resource wildcard", []string{"campaigns:*"}, http.StatusOK},
		{"global", []string{"*"}, http.StatusOK},
		{"wrong action", []string{"campaigns:read"}, http.StatusForbidden},
		{"wrong resource", []string{"contacts:*"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RequirePermission("campaigns:write")(ok).ServeHTTP(rr, gatedRequest(tt.perms))
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
			if tt.want == http.StatusForbidden {
				body := decodeError(t, rr)
				if body["code"] != CodeInsufficientPermissions || body["required_permission"] != "campaigns:write" {
					t.Errorf("unexpected error body %v", body)
				}
				if _, ok := body["current_permissions"]; !ok {
					t.Error("expected current_permissions in error")
				}
			}
		})
	}
}

func TestRequireMethodPermission(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireMethodPermission("contacts")(ok)

	tests := []struct {
		method string
		perms  []string
		want   int
	}{
		{http.MethodGet, []string{"contacts:read"}, http.StatusOK},
		{http.MethodHead, []string{"contacts:read"}, http.StatusOK},
		{http.MethodPost, []string{"contacts:read"}, http.StatusForbidden},
		{http.MethodPut, []string{"contacts:write"}, http.StatusOK},
		{http.MethodPatch, []string{"contacts:write"}, http.StatusOK},
		{http.MethodDelete, []string{"contacts:write"}, http.StatusForbidden},
		{http.MethodDelete, []string{"contacts:*"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+strings.Join(tt.perms, ","), func(t *testing.T) {
			req := gatedRequest(tt.perms)
			req.Method = tt.method
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestRequireAllAndAny(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	perms := []string{"contacts:read", "opportunities:*"}

	rr := httptest.NewRecorder()
	RequireAll("contacts:read", "opportunities:delete")(ok).ServeHTTP(rr, gatedRequest(perms))
	if rr.Code != http.StatusOK {
		t.Errorf("RequireAll satisfied: expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	RequireAll("contacts:read", "contacts:write", "agents:read")(ok).ServeHTTP(rr, gatedRequest(perms))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("RequireAll unsatisfied: expected 403, got %d", rr.Code)
	}
	body := decodeError(t, rr)
	missing, _ := body["missing_permissions"].([]any)
	if len(missing) != 2 || missing[0] != "contacts:write" || missing[1] != "agents:read" {
		t.Errorf("unexpected missing_permissions %v", body["missing_permissions"])
	}

	rr = httptest.NewRecorder()
	RequireAny("agents:read", "opportunities:write")(ok).ServeHTTP(rr, gatedRequest(perms))
	if rr.Code != http.StatusOK {
		t.Errorf("RequireAny satisfied: expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	RequireAny("agents:read", "campaigns:read")(ok).ServeHTTP(rr, gatedRequest(perms))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("RequireAny unsatisfied: expected 403, got %d", rr.Code)
	}
	if _, found := decodeError(t, rr)["required_permissions"]; !found {
		t.Error("expected required_permissions in error")
	}
}

// ---------------------------------------------------------------------------
// Session guard
// ---------------------------------------------------------------------------

func TestRequireSession(t *testing.T) {
	sessions := service.NewSessionService("secret", "keygate")
	token, err := sessions.Issue(service.Principal{UserID: 5, AccountID: 8}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var got *service.Principal
	handler := RequireSession(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
		code   string
	}{
		{"valid", "Bearer " + token, http.StatusOK, ""},
		{"missing", "", http.StatusUnauthorized, CodeUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized, CodeInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/api-keys", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
			if tt.code != "" {
				if code := decodeError(t, rr)["code"]; code != tt.code {
					t.Errorf("expected %s, got %v", tt.code, code)
				}
			}
		})
	}
	if got == nil || got.AccountID != 8 || got.UserID != 5 {
		t.Errorf("unexpected principal %+v", got)
	}
}

func TestGetPrincipalWithoutValue(t *testing.T) {
	if got := GetPrincipal(context.Background()); got != nil {
		t.Error("expected nil principal from bare context")
	}
}

// ---------------------------------------------------------------------------
// IP guard
// ---------------------------------------------------------------------------

func TestIPGuard(t *testing.T) {
	handler := IPGuard(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var codes []int
	for range 3 {
		req := httptest.NewRequest("GET", "/api/v1/external/me", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected [200 200 429], got %v", codes)
	}

	// A different address has its own budget.
	req := httptest.NewRequest("GET", "/api/v1/external/me", nil)
	req.RemoteAddr = "198.51.100.8:1234"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 for a fresh address, got %d", rr.Code)
	}
}

func TestIPGuardDisabled(t *testing.T) {
	calls := 0
	handler := IPGuard(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	for range 5 {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	}
	if calls != 5 {
		t.Errorf("expected 5 calls through a disabled guard, got %d", calls)
	}
}
