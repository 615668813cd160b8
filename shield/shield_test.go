package shield

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/docsum/dbopen"
	"github.com/hazyhaar/docsum/kit"
)

func chainOf(h http.Handler, mws []func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestAPIStack_HeadersAndTrace(t *testing.T) {
	var ctxTrace string
	h := chainOf(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxTrace = kit.GetTraceID(r.Context())
		if GetLogger(r.Context()) == nil {
			t.Error("nil request logger")
		}
		w.WriteHeader(http.StatusTeapot)
	}), APIStack(1024))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusTeapot {
		t.Fatalf("status: got %d", w.Code)
	}
	for header, want := range map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s: got %q, want %q", header, got, want)
		}
	}
	traceID := w.Header().Get("X-Trace-ID")
	if len(traceID) != 8 {
		t.Fatalf("X-Trace-ID: got %q, want 8 hex chars", traceID)
	}
	if ctxTrace != traceID {
		t.Fatalf("context trace %q != header %q", ctxTrace, traceID)
	}
}

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("HEAD", "/", nil))
	if method != "GET" {
		t.Fatalf("method: got %q", method)
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if readErr == nil {
		t.Fatal("expected error reading oversized JSON body")
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if readErr != nil {
		t.Fatalf("multipart body should pass through: %v", readErr)
	}
}

func TestRateLimiter(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()
	if err := SeedRules(ctx, db, Rule{Endpoint: "POST /api/auth/login/", MaxRequests: 2, WindowSeconds: 60}); err != nil {
		t.Fatal(err)
	}

	rl := NewRateLimiter(db)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	do := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "203.0.113.9:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := do("POST", "/api/auth/login/"); w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, w.Code)
		}
	}
	w := do("POST", "/api/auth/login/")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After: got %q", w.Header().Get("Retry-After"))
	}

	// Unlisted endpoints are never limited.
	for i := 0; i < 5; i++ {
		if w := do("GET", "/health"); w.Code != http.StatusOK {
			t.Fatalf("unlimited endpoint: got %d", w.Code)
		}
	}

	// The window resets.
	now = now.Add(61 * time.Second)
	if w := do("POST", "/api/auth/login/"); w.Code != http.StatusOK {
		t.Fatalf("after window: got %d", w.Code)
	}
}

func TestSeedRules_KeepsExisting(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()
	SeedRules(ctx, db, Rule{Endpoint: "POST /x", MaxRequests: 5, WindowSeconds: 10})
	SeedRules(ctx, db, Rule{Endpoint: "POST /x", MaxRequests: 99, WindowSeconds: 10})

	var max int
	db.QueryRow(`SELECT max_requests FROM rate_limits WHERE endpoint = 'POST /x'`).Scan(&max)
	if max != 5 {
		t.Fatalf("max_requests: got %d, want 5", max)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.4:1234"
	if ip := ClientIP(req); ip != "198.51.100.4" {
		t.Fatalf("RemoteAddr: got %q", ip)
	}
	req.Header.Set("X-Forwarded-For", " 192.0.2.1 , 10.0.0.1")
	if ip := ClientIP(req); ip != "192.0.2.1" {
		t.Fatalf("X-Forwarded-For: got %q", ip)
	}
}
