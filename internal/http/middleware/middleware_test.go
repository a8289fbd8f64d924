package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	r := newEngine(RequestID())

	w := get(r, "/ping", nil)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatal("expected generated X-Request-ID")
	}
}

func TestRequestID_PropagatesIncoming(t *testing.T) {
	r := newEngine(RequestID())

	w := get(r, "/ping", map[string]string{"X-Request-ID": "abc-123"})
	if rid := w.Header().Get("X-Request-ID"); rid != "abc-123" {
		t.Fatalf("expected propagated id, got %q", rid)
	}
}

func TestRecovery_ConvertsPanicTo500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := get(r, "/boom", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestLoggerFrom_FallbackWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if lg := LoggerFrom(c); lg == nil {
		t.Fatal("LoggerFrom must never return nil")
	}
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	r := newEngine(SecurityHeaders(SecurityOptions{EnablePolicy: true, NoStore: true}))

	w := get(r, "/ping", nil)
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	if w.Header().Get("Permissions-Policy") == "" {
		t.Fatal("Permissions-Policy missing")
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must not be set for plain HTTP")
	}
}

func TestSecurityHeaders_HSTSOnForwardedHTTPS(t *testing.T) {
	r := newEngine(SecurityHeaders(SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour}))

	w := get(r, "/ping", map[string]string{"X-Forwarded-Proto": "https"})
	hsts := w.Header().Get("Strict-Transport-Security")
	if hsts != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", hsts)
	}
}

func TestRateLimiter_Exhaustion(t *testing.T) {
	rl := NewRateLimiter(0, 2, KeyByIP())
	r := newEngine(rl.Handler())

	for i := 0; i < 2; i++ {
		if w := get(r, "/ping", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	w := get(r, "/ping", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
}

func TestRateLimiter_CoercesBurst(t *testing.T) {
	rl := NewRateLimiter(1, 0, KeyByIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d, want 1", rl.burst)
	}
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyByIP())
	rl.ttl = 0 // everything is immediately idle

	rl.getVisitor("ip:1.2.3.4")
	rl.cleanupN = 4999 // next lookup triggers GC
	rl.getVisitor("ip:5.6.7.8")

	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected idle visitor evicted, have %d", n)
	}
}

func TestMetrics_PassesThrough(t *testing.T) {
	r := newEngine(Metrics())

	if w := get(r, "/ping", nil); w.Code != http.StatusOK || w.Body.String() != "pong" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abcdef", 0); got != "abcdef" {
		t.Fatalf("truncate with max 0 = %q", got)
	}
}

func TestAsString(t *testing.T) {
	if got := asString("x"); got != "x" {
		t.Fatalf("asString = %q", got)
	}
	if got := asString(42); got != "" {
		t.Fatalf("asString non-string = %q", got)
	}
}
