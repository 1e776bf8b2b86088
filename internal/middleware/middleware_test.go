package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/pagecraft/pagecraft/internal/apperror"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// --- Rate limiting ---

func TestMemoryLimiter_WindowAndReset(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(ctx, "1.2.3.4"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if ok, _ := l.Allow(ctx, "1.2.3.4"); ok {
		t.Fatal("third request should be limited")
	}
	if ok, _ := l.Allow(ctx, "5.6.7.8"); !ok {
		t.Fatal("other IPs should have their own window")
	}

	now = now.Add(61 * time.Second)
	if ok, _ := l.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatal("expected window to reset")
	}
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRedisLimiter(rdb, "ratelimit:test:", 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("request %d: allowed=%v err=%v", i+1, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, "1.2.3.4"); ok {
		t.Fatal("third request should be limited")
	}
	if ttl := mr.TTL("ratelimit:test:1.2.3.4"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected counter TTL within window, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := l.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatal("expected counter to expire with the window")
	}
}

func TestRedisLimiter_CounterAlwaysExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	// A counter left behind without a TTL, e.g. by a crash mid-request.
	if err := mr.Set("ratelimit:test:1.2.3.4", "7"); err != nil {
		t.Fatal(err)
	}

	l := NewRedisLimiter(rdb, "ratelimit:test:", 2, time.Minute)
	if ok, err := l.Allow(context.Background(), "1.2.3.4"); err != nil || ok {
		t.Fatalf("expected over-limit counter to deny, got allowed=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("ratelimit:test:1.2.3.4"); ttl <= 0 {
		t.Fatalf("expected counter to carry a TTL, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := l.Allow(context.Background(), "1.2.3.4"); !ok {
		t.Error("expected the key to recover once the window passes")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/signin", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := RateLimit(failingLimiter{})(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimit_Returns429(t *testing.T) {
	e := echo.New()
	mw := RateLimit(NewMemoryLimiter(1, time.Minute))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/signin", nil)
		req.RemoteAddr = "9.9.9.9:1234"
		rec := httptest.NewRecorder()
		err := mw(okHandler)(e.NewContext(req, rec))

		got := rec.Code
		var he *echo.HTTPError
		if errors.As(err, &he) {
			got = he.Code
		}
		if got != want {
			t.Errorf("request %d: expected %d, got %d", i+1, want, got)
		}
	}
}

// --- CSRF ---

func TestCSRF_SetsCookieOnSafeRequest(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/signin", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := CSRF(true)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if GetCSRFToken(c) == "" {
		t.Error("expected CSRF token in context")
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), csrfCookieName) {
		t.Error("expected CSRF cookie to be set")
	}
}

func TestCSRF_RejectsMismatchedToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/signin", strings.NewReader("csrf_token=wrong"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "right"})
	c := e.NewContext(req, httptest.NewRecorder())

	err := CSRF(true)(okHandler)(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestCSRF_AcceptsMatchingFormToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/signin", strings.NewReader("csrf_token=right"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "right"})
	rec := httptest.NewRecorder()

	if err := CSRF(true)(okHandler)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCSRF_APIJSONSkipsToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, "application/json; charset=utf-8")
	rec := httptest.NewRecorder()

	if err := CSRF(true)(okHandler)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCSRF_APIFormStillChecked(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader("email=a"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := CSRF(true)(okHandler)(c); err == nil {
		t.Fatal("expected form POST to /api without token to be rejected")
	}
}

// --- Security headers ---

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		wantCSP    bool
	}{
		{"development", false, false},
		{"production", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			if err := SecurityHeaders(tt.production)(okHandler)(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Header().Get("X-Frame-Options") != "DENY" {
				t.Error("expected X-Frame-Options DENY")
			}
			if got := rec.Header().Get("Content-Security-Policy") != ""; got != tt.wantCSP {
				t.Errorf("CSP present = %v, want %v", got, tt.wantCSP)
			}
		})
	}
}

// --- Trusted proxies ---

func TestIPExtractor(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.1.2.3")
	if got := extract(req); got != "203.0.113.7" {
		t.Errorf("expected forwarded client IP, got %s", got)
	}

	req.Header.Set("X-Real-IP", "203.0.113.9")
	if got := extract(req); got != "203.0.113.9" {
		t.Errorf("expected X-Real-IP from trusted proxy, got %s", got)
	}

	req.RemoteAddr = "198.51.100.1:5555"
	if got := extract(req); got != "198.51.100.1" {
		t.Errorf("expected untrusted peer IP, got %s", got)
	}
}

// --- Recovery ---

func TestRecovery_ConvertsPanic(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := Recovery()(func(echo.Context) error { panic("boom") })(c)
	if apperror.SafeCode(err) != http.StatusInternalServerError {
		t.Fatalf("expected internal error from recovered panic, got %v", err)
	}
	if apperror.SafeMessage(err) == "boom" {
		t.Error("expected panic value hidden from the client message")
	}
}
