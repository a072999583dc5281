package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, pre gin.HandlerFunc, req *http.Request) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{}, nil, httptest.NewRequest(http.MethodGet, "/ok", nil))

	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	if h.Get("Permissions-Policy") != "" || h.Get("X-Permitted-Cross-Domain-Policies") != "" {
		t.Fatalf("unexpected policy headers: %#v", h)
	}
	if h.Get("Cache-Control") != "" || h.Get("Pragma") != "" || h.Get("Expires") != "" {
		t.Fatalf("unexpected cache headers: %#v", h)
	}
	if h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("unexpected HSTS: %#v", h)
	}
	if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Fatalf("expose = %q; want X-Request-ID", got)
	}
}

func TestSecurityHeaders_ExposeHeaders(t *testing.T) {
	t.Run("appends configured headers", func(t *testing.T) {
		opt := SecurityOptions{ExposeHeaders: []string{"X-Poll-Interval", "ETag"}}
		h := serveSecurity(t, opt, nil, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID, X-Poll-Interval, ETag" {
			t.Fatalf("expose = %q", got)
		}
	})

	t.Run("keeps what CORS already exposed", func(t *testing.T) {
		pre := func(c *gin.Context) {
			c.Header("Access-Control-Expose-Headers", "Foo")
			c.Next()
		}
		h := serveSecurity(t, SecurityOptions{}, pre, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if got := h.Get("Access-Control-Expose-Headers"); got != "Foo, X-Request-ID" {
			t.Fatalf("expose = %q; want 'Foo, X-Request-ID'", got)
		}
	})

	t.Run("no duplicates", func(t *testing.T) {
		pre := func(c *gin.Context) {
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, ETag")
			c.Next()
		}
		opt := SecurityOptions{ExposeHeaders: []string{"ETag", ""}}
		h := serveSecurity(t, opt, pre, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID, ETag" {
			t.Fatalf("expose = %q", got)
		}
	})
}

func TestSecurityHeaders_PolicyNoStoreAndHSTS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.TLS = &tls.ConnectionState{}
	h := serveSecurity(t, SecurityOptions{
		EnableHSTS:   true,
		HSTSMaxAge:   24 * time.Hour,
		NoStore:      true,
		EnablePolicy: true,
	}, nil, req)

	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("missing policy headers: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("missing cache headers: %#v", h)
	}
	want := "max-age=86400; includeSubDomains; preload"
	if got := h.Get("Strict-Transport-Security"); got != want {
		t.Fatalf("HSTS = %q; want %q", got, want)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	t.Run("plain http gets none", func(t *testing.T) {
		h := serveSecurity(t, SecurityOptions{EnableHSTS: true}, nil, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if got := h.Get("Strict-Transport-Security"); got != "" {
			t.Fatalf("HSTS on plain http: %q", got)
		}
	})

	t.Run("forwarded proto with default max-age", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("X-Forwarded-Proto", "HTTPS")
		h := serveSecurity(t, SecurityOptions{EnableHSTS: true}, nil, req)
		if got := h.Get("Strict-Transport-Security"); !strings.HasPrefix(got, "max-age=15552000;") {
			t.Fatalf("HSTS = %q; want 180 day default", got)
		}
	})
}

func Test_isHTTPS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(req) {
		t.Fatalf("plain HTTP should not be https")
	}
	req.TLS = &tls.ConnectionState{}
	if !isHTTPS(req) {
		t.Fatalf("TLS request should be https")
	}
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.Header.Set("X-Forwarded-Proto", "https")
	if !isHTTPS(req2) {
		t.Fatalf("X-Forwarded-Proto=https should be https")
	}
}
