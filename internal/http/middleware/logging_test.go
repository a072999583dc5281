package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"generated when absent", "", ""},
		{"propagated lowercase header", "x-request-id", "abc-123"},
		{"propagated canonical header", requestIDHeader, "Z-REQ-123"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			r := gin.New()
			r.Use(RequestID())
			r.GET("/cases", func(c *gin.Context) {
				v, _ := c.Get(requestIDKey)
				seen = asString(v)
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/cases", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" || got != seen {
				t.Fatalf("header %q, context %q", got, seen)
			}
			if tc.value != "" && got != tc.value {
				t.Fatalf("request id = %q; want %q", got, tc.value)
			}
		})
	}
}

func newRecoveryRouter(t *testing.T, h gin.HandlerFunc) (*gin.Engine, func() string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Recovery())
	r.POST("/cases/:id/pay", h)
	return r, buf.String
}

func TestRecovery_PanicBecomesErrorEnvelope(t *testing.T) {
	r, logs := newRecoveryRouter(t, func(c *gin.Context) { panic("gateway exploded") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cases/c-1/pay", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if body["success"] != false || body["code"] != "internal_error" || body["message"] != "internal server error" {
		t.Fatalf("unexpected body: %v", body)
	}
	if rid := w.Header().Get(requestIDHeader); rid == "" || body["request_id"] != rid {
		t.Fatalf("request_id %v does not match header %q", body["request_id"], rid)
	}
	if out := logs(); !strings.Contains(out, "panic recovered") || !strings.Contains(out, "gateway exploded") {
		t.Fatalf("panic not logged:\n%s", out)
	}
}

func TestRecovery_PanicAfterWriteKeepsBody(t *testing.T) {
	r, logs := newRecoveryRouter(t, func(c *gin.Context) {
		c.String(http.StatusOK, "partial-body")
		panic("late failure")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cases/c-1/pay", nil))

	if strings.Contains(w.Body.String(), "internal_error") ||
		strings.Contains(strings.ToLower(w.Header().Get("Content-Type")), "application/json") {
		t.Fatalf("error envelope written after body: CT=%q body=%q", w.Header().Get("Content-Type"), w.Body.String())
	}
	if !strings.Contains(logs(), "panic recovered") {
		t.Fatalf("panic not logged:\n%s", logs())
	}
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, scoped := range []bool{false, true} {
		buf := withCapturedLogger(t)
		r := gin.New()
		r.Use(RequestID())
		if scoped {
			r.Use(RedactingLogger(RedactOptions{}))
		}
		r.GET("/chat/conversations", func(c *gin.Context) {
			LoggerFrom(c).Info().Msg("listing conversations")
			c.Status(http.StatusOK)
		})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/chat/conversations", nil))

		first := strings.SplitN(buf.String(), "\n", 2)[0]
		if !strings.Contains(first, `"message":"listing conversations"`) {
			t.Fatalf("scoped=%v: handler line missing: %s", scoped, first)
		}
		if got := strings.Contains(first, `"request_id"`); got != scoped {
			t.Fatalf("scoped=%v: request_id present = %v in %s", scoped, got, first)
		}
	}
}

func TestAsStringAndTruncate(t *testing.T) {
	if asString("x") != "x" || asString(123) != "" || asString(nil) != "" {
		t.Fatalf("asString mismatch")
	}
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"abcdefgh", 5, "abcde…"},
		{"abc", 0, "abc"},
		{"abc", -1, "abc"},
	}
	for _, tc := range tests {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q; want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
