package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures RedactingLogger. MaskHeaders are matched
// case-insensitively and replaced wholesale, on top of Authorization,
// Cookie and Set-Cookie.
type RedactOptions struct {
	MaskHeaders []string
}

// piiPattern pairs a detector with its replacement marker.
type piiPattern struct {
	re   *regexp.Regexp
	mark string
}

// piiPatterns run in order. IDs go first so the loose phone pattern never
// bites into the digit groups of a UUID.
var piiPatterns = []piiPattern{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

func scrubPII(s string) string {
	for _, p := range piiPatterns {
		if s == "" {
			return s
		}
		s = p.re.ReplaceAllString(s, p.mark)
	}
	return s
}

// headerMask decides how each request header is logged.
type headerMask map[string]struct{}

func newHeaderMask(extra []string) headerMask {
	m := headerMask{"authorization": {}, "cookie": {}, "set-cookie": {}}
	for _, h := range extra {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			m[h] = struct{}{}
		}
	}
	return m
}

func (m headerMask) scrub(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, masked := m[strings.ToLower(k)]; masked {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = scrubPII(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger emits one structured line per request with PII scrubbed
// from the query string and headers. Bodies are never logged and paths are
// logged as route templates, so case ids and conversation keys stay out of
// the log. It also installs the request-scoped logger (request id, method,
// route) on the Gin context and on the request context for zerolog.Ctx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	mask := newHeaderMask(opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rid, _ := c.Get(requestIDKey)
		reqLog := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", route).
			Logger()
		c.Set(loggerKey, &reqLog)
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		query := scrubPII(truncate(c.Request.URL.RawQuery, maxQueryLogLength))
		headers := mask.scrub(c.Request.Header)

		c.Next()

		status := c.Writer.Status()
		ev := eventForStatus(&reqLog, status)
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Str("user_id", userIDFromCtx(c)).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}

func eventForStatus(l *zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return l.Error()
	case status >= 400:
		return l.Warn()
	default:
		return l.Info()
	}
}
