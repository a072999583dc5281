// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, a hardening middleware for a JSON API
// behind a reverse proxy. Case data is sensitive, so responses default to
// no-store; handlers that support conditional requests (message polling)
// override Cache-Control themselves.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
//
// EnableHSTS emits Strict-Transport-Security, and only on HTTPS requests.
// Enable it only when traffic is HTTPS end-to-end. HSTSMaxAge defaults to
// 180 days.
//
// ExposeHeaders are response headers browser clients must be able to read
// (e.g. X-Poll-Interval, ETag). X-Request-ID is always exposed.
type SecurityOptions struct {
	EnableHSTS    bool
	HSTSMaxAge    time.Duration
	NoStore       bool // add Cache-Control: no-store
	EnablePolicy  bool // include Permissions-Policy, etc.
	ExposeHeaders []string
}

// SecurityHeaders adds:
//
//	X-Content-Type-Options: nosniff
//	X-Frame-Options: DENY
//	Referrer-Policy: no-referrer
//	Permissions-Policy / X-Permitted-Cross-Domain-Policies   (EnablePolicy)
//	Cache-Control: no-store, Pragma, Expires                 (NoStore)
//	Strict-Transport-Security                                (EnableHSTS on HTTPS)
//	Access-Control-Expose-Headers                            (X-Request-ID + ExposeHeaders)
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	expose := append([]string{requestIDHeader}, opt.ExposeHeaders...)

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security",
				"max-age="+strconv.Itoa(maxAge)+"; includeSubDomains; preload")
		}

		// Append without clobbering what CORS may already expose.
		const hdr = "Access-Control-Expose-Headers"
		cur := h.Get(hdr)
		for _, name := range expose {
			if name == "" || strings.Contains(cur, name) {
				continue
			}
			if cur == "" {
				cur = name
			} else {
				cur += ", " + name
			}
		}
		h.Set(hdr, cur)

		c.Next()
	}
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
