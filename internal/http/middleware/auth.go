// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller once per request. A session is a HS256 JWT
// carried either as a Bearer token or in the session cookie; its subject is
// provisioned into the user directory on first sight and stored in the Gin
// context as a services.Actor. The admin flag is taken from the verified
// claims on every request. Issuing sessions is someone else's job: this
// middleware only verifies them.
//
// For local development, AUTH_DEV_HEADERS accepts X-User-ID / X-User-Admin /
// X-User-Email instead of a token. Never enable it in production.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/limitscope/caseportal/internal/domain"
	"github.com/limitscope/caseportal/internal/services"
)

const (
	ctxKeyActor  = "actor"
	ctxKeyUserID = "userID"

	HeaderDevUserID    = "X-User-ID"
	HeaderDevUserAdmin = "X-User-Admin"
	HeaderDevUserEmail = "X-User-Email"
)

// SessionClaims is the expected JWT payload.
type SessionClaims struct {
	Email     string `json:"email"`
	FirstName string `json:"given_name,omitempty"`
	LastName  string `json:"family_name,omitempty"`
	Admin     bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// ProvisionFunc maps a verified identity to the stored user.
type ProvisionFunc func(ctx context.Context, id services.Identity) (*domain.User, error)

// SessionOptions configures Session.
type SessionOptions struct {
	Secret     []byte
	CookieName string
	DevHeaders bool
	Provision  ProvisionFunc
}

// Session attaches the authenticated Actor when the request carries a valid
// session. Requests without one pass through anonymously; RequireSession
// rejects them on protected routes. A token that is present but invalid is
// always rejected with 401.
func Session(opts SessionOptions) gin.HandlerFunc {
	cookie := opts.CookieName
	if cookie == "" {
		cookie = "session"
	}
	return func(c *gin.Context) {
		id, found, err := identityFrom(c, opts, cookie)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid session")
			return
		}
		if !found {
			c.Next()
			return
		}

		u, err := opts.Provision(c.Request.Context(), id)
		if err != nil {
			switch services.KindOf(err) {
			case services.KindConflict:
				abortJSON(c, http.StatusConflict, "conflict", err.Error())
			case services.KindValidation, services.KindNotAuthorized:
				abortJSON(c, http.StatusUnauthorized, "unauthorized", err.Error())
			default:
				LoggerFrom(c).Error().Err(err).Msg("user provisioning failed")
				abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
			}
			return
		}
		if u.AccountStatus == domain.AccountSuspended {
			abortJSON(c, http.StatusForbidden, "forbidden", "account suspended")
			return
		}

		c.Set(ctxKeyActor, services.Actor{UserID: u.ID, IsAdmin: id.IsAdmin})
		c.Set(ctxKeyUserID, u.ID)
		c.Next()
	}
}

// RequireSession rejects anonymous requests with 401.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ActorFrom(c); !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		c.Next()
	}
}

// ActorFrom returns the Actor resolved by Session.
func ActorFrom(c *gin.Context) (services.Actor, bool) {
	v, ok := c.Get(ctxKeyActor)
	if !ok {
		return services.Actor{}, false
	}
	a, ok := v.(services.Actor)
	return a, ok && !a.Anonymous()
}

// identityFrom extracts the caller's identity. found is false when the
// request carries no credentials at all.
func identityFrom(c *gin.Context, opts SessionOptions, cookie string) (id services.Identity, found bool, err error) {
	raw := bearerToken(c.GetHeader("Authorization"))
	if raw == "" {
		if v, cerr := c.Cookie(cookie); cerr == nil {
			raw = strings.TrimSpace(v)
		}
	}
	if raw != "" {
		claims, err := parseSession(raw, opts.Secret)
		if err != nil {
			return id, true, err
		}
		return services.Identity{
			ID:        claims.Subject,
			Email:     claims.Email,
			FirstName: claims.FirstName,
			LastName:  claims.LastName,
			IsAdmin:   claims.Admin,
		}, true, nil
	}

	if opts.DevHeaders {
		if uid := strings.TrimSpace(c.GetHeader(HeaderDevUserID)); uid != "" {
			admin, _ := strconv.ParseBool(c.GetHeader(HeaderDevUserAdmin))
			email := strings.TrimSpace(c.GetHeader(HeaderDevUserEmail))
			if email == "" {
				email = uid + "@dev.local"
			}
			return services.Identity{ID: uid, Email: email, IsAdmin: admin}, true, nil
		}
	}
	return id, false, nil
}

func bearerToken(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// parseSession verifies an HS256 token and returns its claims.
func parseSession(raw string, secret []byte) (*SessionClaims, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret not configured")
	}
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// abortJSON writes the standard failure envelope and stops the chain.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success":    false,
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
