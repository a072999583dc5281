// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, sessions, idempotency, and rate limiting.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/limitscope/caseportal/docs"
	"github.com/limitscope/caseportal/internal/config"
	"github.com/limitscope/caseportal/internal/events"
	"github.com/limitscope/caseportal/internal/http/handlers"
	"github.com/limitscope/caseportal/internal/http/middleware"
	"github.com/limitscope/caseportal/internal/payments"
	"github.com/limitscope/caseportal/internal/services"
)

// multipartOverhead is added to MaxUploadBytes for form boundaries and
// fields so that a file exactly at the limit still parses.
const multipartOverhead = 1 << 20

// Deps are the infrastructure adapters the services run on. Events and
// Payments default to no-op implementations when nil.
type Deps struct {
	DB       *gorm.DB
	Events   events.Publisher
	Payments payments.Gateway
	Blobs    services.BlobStore
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and returns the idempotency service so the caller can schedule
// purges of expired keys.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (JSON vs multipart)
//  6. Compression
//  7. Metrics
//  8. CORS and security headers (before auth so preflights never 401)
//
// The API group then adds, in order:
//  9. Session: resolve the caller, then require one
//  10. Idempotency validator (before rate limiting to allow bypass on replay)
//  11. Rate limiter (per user/IP, bypass on replay)
//
// Health, metrics and docs sit outside the group and never read the
// session cookie.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) *services.IdempotencyService {
	r.HandleMethodNotAllowed = true

	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Payments == nil {
		deps.Payments = payments.NewMock(cfg.PaymentMockDelay)
	}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderDevUserEmail},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(cfg.MaxBodyBytes, cfg.MaxUploadBytes+multipartOverhead))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(cors.New(corsConfig(cfg.CORS.AllowedOrigins)))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       true,
		EnablePolicy:  true,
		ExposeHeaders: exposedHeaders,
	}))

	// Services
	users := &services.UserService{DB: deps.DB}
	idem := &services.IdempotencyService{DB: deps.DB, TTL: cfg.IdempotencyTTL}
	caseSvc := &services.CaseService{DB: deps.DB, Events: deps.Events, Payments: deps.Payments, Blobs: deps.Blobs}
	h := handlers.New(handlers.Deps{
		Cases:          caseSvc,
		Classification: &services.ClassificationService{DB: deps.DB, Events: deps.Events},
		Messages: &services.MessageService{
			DB:              deps.DB,
			Events:          deps.Events,
			MaxMessageRunes: cfg.MaxMessageRunes,
			PollInterval:    cfg.ChatPollInterval,
		},
		Documents: &services.DocumentService{DB: deps.DB, Blobs: deps.Blobs, MaxBytes: cfg.MaxUploadBytes},
		Users:     users,
		Idem:      idem,
	})

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		middleware.Session(middleware.SessionOptions{
			Secret:     []byte(cfg.Session.Secret),
			CookieName: cfg.Session.CookieName,
			DevHeaders: cfg.Session.DevHeaders,
			Provision:  users.Provision,
		}),
		middleware.RequireSession(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.Exists),
		rl.Handler(),
	)
	{
		// Cases (owner)
		api.POST("/cases", h.CreateCase)
		api.GET("/cases", h.ListMyCases)
		api.GET("/cases/:id", h.GetCase)
		api.PUT("/cases/:id/view-results", h.ViewResults)
		api.POST("/cases/:id/pay", h.MarkPaid)

		// Documents
		api.POST("/cases/:id/documents", h.UploadDocument)
		api.GET("/cases/:id/documents", h.ListDocuments)
		api.GET("/cases/:id/documents/:docId", h.DownloadDocument)

		// Staff
		admin := api.Group("/admin")
		admin.GET("/cases", h.AdminListCases)
		admin.GET("/cases/:id", h.AdminGetCase)
		admin.PUT("/cases/:id/status", h.SetStatus)
		admin.PUT("/cases/:id/classify", h.Classify)
		admin.POST("/cases/:id/notes", h.AddNote)
		admin.GET("/cases/:id/notes", h.ListNotes)
		admin.DELETE("/cases/:id", h.DeleteCase)
		admin.GET("/stats", h.Stats)
		admin.GET("/users", h.ListUsers)

		// Chat
		api.GET("/chat/conversations", h.ListConversations)
		api.GET("/chat/messages/:key", h.ListMessages)
		api.POST("/chat/messages/:key", h.PostMessage)

		// Account
		api.GET("/auth/me", h.Me)
		api.PUT("/auth/email", h.UpdateEmail)
		api.PUT("/auth/password", h.UpdatePassword)
	}
	return idem
}

// exposedHeaders are response headers browser clients read.
var exposedHeaders = []string{"ETag", "X-Poll-Interval", "Idempotency-Replayed", "Retry-After"}

// corsConfig allows every origin without credentials when no allowlist is
// configured, and the listed origins with credentials otherwise.
func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
			middleware.HeaderIdempotencyKey,
			middleware.HeaderDevUserID, middleware.HeaderDevUserAdmin, middleware.HeaderDevUserEmail,
		},
		ExposeHeaders: append([]string{"X-Request-ID", "Content-Length"}, exposedHeaders...),
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		return cc
	}
	cc.AllowOrigins = origins
	cc.AllowCredentials = true
	return cc
}

// limitBody caps request bodies with http.MaxBytesReader: multipart uploads
// get uploadMax, everything else jsonMax. A non-positive cap disables the
// limit for that kind.
func limitBody(jsonMax, uploadMax int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := jsonMax
		if strings.HasPrefix(strings.ToLower(c.ContentType()), "multipart/") {
			limit = uploadMax
		}
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
