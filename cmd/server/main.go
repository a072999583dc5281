// Command server runs the case portal HTTP API.
//
// @title                       Case Portal API
// @version                     1.0
// @description                 Account-restriction case intake, staff classification and paid client messaging.
// @BasePath                    /api
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Session token: "Bearer <jwt>"
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/limitscope/caseportal/internal/config"
	"github.com/limitscope/caseportal/internal/events"
	httpapi "github.com/limitscope/caseportal/internal/http"
	"github.com/limitscope/caseportal/internal/observability"
	"github.com/limitscope/caseportal/internal/payments"
	"github.com/limitscope/caseportal/internal/repo"
	"github.com/limitscope/caseportal/internal/services"
	"github.com/limitscope/caseportal/internal/storage"
	"github.com/limitscope/caseportal/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownGrace = 15 * time.Second
	purgeEvery    = time.Hour
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	sysutil.Install(sysutil.NewLogger(os.Stdout, cfg.LogPretty, cfg.OTEL.ServiceName, ver))
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Blob.Driver).Msg("open upload store")
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, events.NATSOptions{Name: cfg.OTEL.ServiceName})
		if err != nil {
			log.Fatal().Err(err).Msg("connect event bus")
		}
		defer nc.Close()
		publisher = events.NewBreaker(nc, events.BreakerSettings{})
		log.Info().Str("prefix", cfg.NATS.SubjectPrefix).Msg("publishing case events to NATS")
	}

	r := gin.New()
	idem := httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Events:   publisher,
		Payments: payments.NewMock(cfg.PaymentMockDelay),
		Blobs:    blobs,
	}, cfg)

	go purgeIdempotency(ctx, idem)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// purgeIdempotency drops expired Idempotency-Key records until ctx ends.
func purgeIdempotency(ctx context.Context, idem *services.IdempotencyService) {
	t := time.NewTicker(purgeEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := idem.Purge(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("idempotency purge")
			}
		}
	}
}

func openBlobs(ctx context.Context, cfg config.Config) (services.BlobStore, error) {
	if cfg.Blob.Driver == "s3" {
		log.Info().Str("bucket", cfg.Blob.Bucket).Msg("storing documents in S3")
		return storage.NewS3(ctx, storage.S3Options{
			Bucket:   cfg.Blob.Bucket,
			Prefix:   cfg.Blob.Prefix,
			Region:   cfg.Blob.Region,
			Endpoint: cfg.Blob.Endpoint,
		})
	}
	return storage.NewLocalFS(cfg.UploadDir)
}
