package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/limitscope/caseportal/internal/repo"
)

// DefaultIdempotencyTTL is how long a recorded result can be replayed.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyService records the outcome of retried writes keyed by
// (user, scope, Idempotency-Key), so a retry returns the original result.
// The scope is the case ID for payments and the conversation key for messages.
type IdempotencyService struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Lookup returns the resource ID recorded for the key, if any.
func (s *IdempotencyService) Lookup(ctx context.Context, userID, scope, key string) (string, bool) {
	if s == nil || s.DB == nil || strings.TrimSpace(key) == "" {
		return "", false
	}
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("idempotency lookup failed")
		}
		return "", false
	}
	return rec.ResourceID, true
}

// Exists reports whether an unexpired record exists at now. Its signature
// matches middleware.IdempotencyLookup.
func (s *IdempotencyService) Exists(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	if s == nil || s.DB == nil {
		return false, nil
	}
	_, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Remember records resourceID as the result for the key. It is best effort;
// a concurrent duplicate keeps the first record.
func (s *IdempotencyService) Remember(ctx context.Context, userID, scope, key, resourceID string, status int) {
	if s == nil || s.DB == nil || strings.TrimSpace(key) == "" {
		return
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if _, err := repo.CreateIdempotency(ctx, s.DB, userID, scope, key, resourceID, status, ttl); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("idempotency record failed")
	}
}

// Purge drops expired records and returns how many were removed.
func (s *IdempotencyService) Purge(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, time.Now().UTC())
}
