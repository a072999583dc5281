// Package services – UserService
//
// UserService owns the user directory: provisioning users from verified
// session claims, profile reads, the staff user list and self-service email
// and password changes.
package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/limitscope/caseportal/internal/domain"
	"github.com/limitscope/caseportal/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MinPasswordRunes is the shortest accepted password.
const MinPasswordRunes = 8

// bcrypt ignores input past 72 bytes.
const maxPasswordBytes = 72

// UserService manages user records.
type UserService struct {
	DB *gorm.DB

	// HashCost overrides bcrypt.DefaultCost (tests use bcrypt.MinCost).
	HashCost int
}

// Identity is the verified subject of a session.
type Identity struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	IsAdmin   bool
}

// Provision returns the stored user for id, creating it from the identity on
// first sight. Profile fields stored earlier win over later claims; the admin
// flag always follows the identity provider and is synced when it changes.
func (s *UserService) Provision(ctx context.Context, id Identity) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Provision", trace.WithAttributes(attribute.String("user.id", id.ID)))
	defer span.End()

	id.ID = strings.TrimSpace(id.ID)
	if id.ID == "" {
		return nil, ErrForbidden
	}
	if u, err := repo.GetUser(ctx, s.DB, id.ID); err == nil {
		if u.IsAdmin != id.IsAdmin {
			if err := repo.UpdateUserAdmin(ctx, s.DB, u.ID, id.IsAdmin); err != nil {
				return nil, err
			}
			u.IsAdmin = id.IsAdmin
		}
		return u, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	email, err := normalizeEmail(id.Email)
	if err != nil {
		return nil, err
	}
	u, err := repo.EnsureUser(ctx, s.DB, &domain.User{
		ID:            id.ID,
		Email:         email,
		FirstName:     strings.TrimSpace(id.FirstName),
		LastName:      strings.TrimSpace(id.LastName),
		IsAdmin:       id.IsAdmin,
		AccountStatus: domain.AccountActive,
	})
	if errors.Is(err, repo.ErrNotFound) {
		// The insert was skipped on a unique email rather than the id.
		return nil, ErrEmailTaken
	}
	return u, err
}

// Me returns the actor's own record.
func (s *UserService) Me(ctx context.Context, actor Actor) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Me", trace.WithAttributes(attribute.String("user.id", actor.UserID)))
	defer span.End()

	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	return s.get(ctx, actor.UserID)
}

// List returns users newest first, optionally filtered by name or email.
// Admin only.
func (s *UserService) List(ctx context.Context, actor Actor, search string) ([]domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "List")
	defer span.End()

	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	return repo.ListUsers(ctx, s.DB, search)
}

// UpdateEmail changes the actor's email address.
func (s *UserService) UpdateEmail(ctx context.Context, actor Actor, email string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "UpdateEmail", trace.WithAttributes(attribute.String("user.id", actor.UserID)))
	defer span.End()

	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateUserEmail(ctx, s.DB, actor.UserID, addr); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			return nil, ErrEmailTaken
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.get(ctx, actor.UserID)
}

// UpdatePassword sets a new password. When one is already set, current must
// match it.
func (s *UserService) UpdatePassword(ctx context.Context, actor Actor, current, next string) error {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "UpdatePassword", trace.WithAttributes(attribute.String("user.id", actor.UserID)))
	defer span.End()

	if actor.Anonymous() {
		return ErrForbidden
	}
	if utf8.RuneCountInString(next) < MinPasswordRunes {
		return ErrWeakPassword
	}
	if len(next) > maxPasswordBytes {
		return ErrPasswordTooLong
	}

	u, err := s.get(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if u.PasswordHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
			return ErrWrongPassword
		}
	}

	cost := s.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), cost)
	if err != nil {
		return err
	}
	if err := repo.UpdateUserPassword(ctx, s.DB, actor.UserID, string(hash)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *UserService) get(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// normalizeEmail accepts a bare address ("a@b.c") and lowercases it.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	a, err := mail.ParseAddress(raw)
	if err != nil || a.Address != raw || !strings.Contains(a.Address[strings.LastIndex(a.Address, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(a.Address), nil
}
