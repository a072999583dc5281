// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/limitscope/caseportal/internal/domain"
)

// EnsureUser inserts u when no user with u.ID exists and returns the stored
// row. Existing rows are returned unchanged.
func EnsureUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	tx := db.WithContext(ctx)
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(u).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
	}
	return GetUser(ctx, db, u.ID)
}

// GetUser fetches a user by ID, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsersByID returns the users among ids, keyed by ID.
func GetUsersByID(ctx context.Context, db *gorm.DB, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []domain.User
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// ListUsers returns users newest first, optionally filtered by a
// case-insensitive substring of first name, last name or email.
func ListUsers(ctx context.Context, db *gorm.DB, search string) ([]domain.User, error) {
	q := db.WithContext(ctx).Model(&domain.User{})
	if s := strings.TrimSpace(search); s != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
		q = q.Where(`LOWER(first_name) LIKE ? ESCAPE '\' OR LOWER(last_name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\'`, like, like, like)
	}
	out := []domain.User{}
	err := q.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

// UpdateUserEmail changes a user's email. Returns ErrDuplicate when another
// account already uses it and ErrNotFound when the user is missing.
func UpdateUserEmail(ctx context.Context, db *gorm.DB, id, email string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"email": email, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserPassword stores a new password hash.
func UpdateUserPassword(ctx context.Context, db *gorm.DB, id, hash string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"password_hash": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserAdmin records the admin flag last asserted by the identity
// provider.
func UpdateUserAdmin(ctx context.Context, db *gorm.DB, id string, admin bool) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_admin": admin, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
