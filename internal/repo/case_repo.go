// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Case model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition. Authorization and gating live in the
// services package.
//
// Error semantics:
//   - When a case is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - Conditional updates report whether a row changed instead of failing,
//     so callers can distinguish "no-op" from "missing".
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/limitscope/caseportal/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CaseFilter narrows ListCases. Empty fields do not filter.
type CaseFilter struct {
	OwnerID string            // restrict to one owner
	Search  string            // case-insensitive substring on owner first/last name or email
	Status  domain.CaseStatus // exact status
}

// CreateCase inserts a fully populated case row.
func CreateCase(ctx context.Context, db *gorm.DB, c *domain.Case) error {
	return db.WithContext(ctx).Create(c).Error
}

// GetCase fetches a bare case row by ID.
func GetCase(ctx context.Context, db *gorm.DB, id string) (*domain.Case, error) {
	var c domain.Case
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCaseDetail fetches a case with its owner and documents. Notes are
// preloaded newest first only when withNotes is set.
func GetCaseDetail(ctx context.Context, db *gorm.DB, id string, withNotes bool) (*domain.Case, error) {
	q := db.WithContext(ctx).
		Preload("Owner").
		Preload("Documents", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") })
	if withNotes {
		q = q.Preload("Notes", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at DESC, id DESC") })
	}
	var c domain.Case
	if err := q.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCases returns cases matching f, newest first, each with its owner
// preloaded. It returns an empty slice when nothing matches.
func ListCases(ctx context.Context, db *gorm.DB, f CaseFilter) ([]domain.Case, error) {
	q := db.WithContext(ctx).Model(&domain.Case{}).Preload("Owner")
	if f.OwnerID != "" {
		q = q.Where("cases.owner_user_id = ?", f.OwnerID)
	}
	if f.Status != "" {
		q = q.Where("cases.status = ?", f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
		q = q.Joins("LEFT JOIN users ON users.id = cases.owner_user_id").
			Where(`LOWER(users.first_name) LIKE ? ESCAPE '\' OR LOWER(users.last_name) LIKE ? ESCAPE '\' OR LOWER(users.email) LIKE ? ESCAPE '\'`, like, like, like)
	}
	out := []domain.Case{}
	err := q.Select("cases.*").Order("cases.created_at DESC, cases.id DESC").Find(&out).Error
	return out, err
}

// UpdateCaseStatus sets the workflow status. Returns ErrNotFound if no row matched.
func UpdateCaseStatus(ctx context.Context, db *gorm.DB, id string, status domain.CaseStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Case{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClassifyCase writes the classification triple, stamps classified_at and
// clears classification_viewed in a single UPDATE.
func ClassifyCase(ctx context.Context, db *gorm.DB, id string, likelihood, fundLikelihood domain.Likelihood, recommendation string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Case{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"likelihood":            likelihood,
			"fund_likelihood":       fundLikelihood,
			"recommendation":        recommendation,
			"classified_at":         at,
			"classification_viewed": false,
			"updated_at":            at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkClassificationViewed flips classification_viewed to true when the case
// is classified and not yet viewed. It reports whether a row changed.
func MarkClassificationViewed(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Case{}).
		Where("id = ? AND likelihood IS NOT NULL AND classification_viewed = ?", id, false).
		Update("classification_viewed", true)
	return res.RowsAffected > 0, res.Error
}

// ClaimCasePayment reserves an unpaid, classified case for one charge. A
// claim older than staleBefore is treated as abandoned and can be taken
// over. It reports whether this caller now holds the claim.
func ClaimCasePayment(ctx context.Context, db *gorm.DB, id string, at, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Case{}).
		Where("id = ? AND is_paid = ? AND likelihood IS NOT NULL", id, false).
		Where("payment_claimed_at IS NULL OR payment_claimed_at < ?", staleBefore).
		Update("payment_claimed_at", at)
	return res.RowsAffected > 0, res.Error
}

// ReleaseCasePayment drops a claim after a failed charge.
func ReleaseCasePayment(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Case{}).
		Where("id = ? AND is_paid = ?", id, false).
		Update("payment_claimed_at", nil).Error
}

// MarkCasePaid records the purchase when the case is classified and unpaid
// and clears any payment claim. It reports whether a row changed; false
// means already paid or unclassified.
func MarkCasePaid(ctx context.Context, db *gorm.DB, id string, plan domain.Plan, paymentRef string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Case{}).
		Where("id = ? AND is_paid = ? AND likelihood IS NOT NULL", id, false).
		Updates(map[string]any{
			"is_paid":            true,
			"paid_plan":          plan,
			"paid_at":            at,
			"payment_ref":        paymentRef,
			"payment_claimed_at": nil,
			"updated_at":         at,
		})
	return res.RowsAffected > 0, res.Error
}

// DeleteCaseCascade removes the case and everything scoped to it: messages
// keyed by the case id, notes, documents and the case row itself. Run it
// inside a transaction. Returns ErrNotFound if the case row did not exist.
func DeleteCaseCascade(ctx context.Context, db *gorm.DB, id string) error {
	tx := db.WithContext(ctx)
	if err := tx.Where("conversation_key = ?", id).Delete(&domain.Message{}).Error; err != nil {
		return err
	}
	if err := tx.Where("case_id = ?", id).Delete(&domain.Note{}).Error; err != nil {
		return err
	}
	if err := tx.Where("case_id = ?", id).Delete(&domain.Document{}).Error; err != nil {
		return err
	}
	res := tx.Where("id = ?", id).Delete(&domain.Case{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateTombstone records that caseID was deleted by actorID.
func CreateTombstone(ctx context.Context, db *gorm.DB, caseID, actorID string, at time.Time) error {
	t := &domain.CaseTombstone{CaseID: caseID, DeletedBy: actorID, DeletedAt: at}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// IsTombstoned reports whether caseID has been deleted before.
func IsTombstoned(ctx context.Context, db *gorm.DB, caseID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.CaseTombstone{}).Where("case_id = ?", caseID).Count(&n).Error
	return n > 0, err
}

// UserHasPaidCase reports whether userID owns at least one paid case.
func UserHasPaidCase(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Case{}).
		Where("owner_user_id = ? AND is_paid = ?", userID, true).
		Count(&n).Error
	return n > 0, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// GetCasesByID loads the cases whose IDs are in ids, keyed by ID. Missing IDs
// are simply absent from the map.
func GetCasesByID(ctx context.Context, db *gorm.DB, ids []string) (map[string]*domain.Case, error) {
	out := make(map[string]*domain.Case, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Case
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}
