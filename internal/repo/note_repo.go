// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Note model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/limitscope/caseportal/internal/domain"
)

// CreateNote appends a note to caseID authored by authorID.
func CreateNote(ctx context.Context, db *gorm.DB, caseID, authorID, content string) (*domain.Note, error) {
	n := &domain.Note{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotes returns the notes of caseID, newest first.
func ListNotes(ctx context.Context, db *gorm.DB, caseID string) ([]domain.Note, error) {
	out := []domain.Note{}
	err := db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}
