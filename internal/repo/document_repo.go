// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Document model.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/limitscope/caseportal/internal/domain"
)

// CreateDocument inserts document metadata. The blob is stored separately.
func CreateDocument(ctx context.Context, db *gorm.DB, d *domain.Document) error {
	return db.WithContext(ctx).Create(d).Error
}

// ListDocuments returns the documents of caseID in upload order.
func ListDocuments(ctx context.Context, db *gorm.DB, caseID string) ([]domain.Document, error) {
	out := []domain.Document{}
	err := db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// GetDocument fetches one document scoped to its case, or ErrNotFound.
func GetDocument(ctx context.Context, db *gorm.DB, caseID, id string) (*domain.Document, error) {
	var d domain.Document
	if err := db.WithContext(ctx).Where("id = ? AND case_id = ?", id, caseID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}
