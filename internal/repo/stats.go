// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate/statistics queries: the staff
// overview counters and the conversation fingerprint used for conditional
// responses (ETag generation) while clients poll for new messages.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/limitscope/caseportal/internal/domain"
)

// MessagesStats returns aggregate metadata for a conversation: the number of
// messages and the highest insertion sequence among them.
//
// Messages are append-only, so the pair changes exactly when a new message
// arrives or the conversation is deleted. When the conversation is empty
// both values are 0.
func MessagesStats(ctx context.Context, db *gorm.DB, key string) (count int64, lastSeq int64, err error) {
	q := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_key = ?", key)
	}

	if err = q().Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}

	var row struct{ Seq int64 }
	if err = q().Select("seq").Order("seq DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return count, row.Seq, nil
}

// CaseOverview computes the staff dashboard counters in one grouped pass over
// cases plus a user count.
func CaseOverview(ctx context.Context, db *gorm.DB) (domain.CaseStats, error) {
	var out domain.CaseStats

	var rows []struct {
		Status       domain.CaseStatus
		Total        int64
		Unclassified int64
		Paid         int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Case{}).
		Select(`status,
			COUNT(*) AS total,
			SUM(CASE WHEN likelihood IS NULL THEN 1 ELSE 0 END) AS unclassified,
			SUM(CASE WHEN is_paid THEN 1 ELSE 0 END) AS paid`).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return out, err
	}
	for _, r := range rows {
		out.TotalCases += r.Total
		out.AwaitingClassification += r.Unclassified
		out.PaidCases += r.Paid
		switch r.Status {
		case domain.StatusResolved:
			out.ResolvedCases += r.Total
		case domain.StatusDismissed:
			out.DismissedCases += r.Total
		default:
			out.OpenCases += r.Total
		}
	}

	if err := db.WithContext(ctx).Model(&domain.User{}).Count(&out.TotalUsers).Error; err != nil {
		return out, err
	}
	return out, nil
}
