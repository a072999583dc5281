// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/limitscope/caseportal/internal/domain"
)

// CreateMessage appends a message to the conversation identified by key.
// The store assigns Seq, which orders messages sharing a timestamp.
func CreateMessage(ctx context.Context, db *gorm.DB, key, senderID string, senderIsAdmin bool, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:              uuid.NewString(),
		ConversationKey: key,
		SenderID:        senderID,
		SenderIsAdmin:   senderIsAdmin,
		Content:         content,
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns every message of a conversation ordered
// deterministically (CreatedAt ASC, Seq ASC).
func ListMessages(ctx context.Context, db *gorm.DB, key string) ([]domain.Message, error) {
	out := []domain.Message{}
	err := db.WithContext(ctx).
		Where("conversation_key = ?", key).
		Order("created_at ASC, seq ASC").
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by its public ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ConversationSummary is one row of the conversation inbox.
type ConversationSummary struct {
	Key           string
	MessageCount  int64
	LastMessageAt time.Time
}

// ListConversations returns one summary per conversation key, most recently
// active first.
func ListConversations(ctx context.Context, db *gorm.DB) ([]ConversationSummary, error) {
	// Aggregate on seq (integer) and resolve timestamps in a second query:
	// MAX() over a time column comes back as TEXT in SQLite.
	var rows []struct {
		ConversationKey string
		MessageCount    int64
		LastSeq         int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("conversation_key, COUNT(*) AS message_count, MAX(seq) AS last_seq").
		Group("conversation_key").
		Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return []ConversationSummary{}, err
	}

	seqs := make([]int64, 0, len(rows))
	for _, r := range rows {
		seqs = append(seqs, r.LastSeq)
	}
	var last []domain.Message
	if err := db.WithContext(ctx).Where("seq IN ?", seqs).Order("created_at DESC, seq DESC").Find(&last).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.ConversationKey] = r.MessageCount
	}

	out := make([]ConversationSummary, 0, len(last))
	for _, m := range last {
		out = append(out, ConversationSummary{
			Key:           m.ConversationKey,
			MessageCount:  counts[m.ConversationKey],
			LastMessageAt: m.CreatedAt,
		})
	}
	return out, nil
}
