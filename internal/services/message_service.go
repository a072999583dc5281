// Package services – MessageService
//
// MessageService is the messaging relay between a client and staff. A
// conversation is named by a key that is either a case ID (the case's
// conversation) or a user ID (the user's general conversation). Clients may
// only use a conversation once they have paid; staff are never gated.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include the conversation key and actor.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/limitscope/caseportal/internal/domain"
	"github.com/limitscope/caseportal/internal/events"
	"github.com/limitscope/caseportal/internal/observability"
	"github.com/limitscope/caseportal/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPollInterval is the client polling cadence advertised with message
// listings when none is configured.
const DefaultPollInterval = 5 * time.Second

// MessageService relays chat messages.
type MessageService struct {
	DB     *gorm.DB
	Events events.Publisher

	// MaxMessageRunes caps message length; 0 disables the cap.
	MaxMessageRunes int
	// PollInterval is advertised to clients as the refresh contract.
	PollInterval time.Duration
}

// conversation is a resolved key: who owns it and whether it is unlocked.
type conversation struct {
	Key      string
	CaseID   string
	OwnerID  string
	Unlocked bool
}

// resolve interprets key as a case ID first and as a user ID second.
func (s *MessageService) resolve(ctx context.Context, key string) (*conversation, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrConversationNotFound
	}

	c, err := repo.GetCase(ctx, s.DB, key)
	switch {
	case err == nil:
		return &conversation{Key: key, CaseID: c.ID, OwnerID: c.OwnerUserID, Unlocked: c.CanChat}, nil
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	u, err := repo.GetUser(ctx, s.DB, key)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	paid, err := repo.UserHasPaidCase(ctx, s.DB, u.ID)
	if err != nil {
		return nil, err
	}
	return &conversation{Key: key, OwnerID: u.ID, Unlocked: paid}, nil
}

// open resolves key and checks that actor may use it.
func (s *MessageService) open(ctx context.Context, actor Actor, key string) (*conversation, error) {
	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	conv, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin {
		return conv, nil
	}
	if actor.UserID != conv.OwnerID {
		return nil, ErrForbidden
	}
	if !conv.Unlocked {
		observability.ChatLocked.Inc()
		return nil, ErrChatLocked
	}
	return conv, nil
}

// Post appends a message to the conversation named by key.
func (s *MessageService) Post(ctx context.Context, actor Actor, key, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Post",
		trace.WithAttributes(
			attribute.String("conversation.key", key),
			attribute.String("user.id", actor.UserID),
			attribute.Bool("user.admin", actor.IsAdmin),
		),
	)
	defer span.End()

	conv, err := s.open(ctx, actor, key)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(content) > s.MaxMessageRunes {
		return nil, ErrMessageTooLong
	}
	m, err := repo.CreateMessage(ctx, s.DB, conv.Key, actor.UserID, actor.IsAdmin, content)
	if err != nil {
		return nil, err
	}

	sender := "client"
	if actor.IsAdmin {
		sender = "admin"
	}
	observability.MessagesPosted.WithLabelValues(sender).Inc()
	publish(ctx, s.Events, events.Event{
		Type: events.MessagePosted, CaseID: conv.CaseID, ActorID: actor.UserID, At: m.CreatedAt,
		Attrs: map[string]string{"conversation_key": conv.Key, "sender": sender},
	})
	return m, nil
}

// List returns the conversation's messages oldest first.
func (s *MessageService) List(ctx context.Context, actor Actor, key string) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("conversation.key", key),
			attribute.String("user.id", actor.UserID),
		),
	)
	defer span.End()

	conv, err := s.open(ctx, actor, key)
	if err != nil {
		return nil, err
	}
	return repo.ListMessages(ctx, s.DB, conv.Key)
}

// Get returns one message of the conversation, after the same checks as
// List. Used to answer replayed posts.
func (s *MessageService) Get(ctx context.Context, actor Actor, key, id string) (*domain.Message, error) {
	conv, err := s.open(ctx, actor, key)
	if err != nil {
		return nil, err
	}
	m, err := repo.GetMessage(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && m.ConversationKey != conv.Key) {
		return nil, ErrMessageNotFound
	}
	return m, err
}

// Version returns the message count and highest sequence number of the
// conversation, after the same checks as List. Callers derive cache
// validators from it.
func (s *MessageService) Version(ctx context.Context, actor Actor, key string) (count, lastSeq int64, err error) {
	conv, err := s.open(ctx, actor, key)
	if err != nil {
		return 0, 0, err
	}
	return repo.MessagesStats(ctx, s.DB, conv.Key)
}

// Poll returns the advertised polling interval.
func (s *MessageService) Poll() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return DefaultPollInterval
}

// Conversations lists every conversation with at least one message, most
// recently active first, with its resolved owner. Admin only.
func (s *MessageService) Conversations(ctx context.Context, actor Actor) ([]domain.Conversation, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Conversations")
	defer span.End()

	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	sums, err := repo.ListConversations(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	if len(sums) == 0 {
		return []domain.Conversation{}, nil
	}

	keys := make([]string, 0, len(sums))
	for _, sm := range sums {
		keys = append(keys, sm.Key)
	}
	byCase, err := repo.GetCasesByID(ctx, s.DB, keys)
	if err != nil {
		return nil, err
	}

	ownerOf := make(map[string]string, len(keys))
	ownerIDs := make([]string, 0, len(keys))
	for _, k := range keys {
		owner := k
		if c, ok := byCase[k]; ok {
			owner = c.OwnerUserID
		}
		ownerOf[k] = owner
		ownerIDs = append(ownerIDs, owner)
	}
	users, err := repo.GetUsersByID(ctx, s.DB, ownerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Conversation, 0, len(sums))
	for _, sm := range sums {
		conv := domain.Conversation{
			Key:           sm.Key,
			Owner:         users[ownerOf[sm.Key]],
			MessageCount:  sm.MessageCount,
			LastMessageAt: sm.LastMessageAt,
		}
		if _, ok := byCase[sm.Key]; ok {
			conv.CaseID = sm.Key
		}
		out = append(out, conv)
	}
	return out, nil
}
