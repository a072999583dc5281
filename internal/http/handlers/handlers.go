// Package handlers exposes the case portal over HTTP.
//
// Handlers are transport-thin: they resolve the Actor placed in the context
// by the session middleware, bind and normalize input, call the application
// services and translate results into the response envelope. Every
// authorization and gating rule lives in the services package.
package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/limitscope/caseportal/internal/domain"
	"github.com/limitscope/caseportal/internal/http/middleware"
	"github.com/limitscope/caseportal/internal/services"
)

//
// Service contracts (context-aware)
//

// CaseService is the case lifecycle consumed by the handlers.
type CaseService interface {
	Create(ctx context.Context, actor services.Actor, in services.NewCase) (*domain.Case, error)
	Get(ctx context.Context, actor services.Actor, id string) (*domain.Case, error)
	List(ctx context.Context, actor services.Actor, q services.CaseQuery) ([]domain.Case, error)
	SetStatus(ctx context.Context, actor services.Actor, id string, status domain.CaseStatus) (*domain.Case, error)
	AddNote(ctx context.Context, actor services.Actor, caseID, content string) (*domain.Note, error)
	ListNotes(ctx context.Context, actor services.Actor, caseID string) ([]domain.Note, error)
	Delete(ctx context.Context, actor services.Actor, id string) error
	MarkPaid(ctx context.Context, actor services.Actor, id string, plan domain.Plan) (*domain.Case, error)
	Stats(ctx context.Context, actor services.Actor) (domain.CaseStats, error)
}

// ClassificationService applies and reveals classifications.
type ClassificationService interface {
	Classify(ctx context.Context, actor services.Actor, id string, in services.Classification) (*domain.Case, error)
	ViewResults(ctx context.Context, actor services.Actor, id string) (*domain.Case, error)
}

// MessageService is the messaging relay.
type MessageService interface {
	Post(ctx context.Context, actor services.Actor, key, content string) (*domain.Message, error)
	List(ctx context.Context, actor services.Actor, key string) ([]domain.Message, error)
	Get(ctx context.Context, actor services.Actor, key, id string) (*domain.Message, error)
	Version(ctx context.Context, actor services.Actor, key string) (count, lastSeq int64, err error)
	Conversations(ctx context.Context, actor services.Actor) ([]domain.Conversation, error)
	Poll() time.Duration
}

// DocumentService handles case document intake and retrieval.
type DocumentService interface {
	Upload(ctx context.Context, actor services.Actor, caseID string, up services.Upload) (*domain.Document, error)
	List(ctx context.Context, actor services.Actor, caseID string) ([]domain.Document, error)
	Open(ctx context.Context, actor services.Actor, caseID, docID string) (*domain.Document, io.ReadCloser, error)
}

// UserService is the user directory.
type UserService interface {
	Me(ctx context.Context, actor services.Actor) (*domain.User, error)
	List(ctx context.Context, actor services.Actor, search string) ([]domain.User, error)
	UpdateEmail(ctx context.Context, actor services.Actor, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, actor services.Actor, current, next string) error
}

// IdempotencyStore records and recalls results of retried writes.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string) (resourceID string, found bool)
	Remember(ctx context.Context, userID, scope, key, resourceID string, status int)
}

//
// Handler wiring
//

// Deps bundles the services the handlers depend on. Idem may be nil, which
// disables replay of retried writes.
type Deps struct {
	Cases          CaseService
	Classification ClassificationService
	Messages       MessageService
	Documents      DocumentService
	Users          UserService
	Idem           IdempotencyStore
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	cases    CaseService
	classify ClassificationService
	msgs     MessageService
	docs     DocumentService
	users    UserService
	idem     IdempotencyStore
}

// New constructs a Handlers bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{
		cases:    d.Cases,
		classify: d.Classification,
		msgs:     d.Messages,
		docs:     d.Documents,
		users:    d.Users,
		idem:     d.Idem,
	}
}

// actor returns the caller resolved by the session middleware; the zero
// Actor (anonymous) when none.
func actor(c *gin.Context) services.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}

// replayed returns the resource recorded for this request's Idempotency-Key,
// if any. scope must match what IdempotencyValidator used.
func (h *Handlers) replayed(c *gin.Context, scope string) (string, bool) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil || !middleware.IsReplay(c) {
		return "", false
	}
	return h.idem.Lookup(c.Request.Context(), actor(c).UserID, scope, key)
}

// remember records the result of a successful write under the request's
// Idempotency-Key. Best effort.
func (h *Handlers) remember(c *gin.Context, scope, resourceID string, status int) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil {
		return
	}
	h.idem.Remember(c.Request.Context(), actor(c).UserID, scope, key, resourceID, status)
}

func markReplayed(c *gin.Context) { c.Header("Idempotency-Replayed", "true") }
