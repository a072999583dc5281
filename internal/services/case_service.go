// Package services – CaseService
//
// CaseService is the case lifecycle engine: intake, staff workflow (status,
// notes, deletion), the owner's purchase step and the staff overview. Every
// method takes the calling Actor explicitly and enforces ownership or admin
// rights itself; handlers never make authorization decisions.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry the case and actor identifiers.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/limitscope/caseportal/internal/domain"
	"github.com/limitscope/caseportal/internal/events"
	"github.com/limitscope/caseportal/internal/observability"
	"github.com/limitscope/caseportal/internal/payments"
	"github.com/limitscope/caseportal/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CaseService coordinates case persistence, payment and event emission.
type CaseService struct {
	DB       *gorm.DB
	Events   events.Publisher
	Payments payments.Gateway
	Blobs    BlobStore

	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewCase is the client-authored input to Create.
type NewCase struct {
	Title string
	domain.Intake
}

// CaseQuery narrows List. Search only applies to staff listings.
type CaseQuery struct {
	Search string
	Status string
}

var titleCaser = cases.Title(language.English)

func (s *CaseService) tracer() trace.Tracer { return otel.Tracer("services/CaseService") }

// Create stores a new PENDING, unclassified case owned by the actor.
func (s *CaseService) Create(ctx context.Context, actor Actor, in NewCase) (*domain.Case, error) {
	ctx, span := s.tracer().Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", actor.UserID)),
	)
	defer span.End()

	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	in.FreeTextReason = strings.TrimSpace(in.FreeTextReason)
	if in.FreeTextReason == "" {
		return nil, ErrEmptyReason
	}
	if in.AccountType == "" {
		in.AccountType = domain.AccountPersonal
	}
	if !in.AccountType.Valid() {
		return nil, ErrInvalidAccountType
	}
	if in.RestrictionType == "" {
		in.RestrictionType = domain.RestrictionUnknown
	}
	if !in.RestrictionType.Valid() {
		return nil, ErrInvalidRestrictionType
	}
	in.Country = strings.TrimSpace(in.Country)

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = defaultCaseTitle(in.RestrictionType, in.Country)
	}

	now := nowUTC(s.Now)
	c := &domain.Case{
		ID:          uuid.NewString(),
		OwnerUserID: actor.UserID,
		Title:       title,
		Intake:      in.Intake,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.CreateCase(ctx, s.DB, c); err != nil {
		return nil, err
	}
	c.RefreshGates()
	span.SetAttributes(attribute.String("case.id", c.ID))

	observability.CasesCreated.Inc()
	publish(ctx, s.Events, events.Event{
		Type: events.CaseCreated, CaseID: c.ID, ActorID: actor.UserID, At: now,
		Attrs: map[string]string{"restriction_type": string(c.RestrictionType)},
	})
	return c, nil
}

// defaultCaseTitle renders "<Restriction> Limitation: <Country>".
func defaultCaseTitle(r domain.RestrictionType, country string) string {
	if country == "" {
		country = "Unknown"
	}
	return titleCaser.String(r.Label()) + " Limitation: " + country
}

// Get returns one case. Staff see notes and the full classification; the
// owner sees documents and, until classification, no classification fields.
func (s *CaseService) Get(ctx context.Context, actor Actor, id string) (*domain.Case, error) {
	ctx, span := s.tracer().Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("case.id", id),
			attribute.String("user.id", actor.UserID),
		),
	)
	defer span.End()

	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	c, err := repo.GetCaseDetail(ctx, s.DB, id, actor.IsAdmin)
	if err != nil {
		return nil, caseLookupErr(err)
	}
	if !actor.canSee(c.OwnerUserID) {
		return nil, ErrForbidden
	}
	if !actor.IsAdmin {
		c.RedactForOwner()
	}
	return c, nil
}

// List returns cases newest first. Staff see every case and may search by
// owner name or email; clients see their own cases only.
func (s *CaseService) List(ctx context.Context, actor Actor, q CaseQuery) ([]domain.Case, error) {
	ctx, span := s.tracer().Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("user.id", actor.UserID),
			attribute.Bool("user.admin", actor.IsAdmin),
			attribute.String("filter.status", q.Status),
		),
	)
	defer span.End()

	if actor.Anonymous() {
		return nil, ErrForbidden
	}
	f := repo.CaseFilter{}
	if st := strings.TrimSpace(q.Status); st != "" {
		f.Status = domain.CaseStatus(strings.ToUpper(st))
		if !f.Status.Valid() {
			return nil, ErrInvalidStatus
		}
	}
	if actor.IsAdmin {
		f.Search = q.Search
	} else {
		f.OwnerID = actor.UserID
	}

	items, err := repo.ListCases(ctx, s.DB, f)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin {
		for i := range items {
			items[i].RedactForOwner()
		}
	}
	return items, nil
}

// SetStatus moves a case to any status. Admin only.
func (s *CaseService) SetStatus(ctx context.Context, actor Actor, id string, status domain.CaseStatus) (*domain.Case, error) {
	ctx, span := s.tracer().Start(ctx, "SetStatus",
		trace.WithAttributes(
			attribute.String("case.id", id),
			attribute.String("case.status", string(status)),
		),
	)
	defer span.End()

	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if err := repo.UpdateCaseStatus(ctx, s.DB, id, status); err != nil {
		return nil, caseLookupErr(err)
	}

	observability.CaseTransitions.WithLabelValues("status").Inc()
	publish(ctx, s.Events, events.Event{
		Type: events.CaseStatusChanged, CaseID: id, ActorID: actor.UserID, At: nowUTC(s.Now),
		Attrs: map[string]string{"status": string(status)},
	})
	return repo.GetCase(ctx, s.DB, id)
}

// AddNote appends a staff note. Admin only.
func (s *CaseService) AddNote(ctx context.Context, actor Actor, caseID, content string) (*domain.Note, error) {
	ctx, span := s.tracer().Start(ctx, "AddNote",
		trace.WithAttributes(attribute.String("case.id", caseID)),
	)
	defer span.End()

	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyNote
	}
	if _, err := repo.GetCase(ctx, s.DB, caseID); err != nil {
		return nil, caseLookupErr(err)
	}
	return repo.CreateNote(ctx, s.DB, caseID, actor.UserID, content)
}

// ListNotes returns a case's notes, newest first. Admin only.
func (s *CaseService) ListNotes(ctx context.Context, actor Actor, caseID string) ([]domain.Note, error) {
	ctx, span := s.tracer().Start(ctx, "ListNotes",
		trace.WithAttributes(attribute.String("case.id", caseID)),
	)
	defer span.End()

	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if _, err := repo.GetCase(ctx, s.DB, caseID); err != nil {
		return nil, caseLookupErr(err)
	}
	return repo.ListNotes(ctx, s.DB, caseID)
}

// Delete irreversibly removes a case together with its messages, notes and
// documents, and leaves a tombstone so a repeated delete is a conflict.
// Stored document files are removed after commit.
func (s *CaseService) Delete(ctx context.Context, actor Actor, id string) error {
	ctx, span := s.tracer().Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("case.id", id)),
	)
	defer span.End()

	if err := actor.requireAdmin(); err != nil {
		return err
	}

	var blobKeys []string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetCase(ctx, tx, id); err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			gone, terr := repo.IsTombstoned(ctx, tx, id)
			if terr != nil {
				return terr
			}
			if gone {
				return ErrCaseDeleted
			}
			return ErrCaseNotFound
		}

		docs, err := repo.ListDocuments(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, d := range docs {
			blobKeys = append(blobKeys, d.StorageKey)
		}

		if err := repo.DeleteCaseCascade(ctx, tx, id); err != nil {
			return caseLookupErr(err)
		}
		if err := repo.CreateTombstone(ctx, tx, id, actor.UserID, nowUTC(s.Now)); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrCaseDeleted
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.removeBlobs(ctx, id, blobKeys)
	observability.CaseTransitions.WithLabelValues("deleted").Inc()
	publish(ctx, s.Events, events.Event{
		Type: events.CaseDeleted, CaseID: id, ActorID: actor.UserID, At: nowUTC(s.Now),
	})
	return nil
}

func (s *CaseService) removeBlobs(ctx context.Context, caseID string, keys []string) {
	if s.Blobs == nil {
		return
	}
	for _, k := range keys {
		if err := s.Blobs.Delete(ctx, k); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("case_id", caseID).
				Str("storage_key", k).
				Msg("document cleanup failed")
		}
	}
}

// paymentClaimTTL bounds how long an unfinished charge blocks other attempts.
const paymentClaimTTL = 2 * time.Minute

// MarkPaid records the owner's purchase of plan. The case must be classified.
// Paying an already paid case succeeds without charging again. The case is
// claimed before the gateway is called, so concurrent attempts charge once:
// the loser gets ErrPaymentInProgress, or the paid case once the winner is
// done.
func (s *CaseService) MarkPaid(ctx context.Context, actor Actor, id string, plan domain.Plan) (*domain.Case, error) {
	ctx, span := s.tracer().Start(ctx, "MarkPaid",
		trace.WithAttributes(
			attribute.String("case.id", id),
			attribute.String("plan", string(plan)),
		),
	)
	defer span.End()

	c, err := repo.GetCase(ctx, s.DB, id)
	if err != nil {
		return nil, caseLookupErr(err)
	}
	if !actor.owns(c.OwnerUserID) {
		return nil, ErrOwnerOnly
	}
	if !plan.Valid() {
		return nil, ErrInvalidPlan
	}
	if !c.Classified() {
		return nil, ErrNotClassified
	}
	if c.IsPaid {
		return c, nil
	}

	now := nowUTC(s.Now)
	claimed, err := repo.ClaimCasePayment(ctx, s.DB, id, now, now.Add(-paymentClaimTTL))
	if err != nil {
		return nil, err
	}
	if !claimed {
		cur, err := repo.GetCase(ctx, s.DB, id)
		if err != nil {
			return nil, caseLookupErr(err)
		}
		if cur.IsPaid {
			return cur, nil
		}
		return nil, ErrPaymentInProgress
	}

	gw := s.Payments
	if gw == nil {
		gw = payments.NewMock(0)
	}
	receipt, err := gw.Charge(ctx, payments.ChargeRequest{CaseID: id, UserID: actor.UserID, Plan: plan})
	if err != nil {
		if rerr := repo.ReleaseCasePayment(context.WithoutCancel(ctx), s.DB, id); rerr != nil {
			zerolog.Ctx(ctx).Error().Err(rerr).Str("case_id", id).Msg("release payment claim failed")
		}
		return nil, err
	}

	changed, err := repo.MarkCasePaid(ctx, s.DB, id, plan, receipt.Reference, receipt.At.UTC())
	if err != nil {
		return nil, err
	}
	if changed {
		observability.CaseTransitions.WithLabelValues("paid").Inc()
		publish(ctx, s.Events, events.Event{
			Type: events.CasePaid, CaseID: id, ActorID: actor.UserID, At: receipt.At.UTC(),
			Attrs: map[string]string{"plan": string(plan), "reference": receipt.Reference},
		})
	}
	return repo.GetCase(ctx, s.DB, id)
}

// Stats returns the staff overview of the case population. Admin only.
func (s *CaseService) Stats(ctx context.Context, actor Actor) (domain.CaseStats, error) {
	ctx, span := s.tracer().Start(ctx, "Stats")
	defer span.End()

	if err := actor.requireAdmin(); err != nil {
		return domain.CaseStats{}, err
	}
	return repo.CaseOverview(ctx, s.DB)
}

// caseLookupErr maps a missing row to ErrCaseNotFound and passes anything
// else through.
func caseLookupErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrCaseNotFound
	}
	return err
}
