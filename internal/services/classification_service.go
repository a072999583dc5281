// Package services – ClassificationService
//
// ClassificationService records the analyst's judgment on a case and tracks
// whether the owner has seen it. The visibility gates derived from this state
// live on domain.Case (RefreshGates / RedactForOwner).
package services

import (
	"context"
	"strings"
	"time"

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

// ClassificationService applies classification writes and owner views.
type ClassificationService struct {
	DB     *gorm.DB
	Events events.Publisher
	Now    func() time.Time
}

// Classification is the analyst's triple. All three fields are required.
type Classification struct {
	Likelihood     domain.Likelihood
	FundLikelihood domain.Likelihood
	Recommendation string
}

func (c Classification) validate() error {
	if c.Likelihood == "" || c.FundLikelihood == "" || strings.TrimSpace(c.Recommendation) == "" {
		return ErrIncompleteClassification
	}
	if !c.Likelihood.Valid() || !c.FundLikelihood.Valid() {
		return ErrInvalidLikelihood
	}
	return nil
}

// Classify stores the triple in one update, stamps classifiedAt and resets
// classificationViewed. Reclassifying is allowed; status is left alone.
func (s *ClassificationService) Classify(ctx context.Context, actor Actor, id string, in Classification) (*domain.Case, error) {
	tr := otel.Tracer("services/ClassificationService")
	ctx, span := tr.Start(ctx, "Classify",
		trace.WithAttributes(
			attribute.String("case.id", id),
			attribute.String("likelihood", string(in.Likelihood)),
			attribute.String("fund_likelihood", string(in.FundLikelihood)),
		),
	)
	defer span.End()

	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	in.Likelihood = domain.Likelihood(strings.ToUpper(strings.TrimSpace(string(in.Likelihood))))
	in.FundLikelihood = domain.Likelihood(strings.ToUpper(strings.TrimSpace(string(in.FundLikelihood))))
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := nowUTC(s.Now)
	rec := strings.TrimSpace(in.Recommendation)
	if err := repo.ClassifyCase(ctx, s.DB, id, in.Likelihood, in.FundLikelihood, rec, now); err != nil {
		return nil, caseLookupErr(err)
	}

	observability.CaseTransitions.WithLabelValues("classified").Inc()
	publish(ctx, s.Events, events.Event{
		Type: events.CaseClassified, CaseID: id, ActorID: actor.UserID, At: now,
		Attrs: map[string]string{
			"likelihood":      string(in.Likelihood),
			"fund_likelihood": string(in.FundLikelihood),
		},
	})
	return repo.GetCase(ctx, s.DB, id)
}

// ViewResults marks the classification as seen by the owner. Calling it on
// an unclassified or already viewed case is a successful no-op.
func (s *ClassificationService) ViewResults(ctx context.Context, actor Actor, id string) (*domain.Case, error) {
	tr := otel.Tracer("services/ClassificationService")
	ctx, span := tr.Start(ctx, "ViewResults",
		trace.WithAttributes(
			attribute.String("case.id", id),
			attribute.String("user.id", actor.UserID),
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

	changed, err := repo.MarkClassificationViewed(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if changed {
		observability.CaseTransitions.WithLabelValues("viewed").Inc()
		if c, err = repo.GetCase(ctx, s.DB, id); err != nil {
			return nil, caseLookupErr(err)
		}
	}
	c.RedactForOwner()
	return c, nil
}
