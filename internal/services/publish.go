package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/limitscope/caseportal/internal/events"
	"github.com/limitscope/caseportal/internal/observability"
)

// publish hands ev to pub. Delivery is best effort: failures are logged and
// counted but never fail the operation that produced the event.
func publish(ctx context.Context, pub events.Publisher, ev events.Event) {
	if pub == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	err := pub.Publish(ctx, ev)
	switch {
	case err == nil:
		observability.EventsPublished.WithLabelValues(ev.Type, "ok").Inc()
	case events.IsCircuitOpen(err):
		observability.EventsPublished.WithLabelValues(ev.Type, "dropped").Inc()
	default:
		observability.EventsPublished.WithLabelValues(ev.Type, "error").Inc()
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("event", ev.Type).
			Str("case_id", ev.CaseID).
			Msg("event publish failed")
	}
}

func nowUTC(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}
