// Package events publishes case lifecycle events for downstream consumers
// (analyst notifications, audit sinks). Publishing is best effort: callers
// log failures and never roll back the state change that produced an event.
package events

import (
	"context"
	"time"
)

// Event types. They double as subject suffixes on the bus.
const (
	CaseCreated       = "cases.created"
	CaseStatusChanged = "cases.status_changed"
	CaseClassified    = "cases.classified"
	CasePaid          = "cases.paid"
	CaseDeleted       = "cases.deleted"
	MessagePosted     = "messages.posted"
)

// Event is one lifecycle fact.
type Event struct {
	Type    string            `json:"type"`
	CaseID  string            `json:"caseId,omitempty"`
	ActorID string            `json:"actorId"`
	At      time.Time         `json:"at"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop discards every event. It is used when no bus is configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory; handy in tests and local runs.
type Recorder struct {
	Events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.Events = append(r.Events, ev)
	return nil
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	out := make([]string, 0, len(r.Events))
	for _, ev := range r.Events {
		out = append(out, ev.Type)
	}
	return out
}
