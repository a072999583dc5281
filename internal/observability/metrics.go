package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain counters. Labels are bounded enums (status, plan, sender role,
// document type, event outcome).
var (
	CasesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "caseportal",
		Name:      "cases_created_total",
		Help:      "Cases submitted through intake.",
	})

	CaseTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseportal",
		Name:      "case_transitions_total",
		Help:      "Case lifecycle mutations by action (status, classified, viewed, paid, deleted).",
	}, []string{"action"})

	MessagesPosted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseportal",
		Name:      "messages_posted_total",
		Help:      "Chat messages appended, by sender role.",
	}, []string{"sender"})

	ChatLocked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "caseportal",
		Name:      "chat_locked_total",
		Help:      "Chat requests refused because the conversation is not paid for.",
	})

	DocumentsUploaded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseportal",
		Name:      "documents_uploaded_total",
		Help:      "Documents stored, by document type.",
	}, []string{"file_type"})

	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseportal",
		Name:      "events_published_total",
		Help:      "Case events handed to the bus, by type and outcome.",
	}, []string{"type", "outcome"})
)

func init() {
	prometheus.MustRegister(CasesCreated, CaseTransitions, MessagesPosted, ChatLocked, DocumentsUploaded, EventsPublished)
}
