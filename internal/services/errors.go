// Package services implements the case portal's business rules: the case
// lifecycle, the classification policy, the messaging relay, document intake
// and the user directory.
//
// This file centralizes the service-level error taxonomy. Every rule violation
// is an *Error carrying one of four kinds; handlers translate the kind into an
// HTTP status. Unexpected store errors are returned unwrapped and surface as
// internal errors.
package services

import "errors"

// Kind classifies a service error for transport mapping.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotAuthorized Kind = "not_authorized"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
)

// Error is a typed service error. Message is safe to show to users.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is lets errors.Is match either the exact sentinel or a bare kind sentinel
// (an *Error with an empty Message), e.g. errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" {
		return e.Kind == t.Kind
	}
	return e == t
}

func newErr(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

// Kind sentinels.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotAuthorized = &Error{Kind: KindNotAuthorized}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrConflict      = &Error{Kind: KindConflict}
)

// KindOf returns the kind of err, or "" when err is not a service error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Case lifecycle.
var (
	ErrCaseNotFound           = newErr(KindNotFound, "case not found")
	ErrCaseDeleted            = newErr(KindConflict, "case already deleted")
	ErrEmptyReason            = newErr(KindValidation, "freeTextReason is required")
	ErrInvalidStatus          = newErr(KindValidation, "unknown case status")
	ErrInvalidAccountType     = newErr(KindValidation, "unknown account type")
	ErrInvalidRestrictionType = newErr(KindValidation, "unknown restriction type")
	ErrEmptyNote              = newErr(KindValidation, "note content is required")
	ErrInvalidPlan            = newErr(KindValidation, "plan must be PERSONAL or BUSINESS")
	ErrNotClassified          = newErr(KindConflict, "case has not been classified yet")
	ErrPaymentInProgress      = newErr(KindConflict, "a payment for this case is already in progress")
)

// Classification.
var (
	ErrIncompleteClassification = newErr(KindValidation, "likelihood, fundLikelihood and recommendation are all required")
	ErrInvalidLikelihood        = newErr(KindValidation, "likelihood must be LOW, MEDIUM or HIGH")
)

// Authorization.
var (
	ErrAdminOnly = newErr(KindNotAuthorized, "admin access required")
	ErrOwnerOnly = newErr(KindNotAuthorized, "only the case owner may do this")
	ErrForbidden = newErr(KindNotAuthorized, "not allowed")

	// ErrChatLocked is returned to a client whose conversation has no paid
	// case behind it. Transport maps it to 402.
	ErrChatLocked = newErr(KindNotAuthorized, "chat is available after purchase")
)

// Messaging.
var (
	ErrConversationNotFound = newErr(KindNotFound, "conversation not found")
	ErrMessageNotFound      = newErr(KindNotFound, "message not found")
	ErrEmptyMessage         = newErr(KindValidation, "message content is required")
	ErrMessageTooLong       = newErr(KindValidation, "message content too long")
)

// Documents.
var (
	ErrDocumentNotFound    = newErr(KindNotFound, "document not found")
	ErrInvalidDocumentType = newErr(KindValidation, "unknown document type")
	ErrUnsupportedFileType = newErr(KindValidation, "file must be PDF, PNG, JPEG, WEBP or HEIC")
	ErrFileTooLarge        = newErr(KindValidation, "file too large")
	ErrEmptyFile           = newErr(KindValidation, "file is empty")
	ErrIntakeClosed        = newErr(KindConflict, "documents can only be added while the case is pending")
)

// Users.
var (
	ErrUserNotFound  = newErr(KindNotFound, "user not found")
	ErrInvalidEmail  = newErr(KindValidation, "invalid email address")
	ErrEmailTaken    = newErr(KindConflict, "email already in use")
	ErrWrongPassword = newErr(KindNotAuthorized, "current password is incorrect")
	ErrWeakPassword  = newErr(KindValidation, "password must be at least 8 characters")

	ErrPasswordTooLong = newErr(KindValidation, "password must be at most 72 bytes")
)
