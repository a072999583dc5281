package domain

import "strings"

// CaseStatus is the workflow status of a case. It is a flat enum: staff may
// move a case from any status to any other.
type CaseStatus string

const (
	StatusPending     CaseStatus = "PENDING"
	StatusUnderReview CaseStatus = "UNDER_REVIEW"
	StatusResolved    CaseStatus = "RESOLVED"
	StatusDismissed   CaseStatus = "DISMISSED"
)

// Valid reports whether s is a known status.
func (s CaseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusResolved, StatusDismissed:
		return true
	}
	return false
}

// Open reports whether the case still needs staff attention.
func (s CaseStatus) Open() bool { return s != StatusResolved && s != StatusDismissed }

// Likelihood is an analyst-asserted odds bucket.
type Likelihood string

const (
	LikelihoodLow    Likelihood = "LOW"
	LikelihoodMedium Likelihood = "MEDIUM"
	LikelihoodHigh   Likelihood = "HIGH"
)

// Valid reports whether l is LOW, MEDIUM or HIGH.
func (l Likelihood) Valid() bool {
	switch l {
	case LikelihoodLow, LikelihoodMedium, LikelihoodHigh:
		return true
	}
	return false
}

// Plan is the advisory package purchased for a case.
type Plan string

const (
	PlanPersonal Plan = "PERSONAL"
	PlanBusiness Plan = "BUSINESS"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool { return p == PlanPersonal || p == PlanBusiness }

// AccountType describes the limited payment account.
type AccountType string

const (
	AccountPersonal AccountType = "PERSONAL"
	AccountBusiness AccountType = "BUSINESS"
)

// Valid reports whether a is a known account type.
func (a AccountType) Valid() bool { return a == AccountPersonal || a == AccountBusiness }

// RestrictionType is the kind of limitation the client reports.
type RestrictionType string

const (
	RestrictionTemporary       RestrictionType = "TEMPORARY"
	RestrictionPermanent       RestrictionType = "PERMANENT"
	RestrictionFundsRelease    RestrictionType = "FUNDS_RELEASE"
	RestrictionKYCVerification RestrictionType = "KYC_VERIFICATION"
	RestrictionUnknown         RestrictionType = "UNKNOWN"
)

// Valid reports whether r is a known restriction type.
func (r RestrictionType) Valid() bool {
	switch r {
	case RestrictionTemporary, RestrictionPermanent, RestrictionFundsRelease,
		RestrictionKYCVerification, RestrictionUnknown:
		return true
	}
	return false
}

// Label renders the restriction type as lowercase words ("funds release").
func (r RestrictionType) Label() string {
	return strings.ToLower(strings.ReplaceAll(string(r), "_", " "))
}

// DocumentType classifies an uploaded document.
type DocumentType string

const (
	DocumentID            DocumentType = "ID"
	DocumentAddressProof  DocumentType = "ADDRESS_PROOF"
	DocumentBankStatement DocumentType = "BANK_STATEMENT"
	DocumentInvoice       DocumentType = "INVOICE"
	DocumentOther         DocumentType = "OTHER"
)

// Valid reports whether d is a known document type.
func (d DocumentType) Valid() bool {
	switch d {
	case DocumentID, DocumentAddressProof, DocumentBankStatement, DocumentInvoice, DocumentOther:
		return true
	}
	return false
}

// AccountStatus is the state of a user account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
)
