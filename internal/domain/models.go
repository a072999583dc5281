// Package domain defines the persistence models for cases, documents, notes,
// chat messages and users. These types are mapped with GORM and form the core
// data layer of the case portal.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Case is one client's limitation-dispute submission together with its
// lifecycle record (status, classification, payment).
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - OwnerUserID: the submitting user; indexed for "my cases" listings.
//   - Intake: narrative fields and questionnaire answers (embedded columns).
//   - Status: flat workflow enum (PENDING, UNDER_REVIEW, RESOLVED, DISMISSED).
//   - Likelihood / FundLikelihood: analyst judgment; both NULL or both set
//     (enforced by a table CHECK constraint).
//   - IsPaid / PaidPlan: advisory purchase state; only set after classification.
//
// IsPending, CanViewRecommendation and CanChat are derived gates. They are
// never persisted and are refreshed after every load (see AfterFind).
type Case struct {
	ID          string `json:"id"          gorm:"type:char(36);primaryKey"`
	OwnerUserID string `json:"ownerUserId" gorm:"type:varchar(64);not null;index:idx_owner_cases"`
	Title       string `json:"title"       gorm:"type:varchar(255);not null"`

	Intake `gorm:"embedded"`

	Status               CaseStatus  `json:"status"                   gorm:"type:varchar(16);not null;default:'PENDING';index"`
	Likelihood           *Likelihood `json:"likelihood"               gorm:"type:varchar(8)"`
	FundLikelihood       *Likelihood `json:"fundLikelihood"           gorm:"type:varchar(8);check:chk_cases_classification,(likelihood IS NULL) = (fund_likelihood IS NULL)"`
	Recommendation       *string     `json:"recommendation"           gorm:"type:text"`
	ClassificationViewed bool        `json:"classificationViewed"     gorm:"not null;default:false"`
	ClassifiedAt         *time.Time  `json:"classifiedAt,omitempty"`
	IsPaid               bool        `json:"isPaid"                   gorm:"not null;default:false"`
	PaidPlan             *Plan       `json:"paidPlan"                 gorm:"type:varchar(16)"`
	PaidAt               *time.Time  `json:"paidAt,omitempty"`
	PaymentRef           string      `json:"-"                        gorm:"type:varchar(64)"`
	PaymentClaimedAt     *time.Time  `json:"-"`

	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_owner_cases"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Derived gates (not persisted).
	IsPending             bool `json:"isPending"             gorm:"-"`
	CanViewRecommendation bool `json:"canViewRecommendation" gorm:"-"`
	CanChat               bool `json:"canChat"               gorm:"-"`

	// Associations, populated only by detail reads.
	Owner     *User      `json:"user,omitempty"      gorm:"foreignKey:OwnerUserID;references:ID;constraint:-"`
	Notes     []Note     `json:"notes,omitempty"     gorm:"foreignKey:CaseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Documents []Document `json:"documents,omitempty" gorm:"foreignKey:CaseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Case.
func (Case) TableName() string { return "cases" }

// AfterFind refreshes the derived gates whenever GORM loads a case.
func (c *Case) AfterFind(*gorm.DB) error {
	c.RefreshGates()
	return nil
}

// Intake is the client-authored part of a case: narrative fields plus the
// questionnaire. Tri-state answers use *bool (nil = not answered).
type Intake struct {
	Country            string          `json:"country"            gorm:"type:varchar(96)"`
	AccountType        AccountType     `json:"accountType"        gorm:"type:varchar(16);not null;default:'PERSONAL'"`
	RestrictionType    RestrictionType `json:"restrictionType"    gorm:"type:varchar(24);not null;default:'UNKNOWN'"`
	FreeTextReason     string          `json:"freeTextReason"     gorm:"type:text;not null"`
	TransactionSummary string          `json:"transactionSummary" gorm:"type:text"`
	Description        string          `json:"description"        gorm:"type:text"`

	// Identity
	HasUploadedIDBefore  *bool `json:"hasUploadedIDBefore"`
	NameMatchesID        *bool `json:"nameMatchesID"`
	HasHadUploadRejected *bool `json:"hasHadUploadRejected"`

	// Selling activity
	SellingGoodsOrServices   string `json:"sellingGoodsOrServices"   gorm:"type:varchar(32)"`
	CustomerCount30Days      string `json:"customerCount30Days"      gorm:"type:varchar(32)"`
	IssuesInvoices           *bool  `json:"issuesInvoices"`
	IsFirstTimeReceiving     *bool  `json:"isFirstTimeReceiving"`
	ProvidedTrackingOrReason *bool  `json:"providedTrackingOrReason"`
	DisputeCount90Days       string `json:"disputeCount90Days"       gorm:"type:varchar(32)"`
	DeliveryComplaints       *bool  `json:"deliveryComplaints"`
	WhatExactlyDoYouSell     string `json:"whatExactlyDoYouSell"     gorm:"type:text"`
	SellsProhibitedItems     *bool  `json:"sellsProhibitedItems"`
	DeclaredBusiness         string `json:"declaredBusiness"         gorm:"type:text"`
	ActualCustomerPaymentFor string `json:"actualCustomerPaymentFor" gorm:"type:text"`

	// Account history
	HadOtherAccounts       string `json:"hadOtherAccounts"       gorm:"type:varchar(32)"`
	OtherPersonUsingDevice string `json:"otherPersonUsingDevice" gorm:"type:text"`
	ReachedOutToProvider   string `json:"reachedOutToPayPal"     gorm:"type:varchar(32)"`
	WhatDidYouTellProvider string `json:"whatDidYouTellPayPal"   gorm:"type:text"`
	ChangedExplanation     *bool  `json:"changedExplanation"`

	// Fund movement and access
	MovedFundsBetweenAccounts *bool  `json:"movedFundsBetweenAccounts"`
	TransferredToSameDevice   *bool  `json:"transferredToSameDevice"`
	AttemptedEarlyWithdrawal  *bool  `json:"attemptedEarlyWithdrawal"`
	PhysicalLocation          string `json:"physicalLocation" gorm:"type:varchar(128)"`
	UsedVPN                   *bool  `json:"usedVPN"`

	// Volume and inactivity
	SuddenVolumeIncrease *bool  `json:"suddenVolumeIncrease"`
	WhyVolumeIncreased   string `json:"whyVolumeIncreased" gorm:"type:text"`
	ViralSaleOrContract  *bool  `json:"viralSaleOrContract"`
	LongTermInactive     *bool  `json:"longTermInactive"`
	InactiveDuration     string `json:"inactiveDuration" gorm:"type:varchar(64)"`
}

// Document is an uploaded evidentiary file attached to a case. Documents are
// immutable and removed together with their parent case.
type Document struct {
	ID          string       `json:"id"          gorm:"type:char(36);primaryKey"`
	CaseID      string       `json:"caseId"      gorm:"type:char(36);not null;index"`
	FileType    DocumentType `json:"fileType"    gorm:"type:varchar(24);not null"`
	FileName    string       `json:"fileName"    gorm:"type:varchar(255);not null"`
	ContentType string       `json:"contentType" gorm:"type:varchar(128)"`
	SizeBytes   int64        `json:"sizeBytes"`
	StorageKey  string       `json:"-"           gorm:"type:varchar(512);not null"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string { return "documents" }

// Note is an admin-only, append-only annotation on a case.
type Note struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	CaseID    string    `json:"caseId"    gorm:"type:char(36);not null;index:idx_case_notes,priority:1"`
	AuthorID  string    `json:"authorId"  gorm:"type:varchar(64);not null"`
	Content   string    `json:"content"   gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_case_notes,priority:2"`
}

// TableName returns the database table name for Note.
func (Note) TableName() string { return "notes" }

// Message is one chat entry in a conversation between a client and staff.
//
// Seq is the store's insertion counter; it breaks CreatedAt ties so that two
// messages received in the same instant keep their arrival order.
type Message struct {
	Seq             int64     `json:"-"               gorm:"primaryKey;autoIncrement"`
	ID              string    `json:"id"              gorm:"type:char(36);not null;uniqueIndex"`
	ConversationKey string    `json:"conversationKey" gorm:"type:varchar(64);not null;index:idx_conversation_msgs,priority:1"`
	SenderID        string    `json:"senderId"        gorm:"type:varchar(64);not null"`
	SenderIsAdmin   bool      `json:"senderIsAdmin"   gorm:"not null;default:false"`
	Content         string    `json:"content"         gorm:"type:text;not null"`
	CreatedAt       time.Time `json:"createdAt"       gorm:"index:idx_conversation_msgs,priority:2"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// User is an account holder. Users are provisioned from verified session
// claims; PasswordHash is only set when the user changes their password here.
type User struct {
	ID            string        `json:"id"            gorm:"type:varchar(64);primaryKey"`
	Email         string        `json:"email"         gorm:"type:varchar(255);not null;uniqueIndex"`
	FirstName     string        `json:"firstName"     gorm:"type:varchar(128)"`
	LastName      string        `json:"lastName"      gorm:"type:varchar(128)"`
	IsAdmin       bool          `json:"isAdmin"       gorm:"not null;default:false"`
	AccountStatus AccountStatus `json:"accountStatus" gorm:"type:varchar(16);not null;default:'ACTIVE'"`
	PasswordHash  string        `json:"-"             gorm:"type:varchar(255)"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// CaseTombstone marks a case as irreversibly deleted.
type CaseTombstone struct {
	CaseID    string    `gorm:"type:char(36);primaryKey"`
	DeletedBy string    `gorm:"type:varchar(64);not null"`
	DeletedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for CaseTombstone.
func (CaseTombstone) TableName() string { return "case_tombstones" }

// Conversation summarizes one message thread for the staff inbox.
type Conversation struct {
	Key           string    `json:"key"`
	CaseID        string    `json:"caseId,omitempty"`
	Owner         *User     `json:"user,omitempty"`
	MessageCount  int64     `json:"messageCount"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// CaseStats is the staff overview of the case population.
type CaseStats struct {
	TotalCases             int64 `json:"totalCases"`
	OpenCases              int64 `json:"openCases"`
	ResolvedCases          int64 `json:"resolvedCases"`
	DismissedCases         int64 `json:"dismissedCases"`
	AwaitingClassification int64 `json:"awaitingClassification"`
	PaidCases              int64 `json:"paidCases"`
	TotalUsers             int64 `json:"totalUsers"`
}
