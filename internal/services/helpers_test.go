package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/limitscope/caseportal/internal/domain"
	"github.com/limitscope/caseportal/internal/events"
	"github.com/limitscope/caseportal/internal/payments"
	"github.com/limitscope/caseportal/internal/repo"
	"github.com/limitscope/caseportal/internal/storage"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// countingGateway wraps the mock gateway and counts charges.
type countingGateway struct {
	calls int
	err   error
	inner payments.Gateway
}

func (g *countingGateway) Charge(ctx context.Context, req payments.ChargeRequest) (payments.Receipt, error) {
	g.calls++
	if g.err != nil {
		return payments.Receipt{}, g.err
	}
	return g.inner.Charge(ctx, req)
}

// fixture wires every service against one database.
type fixture struct {
	db       *gorm.DB
	rec      *events.Recorder
	gw       *countingGateway
	blobs    *storage.LocalFS
	cases    *CaseService
	classify *ClassificationService
	msgs     *MessageService
	docs     *DocumentService
	users    *UserService
	idem     *IdempotencyService
}

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newSvcDB(t)
	blobs, err := storage.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("local fs: %v", err)
	}
	rec := &events.Recorder{}
	gw := &countingGateway{inner: payments.NewMock(0)}
	now := func() time.Time { return fixedNow }
	return &fixture{
		db:       db,
		rec:      rec,
		gw:       gw,
		blobs:    blobs,
		cases:    &CaseService{DB: db, Events: rec, Payments: gw, Blobs: blobs, Now: now},
		classify: &ClassificationService{DB: db, Events: rec, Now: now},
		msgs:     &MessageService{DB: db, Events: rec, MaxMessageRunes: 50},
		docs:     &DocumentService{DB: db, Blobs: blobs, MaxBytes: 1 << 20},
		users:    &UserService{DB: db, HashCost: bcrypt.MinCost},
		idem:     &IdempotencyService{DB: db},
	}
}

var (
	admin  = Actor{UserID: "admin-1", IsAdmin: true}
	client = Actor{UserID: "client-1"}
	other  = Actor{UserID: "client-2"}
)

func (f *fixture) seedUsers(t *testing.T) {
	t.Helper()
	for _, u := range []domain.User{
		{ID: admin.UserID, Email: "staff@example.com", FirstName: "Sam", LastName: "Staff", IsAdmin: true},
		{ID: client.UserID, Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"},
		{ID: other.UserID, Email: "bob@example.com", FirstName: "Bob", LastName: "Roe"},
	} {
		u.AccountStatus = domain.AccountActive
		if err := f.db.Create(&u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
}

func (f *fixture) newCase(t *testing.T, owner Actor) *domain.Case {
	t.Helper()
	c, err := f.cases.Create(context.Background(), owner, NewCase{Intake: domain.Intake{
		Country:         "Germany",
		RestrictionType: domain.RestrictionPermanent,
		FreeTextReason:  "account limited after a large sale",
	}})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	return c
}

func (f *fixture) classifyCase(t *testing.T, id string) {
	t.Helper()
	_, err := f.classify.Classify(context.Background(), admin, id, Classification{
		Likelihood: domain.LikelihoodHigh, FundLikelihood: domain.LikelihoodMedium, Recommendation: "appeal with invoices",
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
}

func (f *fixture) payCase(t *testing.T, owner Actor, id string) {
	t.Helper()
	if _, err := f.cases.MarkPaid(context.Background(), owner, id, domain.PlanPersonal); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("want %v, got %v", target, err)
	}
}
