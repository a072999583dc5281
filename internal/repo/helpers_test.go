package repo

import (
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/limitscope/caseportal/internal/domain"
)

// newTestDB opens a private in-memory database. With no models given it
// migrates the full schema; pass nil to get an empty database.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
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
	switch {
	case len(migrate) == 0:
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	case len(migrate) == 1 && migrate[0] == nil:
	default:
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, id, first, last, email string) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, Email: email, FirstName: first, LastName: last, AccountStatus: domain.AccountActive}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}

func seedCase(t *testing.T, db *gorm.DB, c domain.Case) *domain.Case {
	t.Helper()
	if c.Status == "" {
		c.Status = domain.StatusPending
	}
	if c.Title == "" {
		c.Title = "case " + c.ID
	}
	if c.FreeTextReason == "" {
		c.FreeTextReason = "account flagged"
	}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("seed case %s: %v", c.ID, err)
	}
	return &c
}

func likelihood(l domain.Likelihood) *domain.Likelihood { return &l }
