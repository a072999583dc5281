// Package payments provides the gateway used when a client buys an advisory
// plan for a classified case. Only a mock implementation exists: it waits a
// configurable delay and issues a reference without moving money.
package payments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/limitscope/caseportal/internal/domain"
)

// ChargeRequest describes one plan purchase.
type ChargeRequest struct {
	CaseID string
	UserID string
	Plan   domain.Plan
}

// Receipt is what a successful charge returns.
type Receipt struct {
	Reference string
	At        time.Time
}

// Gateway charges for advisory plans.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Receipt, error)
}

// Mock is a Gateway that always succeeds after Delay.
type Mock struct {
	Delay time.Duration
	Now   func() time.Time
}

// NewMock returns a mock gateway with the given processing delay.
func NewMock(delay time.Duration) *Mock {
	return &Mock{Delay: delay, Now: time.Now}
}

// Charge waits for Delay (or until ctx is done) and returns a fresh reference.
func (m *Mock) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-timer.C:
		}
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	ref := "mock_" + strings.ToLower(string(req.Plan)) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return Receipt{Reference: ref, At: now().UTC()}, nil
}
