package services

import "strings"

// Actor is the authenticated caller, resolved once at the transport boundary
// and passed explicitly to every operation.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// Anonymous reports whether no user is attached.
func (a Actor) Anonymous() bool { return strings.TrimSpace(a.UserID) == "" }

func (a Actor) requireAdmin() error {
	if a.Anonymous() || !a.IsAdmin {
		return ErrAdminOnly
	}
	return nil
}

// canSee reports whether a may read a resource owned by ownerID.
func (a Actor) canSee(ownerID string) bool {
	return !a.Anonymous() && (a.IsAdmin || a.UserID == ownerID)
}

func (a Actor) owns(ownerID string) bool {
	return !a.Anonymous() && a.UserID == ownerID
}
