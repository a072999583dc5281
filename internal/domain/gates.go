package domain

// Classified reports whether an analyst has recorded a classification.
func (c *Case) Classified() bool { return c.Likelihood != nil }

// RefreshGates recomputes the derived visibility gates from persisted state:
//
//	isPending             := likelihood unset
//	canViewRecommendation := likelihood set
//	canChat               := isPaid
func (c *Case) RefreshGates() {
	c.IsPending = !c.Classified()
	c.CanViewRecommendation = c.Classified()
	c.CanChat = c.IsPaid
}

// RedactForOwner strips everything the owner may not see: staff notes are
// never visible, and classification fields stay hidden while the case is
// still pending.
func (c *Case) RedactForOwner() {
	c.Notes = nil
	c.RefreshGates()
	if !c.CanViewRecommendation {
		c.Likelihood = nil
		c.FundLikelihood = nil
		c.Recommendation = nil
		c.ClassifiedAt = nil
	}
}
