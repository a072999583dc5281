// Case HTTP handlers (client side).
//
// This file exposes the endpoints a client uses on their own cases:
//   - POST /cases                    (submit intake)
//   - GET  /cases                    (own cases, newest first)
//   - GET  /cases/{id}               (one case)
//   - PUT  /cases/{id}/view-results  (acknowledge the classification)
//   - POST /cases/{id}/pay           (buy the follow-up plan; idempotent)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/limitscope/caseportal/internal/domain"
	"github.com/limitscope/caseportal/internal/services"
)

//
// DTOs
//

// CreateCaseRequest is the intake payload: every client-authored case field.
// An empty title is derived from the restriction type and country.
type CreateCaseRequest struct {
	Title string `json:"title" binding:"max=255" example:"Permanent Limitation: Germany"`
	domain.Intake
}

// MarkPaidRequest selects the purchased plan.
type MarkPaidRequest struct {
	Plan string `json:"plan" binding:"required" enums:"PERSONAL,BUSINESS" example:"PERSONAL"`
}

//
// Handlers
//

// CreateCase godoc
// @ID          createCase
// @Summary     Submit a new case
// @Description Creates a PENDING case owned by the caller from the intake questionnaire.
// @Tags        Cases
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CreateCaseRequest  true  "Intake"
// @Success     201   {object}  handlers.Envelope{data=domain.Case}
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "No session"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Security    BearerAuth
// @Router      /cases [post]
func (h *Handlers) CreateCase(c *gin.Context) {
	var req CreateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	req.AccountType = domain.AccountType(strings.ToUpper(strings.TrimSpace(string(req.AccountType))))
	req.RestrictionType = domain.RestrictionType(strings.ToUpper(strings.TrimSpace(string(req.RestrictionType))))

	cs, err := h.cases.Create(c.Request.Context(), actor(c), services.NewCase{Title: req.Title, Intake: req.Intake})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, cs)
}

// ListMyCases godoc
// @ID          listMyCases
// @Summary     List own cases
// @Description Returns the caller's cases, newest first. Staff get every case (see /admin/cases for search).
// @Tags        Cases
// @Produce     json
// @Param       status  query     string  false  "Filter by status"  Enums(PENDING,UNDER_REVIEW,RESOLVED,DISMISSED)
// @Success     200     {object}  handlers.Envelope{data=[]domain.Case}
// @Failure     400     {object}  handlers.ErrorResponse  "Unknown status"
// @Failure     401     {object}  handlers.ErrorResponse  "No session"
// @Security    BearerAuth
// @Router      /cases [get]
func (h *Handlers) ListMyCases(c *gin.Context) {
	list, err := h.cases.List(c.Request.Context(), actor(c), services.CaseQuery{Status: c.Query("status")})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

// GetCase godoc
// @ID          getCase
// @Summary     Get a case
// @Description Returns one case with its documents. Classification fields are omitted until the case is classified.
// @Tags        Cases
// @Produce     json
// @Param       id   path      string  true  "Case ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=domain.Case}
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Case not found"
// @Security    BearerAuth
// @Router      /cases/{id} [get]
func (h *Handlers) GetCase(c *gin.Context) {
	cs, err := h.cases.Get(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cs)
}

// ViewResults godoc
// @ID          viewResults
// @Summary     Acknowledge classification results
// @Description Marks the classification as viewed. A no-op when unclassified or already viewed.
// @Tags        Cases
// @Produce     json
// @Param       id   path      string  true  "Case ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=domain.Case}
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Case not found"
// @Security    BearerAuth
// @Router      /cases/{id}/view-results [put]
func (h *Handlers) ViewResults(c *gin.Context) {
	cs, err := h.classify.ViewResults(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cs)
}

// MarkPaid godoc
// @ID          markPaid
// @Summary     Pay for a classified case
// @Description Charges the selected plan and unlocks the case conversation. Paying twice is a no-op.
// @Description Supports Idempotency-Key; a replay answers with the stored outcome and `Idempotency-Replayed: true`.
// @Tags        Cases
// @Accept      json
// @Produce     json
// @Param       id               path      string                   true   "Case ID"  format(uuid)
// @Param       Idempotency-Key  header    string                   false  "Key for safe retries"
// @Param       body             body      handlers.MarkPaidRequest  true   "Plan"
// @Success     200              {object}  handlers.Envelope{data=domain.Case}
// @Failure     400              {object}  handlers.ErrorResponse  "Unknown plan"
// @Failure     403              {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404              {object}  handlers.ErrorResponse  "Case not found"
// @Failure     409              {object}  handlers.ErrorResponse  "Not classified yet or payment in progress"
// @Security    BearerAuth
// @Router      /cases/{id}/pay [post]
func (h *Handlers) MarkPaid(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, found := h.replayed(c, id); found {
		if cs, err := h.cases.Get(ctx, actor(c), id); err == nil {
			markReplayed(c)
			ok(c, http.StatusOK, cs)
			return
		}
	}

	var req MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "plan required")
		return
	}
	plan := domain.Plan(strings.ToUpper(strings.TrimSpace(req.Plan)))

	cs, err := h.cases.MarkPaid(ctx, actor(c), id, plan)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, id, cs.ID, http.StatusOK)
	ok(c, http.StatusOK, cs)
}
