// Admin HTTP handlers.
//
// Staff endpoints for working the case queue. Every route here is admin-only;
// the services reject other callers with 403.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/limitscope/caseportal/internal/domain"
	"github.com/limitscope/caseportal/internal/services"
)

// SetStatusRequest moves a case to another workflow status.
type SetStatusRequest struct {
	Status string `json:"status" binding:"required" enums:"PENDING,UNDER_REVIEW,RESOLVED,DISMISSED" example:"UNDER_REVIEW"`
}

// ClassifyRequest carries the full classification triple. Partial
// classifications are rejected.
type ClassifyRequest struct {
	Likelihood     string `json:"likelihood"     enums:"LOW,MEDIUM,HIGH" example:"HIGH"`
	FundLikelihood string `json:"fundLikelihood" enums:"LOW,MEDIUM,HIGH" example:"MEDIUM"`
	Recommendation string `json:"recommendation" example:"Appeal with supplier invoices and tracking numbers."`
}

// AddNoteRequest is an internal staff note.
type AddNoteRequest struct {
	Content string `json:"content" example:"Called the client, waiting for bank statement."`
}

// AdminListCases godoc
// @ID          adminListCases
// @Summary     List all cases
// @Description Newest first, each with its owner. `search` matches owner first/last name or email (case-insensitive).
// @Tags        Admin
// @Produce     json
// @Param       search  query     string  false  "Owner name or email substring"
// @Param       status  query     string  false  "Filter by status"  Enums(PENDING,UNDER_REVIEW,RESOLVED,DISMISSED)
// @Success     200     {object}  handlers.Envelope{data=[]domain.Case}
// @Failure     400     {object}  handlers.ErrorResponse  "Unknown status"
// @Failure     403     {object}  handlers.ErrorResponse  "Admin only"
// @Security    BearerAuth
// @Router      /admin/cases [get]
func (h *Handlers) AdminListCases(c *gin.Context) {
	a := actor(c)
	if !a.IsAdmin {
		failErr(c, services.ErrAdminOnly)
		return
	}
	list, err := h.cases.List(c.Request.Context(), a, services.CaseQuery{
		Search: c.Query("search"),
		Status: c.Query("status"),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

// AdminGetCase godoc
// @ID          adminGetCase
// @Summary     Get a case (staff view)
// @Description Includes owner, documents and notes (newest first).
// @Tags        Admin
// @Produce     json
// @Param       id   path      string  true  "Case ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=domain.Case}
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Failure     404  {object}  handlers.ErrorResponse  "Case not found"
// @Security    BearerAuth
// @Router      /admin/cases/{id} [get]
func (h *Handlers) AdminGetCase(c *gin.Context) {
	a := actor(c)
	if !a.IsAdmin {
		failErr(c, services.ErrAdminOnly)
		return
	}
	cs, err := h.cases.Get(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cs)
}

// SetStatus godoc
// @ID          setStatus
// @Summary     Change case status
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       id    path      string                     true  "Case ID"  format(uuid)
// @Param       body  body      handlers.SetStatusRequest  true  "New status"
// @Success     200   {object}  handlers.Envelope{data=domain.Case}
// @Failure     400   {object}  handlers.ErrorResponse  "Unknown status"
// @Failure     403   {object}  handlers.ErrorResponse  "Admin only"
// @Failure     404   {object}  handlers.ErrorResponse  "Case not found"
// @Security    BearerAuth
// @Router      /admin/cases/{id}/status [put]
func (h *Handlers) SetStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	status := domain.CaseStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	cs, err := h.cases.SetStatus(c.Request.Context(), actor(c), c.Param("id"), status)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cs)
}

// Classify godoc
// @ID          classifyCase
// @Summary     Classify a case
// @Description Sets likelihood, fund likelihood and recommendation together and resets the viewed flag.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       id    path      string                    true  "Case ID"  format(uuid)
// @Param       body  body      handlers.ClassifyRequest  true  "Classification"
// @Success     200   {object}  handlers.Envelope{data=domain.Case}
// @Failure     400   {object}  handlers.ErrorResponse  "Incomplete or invalid classification"
// @Failure     403   {object}  handlers.ErrorResponse  "Admin only"
// @Failure     404   {object}  handlers.ErrorResponse  "Case not found"
// @Security    BearerAuth
// @Router      /admin/cases/{id}/classify [put]
func (h *Handlers) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cs, err := h.classify.Classify(c.Request.Context(), actor(c), c.Param("id"), services.Classification{
		Likelihood:     domain.Likelihood(req.Likelihood),
		FundLikelihood: domain.Likelihood(req.FundLikelihood),
		Recommendation: req.Recommendation,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cs)
}

// AddNote godoc
// @ID          addNote
// @Summary     Add an internal note
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       id    path      string                   true  "Case ID"  format(uuid)
// @Param       body  body      handlers.AddNoteRequest  true  "Note"
// @Success     201   {object}  handlers.Envelope{data=domain.Note}
// @Failure     400   {object}  handlers.ErrorResponse  "Empty note"
// @Failure     403   {object}  handlers.ErrorResponse  "Admin only"
// @Failure     404   {object}  handlers.ErrorResponse  "Case not found"
// @Security    BearerAuth
// @Router      /admin/cases/{id}/notes [post]
func (h *Handlers) AddNote(c *gin.Context) {
	var req AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	n, err := h.cases.AddNote(c.Request.Context(), actor(c), c.Param("id"), sanitizeContent(req.Content))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, n)
}

// ListNotes godoc
// @ID          listNotes
// @Summary     List internal notes
// @Description Newest first.
// @Tags        Admin
// @Produce     json
// @Param       id   path      string  true  "Case ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=[]domain.Note}
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Failure     404  {object}  handlers.ErrorResponse  "Case not found"
// @Security    BearerAuth
// @Router      /admin/cases/{id}/notes [get]
func (h *Handlers) ListNotes(c *gin.Context) {
	notes, err := h.cases.ListNotes(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, notes)
}

// DeleteCase godoc
// @ID          deleteCase
// @Summary     Delete a case
// @Description Irreversibly removes the case with its notes, documents and conversation. A second delete answers 409.
// @Tags        Admin
// @Produce     json
// @Param       id   path      string  true  "Case ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Failure     404  {object}  handlers.ErrorResponse  "Case not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already deleted"
// @Security    BearerAuth
// @Router      /admin/cases/{id} [delete]
func (h *Handlers) DeleteCase(c *gin.Context) {
	if err := h.cases.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	done(c)
}

// Stats godoc
// @ID          adminStats
// @Summary     Case overview
// @Tags        Admin
// @Produce     json
// @Success     200  {object}  handlers.Envelope{data=domain.CaseStats}
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Security    BearerAuth
// @Router      /admin/stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	st, err := h.cases.Stats(c.Request.Context(), actor(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users
// @Description Newest first; `search` matches first/last name or email.
// @Tags        Admin
// @Produce     json
// @Param       search  query     string  false  "Name or email substring"
// @Success     200     {object}  handlers.Envelope{data=[]domain.User}
// @Failure     403     {object}  handlers.ErrorResponse  "Admin only"
// @Security    BearerAuth
// @Router      /admin/users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), actor(c), c.Query("search"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, users)
}
