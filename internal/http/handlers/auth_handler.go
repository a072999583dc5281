// Account HTTP handlers.
//
// Sessions are issued elsewhere; these endpoints only read and update the
// signed-in user's own record.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UpdateEmailRequest changes the account email.
type UpdateEmailRequest struct {
	Email string `json:"email" binding:"required" example:"jane.doe@example.com"`
}

// UpdatePasswordRequest changes the account password. CurrentPassword is
// ignored when no password has been set yet.
type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Account
// @Produce     json
// @Success     200  {object}  handlers.Envelope{data=domain.User}
// @Failure     401  {object}  handlers.ErrorResponse  "No session"
// @Security    BearerAuth
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.users.Me(c.Request.Context(), actor(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateEmail godoc
// @ID          updateEmail
// @Summary     Change email
// @Tags        Account
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.UpdateEmailRequest  true  "New email"
// @Success     200   {object}  handlers.Envelope{data=domain.User}
// @Failure     400   {object}  handlers.ErrorResponse  "Malformed email"
// @Failure     409   {object}  handlers.ErrorResponse  "Email taken"
// @Security    BearerAuth
// @Router      /auth/email [put]
func (h *Handlers) UpdateEmail(c *gin.Context) {
	var req UpdateEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email required")
		return
	}
	u, err := h.users.UpdateEmail(c.Request.Context(), actor(c), req.Email)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdatePassword godoc
// @ID          updatePassword
// @Summary     Change password
// @Tags        Account
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.UpdatePasswordRequest  true  "Passwords"
// @Success     200   {object}  handlers.Envelope
// @Failure     400   {object}  handlers.ErrorResponse  "Weak password"
// @Failure     403   {object}  handlers.ErrorResponse  "Wrong current password"
// @Security    BearerAuth
// @Router      /auth/password [put]
func (h *Handlers) UpdatePassword(c *gin.Context) {
	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "newPassword required")
		return
	}
	if err := h.users.UpdatePassword(c.Request.Context(), actor(c), req.CurrentPassword, req.NewPassword); err != nil {
		failErr(c, err)
		return
	}
	done(c)
}
