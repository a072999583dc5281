// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Service
// errors are translated by failErr, which maps the error kind to a status:
//
//	validation      400 bad_request
//	not_authorized  403 forbidden (402 payment_required for a locked chat)
//	not_found       404 not_found
//	conflict        409 conflict
//	anything else   500 internal_error (message hidden, logged)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/limitscope/caseportal/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodePaymentRequired  = "payment_required"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// failErr writes the failure envelope for an error returned by a service.
func failErr(c *gin.Context, err error) {
	if errors.Is(err, services.ErrChatLocked) {
		fail(c, http.StatusPaymentRequired, ErrCodePaymentRequired, err.Error())
		return
	}
	if errors.Is(err, services.ErrFileTooLarge) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, err.Error())
		return
	}
	switch services.KindOf(err) {
	case services.KindValidation:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case services.KindNotAuthorized:
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case services.KindNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case services.KindConflict:
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
