// Chat HTTP handlers.
//
// This file exposes the messaging relay:
//   - GET  /chat/conversations     (staff inbox)
//   - GET  /chat/messages/{key}    (poll a conversation; ETag support)
//   - POST /chat/messages/{key}    (send a message; idempotent)
//
// Delivery is pull-based. Listings advertise the polling cadence in
// X-Poll-Interval (seconds) and carry a weak ETag so an unchanged
// conversation answers 304 without a body.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// PostMessageRequest is the JSON payload for sending a message. Content is
// normalized before the service applies its own length checks.
type PostMessageRequest struct {
	Content string `json:"content" binding:"required" example:"I have uploaded the invoices you asked for."`
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two,
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// ListConversations godoc
// @ID          listConversations
// @Summary     Staff inbox
// @Description One entry per conversation, most recently active first, with the resolved owner.
// @Tags        Chat
// @Produce     json
// @Success     200  {object}  handlers.Envelope{data=[]domain.Conversation}
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Security    BearerAuth
// @Router      /chat/conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	list, err := h.msgs.Conversations(c.Request.Context(), actor(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Poll a conversation
// @Description Messages oldest first. The key is a case ID or a user ID. Clients must pay before chatting.
// @Tags        Chat
// @Produce     json
// @Param       key            path      string  true   "Conversation key (case or user ID)"
// @Param       If-None-Match  header    string  false  "Return 304 if ETag matches"
// @Success     200            {object}  handlers.Envelope{data=[]domain.Message}
// @Header      200            {string}  ETag             "Weak validator of the conversation state"
// @Header      200            {integer} X-Poll-Interval  "Seconds between polls"
// @Success     304            {string}  string  "Not Modified"
// @Failure     402            {object}  handlers.ErrorResponse  "Chat locked until purchase"
// @Failure     403            {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404            {object}  handlers.ErrorResponse  "Conversation not found"
// @Security    BearerAuth
// @Router      /chat/messages/{key} [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")
	a := actor(c)

	count, seq, err := h.msgs.Version(ctx, a, key)
	if err != nil {
		failErr(c, err)
		return
	}
	etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, key, count, seq)
	c.Header("ETag", etag)
	c.Header("Cache-Control", "private, no-cache")
	c.Header("X-Poll-Interval", strconv.Itoa(int(h.msgs.Poll().Seconds())))
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	list, err := h.msgs.List(ctx, a, key)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Appends a message to the conversation. Staff may always write; clients only after payment.
// @Description Supports Idempotency-Key; a replay returns the original message with `Idempotency-Replayed: true`.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Param       key              path      string                       true   "Conversation key (case or user ID)"
// @Param       Idempotency-Key  header    string                       false  "Key for safe retries"
// @Param       body             body      handlers.PostMessageRequest  true   "Message"
// @Success     201              {object}  handlers.Envelope{data=domain.Message}
// @Success     200              {object}  handlers.Envelope{data=domain.Message}  "Replayed"
// @Failure     400              {object}  handlers.ErrorResponse  "Empty or too long"
// @Failure     402              {object}  handlers.ErrorResponse  "Chat locked until purchase"
// @Failure     403              {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404              {object}  handlers.ErrorResponse  "Conversation not found"
// @Security    BearerAuth
// @Router      /chat/messages/{key} [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")
	a := actor(c)

	if id, found := h.replayed(c, key); found {
		if prev, err := h.msgs.Get(ctx, a, key, id); err == nil {
			markReplayed(c)
			ok(c, http.StatusOK, prev)
			return
		}
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	m, err := h.msgs.Post(ctx, a, key, sanitizeContent(req.Content))
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, key, m.ID, http.StatusCreated)
	ok(c, http.StatusCreated, m)
}
