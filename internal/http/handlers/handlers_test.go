package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/limitscope/caseportal/internal/events"
	"github.com/limitscope/caseportal/internal/http/middleware"
	"github.com/limitscope/caseportal/internal/services"
)

func TestCaseJourneyOverHTTP(t *testing.T) {
	h := newHarness(t)
	id := h.newCase(jane)

	// Owner view of a pending case hides classification.
	w := h.do(jane, http.MethodGet, "/api/cases/"+id, nil)
	wantStatus(t, w, http.StatusOK, "")
	cv := dataAs[caseView](t, w)
	if cv.Status != "PENDING" || cv.Title != "Permanent Limitation: Germany" || cv.Likelihood != nil {
		t.Fatalf("pending owner view unexpected: %+v", cv)
	}

	// Paying before classification is a conflict; chatting is locked.
	w = h.do(jane, http.MethodPost, "/api/cases/"+id+"/pay", map[string]string{"plan": "personal"})
	wantStatus(t, w, http.StatusConflict, ErrCodeConflict)
	w = h.do(jane, http.MethodPost, "/api/chat/messages/"+id, map[string]string{"content": "hello?"})
	wantStatus(t, w, http.StatusPaymentRequired, ErrCodePaymentRequired)

	h.classify(id)

	w = h.do(jane, http.MethodPut, "/api/cases/"+id+"/view-results", nil)
	wantStatus(t, w, http.StatusOK, "")
	cv = dataAs[caseView](t, w)
	if cv.Likelihood == nil || *cv.Likelihood != "HIGH" || !cv.ClassificationViewed || cv.Recommendation == nil {
		t.Fatalf("classified owner view unexpected: %+v", cv)
	}

	// Pay with an idempotency key, then retry with the same key.
	w = h.do(jane, http.MethodPost, "/api/cases/"+id+"/pay", map[string]string{"plan": "PERSONAL"}, "Idempotency-Key", "pay-1")
	wantStatus(t, w, http.StatusOK, "")
	if cv = dataAs[caseView](t, w); !cv.IsPaid || !cv.CanChat {
		t.Fatalf("paid case unexpected: %+v", cv)
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first payment flagged as replay")
	}
	w = h.do(jane, http.MethodPost, "/api/cases/"+id+"/pay", map[string]string{"plan": "PERSONAL"}, "Idempotency-Key", "pay-1")
	wantStatus(t, w, http.StatusOK, "")
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("retry not replayed")
	}
	paid := 0
	for _, typ := range h.events.Types() {
		if typ == events.CasePaid {
			paid++
		}
	}
	if paid != 1 {
		t.Fatalf("case.paid events = %d; want 1", paid)
	}

	// Conversation opens after payment.
	w = h.do(jane, http.MethodPost, "/api/chat/messages/"+id, map[string]string{"content": "hi\r\n\r\n\r\n\r\nthere  "})
	wantStatus(t, w, http.StatusCreated, "")
	msg := dataAs[struct {
		ID            string `json:"id"`
		Content       string `json:"content"`
		SenderIsAdmin bool   `json:"senderIsAdmin"`
	}](t, w)
	if msg.Content != "hi\n\nthere" || msg.SenderIsAdmin {
		t.Fatalf("message unexpected: %+v", msg)
	}
	w = h.do(staff, http.MethodPost, "/api/chat/messages/"+id, map[string]string{"content": "we will review"})
	wantStatus(t, w, http.StatusCreated, "")

	// Staff deletes; a second delete conflicts; the owner sees 404.
	w = h.do(staff, http.MethodDelete, "/api/admin/cases/"+id, nil)
	wantStatus(t, w, http.StatusOK, "")
	w = h.do(staff, http.MethodDelete, "/api/admin/cases/"+id, nil)
	wantStatus(t, w, http.StatusConflict, ErrCodeConflict)
	w = h.do(jane, http.MethodGet, "/api/cases/"+id, nil)
	wantStatus(t, w, http.StatusNotFound, ErrCodeNotFound)
}

func TestCreateCase_Validation(t *testing.T) {
	h := newHarness(t)

	w := h.do(jane, http.MethodPost, "/api/cases", map[string]any{"freeTextReason": "   "})
	wantStatus(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = h.do(jane, http.MethodPost, "/api/cases", map[string]any{"freeTextReason": "x", "accountType": "corporate"})
	wantStatus(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	req := httptest.NewRequest(http.MethodPost, "/api/cases", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	wantStatus(t, h.serve(jane, req), http.StatusBadRequest, ErrCodeBadRequest)

	w = h.do(caller{}, http.MethodPost, "/api/cases", map[string]any{"freeTextReason": "x"})
	wantStatus(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestCaseAccessControl(t *testing.T) {
	h := newHarness(t)
	id := h.newCase(jane)

	wantStatus(t, h.do(mallory, http.MethodGet, "/api/cases/"+id, nil), http.StatusForbidden, ErrCodeForbidden)
	wantStatus(t, h.do(jane, http.MethodGet, "/api/cases/missing", nil), http.StatusNotFound, ErrCodeNotFound)
	wantStatus(t, h.do(jane, http.MethodGet, "/api/admin/cases", nil), http.StatusForbidden, ErrCodeForbidden)
	wantStatus(t, h.do(jane, http.MethodGet, "/api/admin/cases/"+id, nil), http.StatusForbidden, ErrCodeForbidden)
	wantStatus(t, h.do(jane, http.MethodPut, "/api/admin/cases/"+id+"/status", map[string]string{"status": "RESOLVED"}), http.StatusForbidden, ErrCodeForbidden)
	wantStatus(t, h.do(jane, http.MethodGet, "/api/admin/stats", nil), http.StatusForbidden, ErrCodeForbidden)
	wantStatus(t, h.do(staff, http.MethodPost, "/api/cases/"+id+"/pay", map[string]string{"plan": "PERSONAL"}), http.StatusForbidden, ErrCodeForbidden)

	// Own listing only shows own cases.
	h.newCase(mallory)
	w := h.do(jane, http.MethodGet, "/api/cases", nil)
	wantStatus(t, w, http.StatusOK, "")
	if list := dataAs[[]caseView](t, w); len(list) != 1 || list[0].ID != id {
		t.Fatalf("own listing = %+v", list)
	}
	wantStatus(t, h.do(jane, http.MethodGet, "/api/cases?status=closed", nil), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestAdminEndpoints(t *testing.T) {
	h := newHarness(t)
	id := h.newCase(jane)
	h.newCase(mallory)

	w := h.do(staff, http.MethodGet, "/api/admin/cases?search=JANE", nil)
	wantStatus(t, w, http.StatusOK, "")
	list := dataAs[[]caseView](t, w)
	if len(list) != 1 || list[0].ID != id || list[0].Owner == nil || list[0].Owner.Email != "jane-1@dev.local" {
		t.Fatalf("search result = %+v", list)
	}

	w = h.do(staff, http.MethodPut, "/api/admin/cases/"+id+"/status", map[string]string{"status": "under_review"})
	wantStatus(t, w, http.StatusOK, "")
	if cv := dataAs[caseView](t, w); cv.Status != "UNDER_REVIEW" {
		t.Fatalf("status = %q", cv.Status)
	}
	wantStatus(t, h.do(staff, http.MethodPut, "/api/admin/cases/"+id+"/status", map[string]string{"status": "ARCHIVED"}), http.StatusBadRequest, ErrCodeBadRequest)
	wantStatus(t, h.do(staff, http.MethodPut, "/api/admin/cases/"+id+"/status", map[string]string{}), http.StatusBadRequest, ErrCodeBadRequest)

	wantStatus(t, h.do(staff, http.MethodPut, "/api/admin/cases/"+id+"/classify", map[string]string{"likelihood": "HIGH"}), http.StatusBadRequest, ErrCodeBadRequest)

	wantStatus(t, h.do(staff, http.MethodPost, "/api/admin/cases/"+id+"/notes", map[string]string{"content": " \n "}), http.StatusBadRequest, ErrCodeBadRequest)
	for _, n := range []string{"first", "second"} {
		wantStatus(t, h.do(staff, http.MethodPost, "/api/admin/cases/"+id+"/notes", map[string]string{"content": n}), http.StatusCreated, "")
	}
	w = h.do(staff, http.MethodGet, "/api/admin/cases/"+id+"/notes", nil)
	wantStatus(t, w, http.StatusOK, "")
	notes := dataAs[[]struct {
		Content string `json:"content"`
	}](t, w)
	if len(notes) != 2 || notes[0].Content != "second" {
		t.Fatalf("notes newest first: %+v", notes)
	}

	// Staff detail embeds notes; the owner's never does.
	if cv := dataAs[caseView](t, h.do(staff, http.MethodGet, "/api/admin/cases/"+id, nil)); len(cv.Notes) != 2 {
		t.Fatalf("staff view notes = %d", len(cv.Notes))
	}
	if cv := dataAs[caseView](t, h.do(jane, http.MethodGet, "/api/cases/"+id, nil)); len(cv.Notes) != 0 {
		t.Fatalf("owner view leaked notes")
	}

	w = h.do(staff, http.MethodGet, "/api/admin/stats", nil)
	wantStatus(t, w, http.StatusOK, "")
	st := dataAs[struct {
		TotalCases             int64 `json:"totalCases"`
		AwaitingClassification int64 `json:"awaitingClassification"`
		TotalUsers             int64 `json:"totalUsers"`
	}](t, w)
	if st.TotalCases != 2 || st.AwaitingClassification != 2 || st.TotalUsers != 3 {
		t.Fatalf("stats = %+v", st)
	}

	w = h.do(staff, http.MethodGet, "/api/admin/users?search=mallory", nil)
	wantStatus(t, w, http.StatusOK, "")
	if users := dataAs[[]struct {
		ID string `json:"id"`
	}](t, w); len(users) != 1 || users[0].ID != mallory.id {
		t.Fatalf("users = %+v", users)
	}
}

func TestListMessages_ETagAndPollInterval(t *testing.T) {
	h := newHarness(t)
	id := h.newCase(jane)
	h.classify(id)
	wantStatus(t, h.do(jane, http.MethodPost, "/api/cases/"+id+"/pay", map[string]string{"plan": "BUSINESS"}), http.StatusOK, "")

	wantStatus(t, h.do(staff, http.MethodPost, "/api/chat/messages/"+id, map[string]string{"content": "welcome"}), http.StatusCreated, "")

	w := h.do(jane, http.MethodGet, "/api/chat/messages/"+id, nil)
	wantStatus(t, w, http.StatusOK, "")
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"messages:`+id+`:1:`) {
		t.Fatalf("etag = %q", etag)
	}
	if w.Header().Get("X-Poll-Interval") != "5" || w.Header().Get("Cache-Control") != "private, no-cache" {
		t.Fatalf("poll headers = %v", w.Header())
	}
	if msgs := dataAs[[]struct {
		Content string `json:"content"`
	}](t, w); len(msgs) != 1 || msgs[0].Content != "welcome" {
		t.Fatalf("messages = %+v", msgs)
	}

	w = h.do(jane, http.MethodGet, "/api/chat/messages/"+id, nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("unchanged conversation should be 304, got %d", w.Code)
	}

	wantStatus(t, h.do(jane, http.MethodPost, "/api/chat/messages/"+id, map[string]string{"content": "thanks"}), http.StatusCreated, "")
	w = h.do(jane, http.MethodGet, "/api/chat/messages/"+id, nil, "If-None-Match", etag)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("new message must change the etag, got %d %q", w.Code, w.Header().Get("ETag"))
	}

	wantStatus(t, h.do(mallory, http.MethodGet, "/api/chat/messages/"+id, nil), http.StatusForbidden, ErrCodeForbidden)
	wantStatus(t, h.do(jane, http.MethodGet, "/api/chat/messages/nobody", nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestPostMessage_IdempotentAndValidation(t *testing.T) {
	h := newHarness(t)
	h.newCase(jane)

	// The user's general conversation is open to staff regardless of payment.
	key := jane.id
	first := h.do(staff, http.MethodPost, "/api/chat/messages/"+key, map[string]string{"content": "hello jane"}, "Idempotency-Key", "m-1")
	wantStatus(t, first, http.StatusCreated, "")
	again := h.do(staff, http.MethodPost, "/api/chat/messages/"+key, map[string]string{"content": "hello jane"}, "Idempotency-Key", "m-1")
	wantStatus(t, again, http.StatusOK, "")
	if again.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("retry not replayed")
	}
	type idOnly struct {
		ID string `json:"id"`
	}
	if dataAs[idOnly](t, first).ID != dataAs[idOnly](t, again).ID {
		t.Fatalf("replay returned a different message")
	}

	wantStatus(t, h.do(staff, http.MethodPost, "/api/chat/messages/"+key, map[string]string{"content": "x"}, "Idempotency-Key", "bad key!"), http.StatusBadRequest, "bad_idempotency_key")
	wantStatus(t, h.do(staff, http.MethodPost, "/api/chat/messages/"+key, map[string]string{"content": "\n\n"}), http.StatusBadRequest, ErrCodeBadRequest)
	wantStatus(t, h.do(staff, http.MethodPost, "/api/chat/messages/"+key, map[string]string{"content": strings.Repeat("a", 101)}), http.StatusBadRequest, ErrCodeBadRequest)
	wantStatus(t, h.do(staff, http.MethodPost, "/api/chat/messages/"+key, map[string]string{}), http.StatusBadRequest, ErrCodeBadRequest)
	wantStatus(t, h.do(mallory, http.MethodPost, "/api/chat/messages/"+key, map[string]string{"content": "  "}), http.StatusForbidden, ErrCodeForbidden)

	// Jane has no paid case yet.
	wantStatus(t, h.do(jane, http.MethodGet, "/api/chat/messages/"+key, nil), http.StatusPaymentRequired, ErrCodePaymentRequired)

	w := h.do(staff, http.MethodGet, "/api/chat/conversations", nil)
	wantStatus(t, w, http.StatusOK, "")
	convs := dataAs[[]struct {
		Key          string `json:"key"`
		MessageCount int64  `json:"messageCount"`
	}](t, w)
	if len(convs) != 1 || convs[0].Key != key || convs[0].MessageCount != 1 {
		t.Fatalf("conversations = %+v", convs)
	}
	wantStatus(t, h.do(jane, http.MethodGet, "/api/chat/conversations", nil), http.StatusForbidden, ErrCodeForbidden)
}

func TestDocumentsOverHTTP(t *testing.T) {
	h := newHarness(t)
	id := h.newCase(jane)

	w := h.upload(jane, id, "bank_statement", "march.pdf", pdfBytes)
	wantStatus(t, w, http.StatusCreated, "")
	doc := dataAs[struct {
		ID          string `json:"id"`
		FileType    string `json:"fileType"`
		ContentType string `json:"contentType"`
	}](t, w)
	if doc.FileType != "BANK_STATEMENT" || doc.ContentType != "application/pdf" {
		t.Fatalf("document = %+v", doc)
	}

	wantStatus(t, h.upload(jane, id, "ID", "notes.txt", []byte("plain text is not evidence")), http.StatusBadRequest, ErrCodeBadRequest)
	wantStatus(t, h.upload(jane, id, "SELFIE", "id.png", pngBytes), http.StatusBadRequest, ErrCodeBadRequest)
	wantStatus(t, h.upload(mallory, id, "ID", "id.png", pngBytes), http.StatusForbidden, ErrCodeForbidden)
	wantStatus(t, h.upload(jane, id, "ID", "big.png", append(pngBytes, bytes.Repeat([]byte{0}, 1<<16)...)), http.StatusRequestEntityTooLarge, ErrCodeTooLarge)

	w = h.do(staff, http.MethodGet, "/api/cases/"+id+"/documents", nil)
	wantStatus(t, w, http.StatusOK, "")
	if docs := dataAs[[]any](t, w); len(docs) != 1 {
		t.Fatalf("documents = %d; want 1", len(docs))
	}

	w = h.do(jane, http.MethodGet, "/api/cases/"+id+"/documents/"+doc.ID, nil)
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), pdfBytes) {
		t.Fatalf("download = %d, %d bytes", w.Code, w.Body.Len())
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename=march.pdf` {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	wantStatus(t, h.do(jane, http.MethodGet, "/api/cases/"+id+"/documents/missing", nil), http.StatusNotFound, ErrCodeNotFound)

	// Intake closes once the case is classified.
	h.classify(id)
	wantStatus(t, h.upload(jane, id, "ID", "id.png", pngBytes), http.StatusConflict, ErrCodeConflict)
}

func TestAccountEndpoints(t *testing.T) {
	h := newHarness(t)

	w := h.do(jane, http.MethodGet, "/api/auth/me", nil)
	wantStatus(t, w, http.StatusOK, "")
	me := dataAs[struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		PasswordHash string `json:"passwordHash"`
	}](t, w)
	if me.ID != jane.id || me.Email != "jane-1@dev.local" {
		t.Fatalf("me = %+v", me)
	}

	wantStatus(t, h.do(jane, http.MethodPut, "/api/auth/email", map[string]string{"email": "not-an-email"}), http.StatusBadRequest, ErrCodeBadRequest)
	h.do(mallory, http.MethodGet, "/api/auth/me", nil)
	wantStatus(t, h.do(jane, http.MethodPut, "/api/auth/email", map[string]string{"email": "mallory-1@dev.local"}), http.StatusConflict, ErrCodeConflict)
	w = h.do(jane, http.MethodPut, "/api/auth/email", map[string]string{"email": "Jane.Doe@Example.com"})
	wantStatus(t, w, http.StatusOK, "")

	wantStatus(t, h.do(jane, http.MethodPut, "/api/auth/password", map[string]string{"newPassword": "short"}), http.StatusBadRequest, ErrCodeBadRequest)
	wantStatus(t, h.do(jane, http.MethodPut, "/api/auth/password", map[string]string{"newPassword": "correct horse"}), http.StatusOK, "")
	wantStatus(t, h.do(jane, http.MethodPut, "/api/auth/password", map[string]string{"currentPassword": "wrong", "newPassword": "battery staple"}), http.StatusForbidden, ErrCodeForbidden)

	w = h.do(jane, http.MethodPut, "/api/auth/password", map[string]string{"currentPassword": "correct horse", "newPassword": "battery staple"})
	wantStatus(t, w, http.StatusOK, "")
	if strings.Contains(h.do(jane, http.MethodGet, "/api/auth/me", nil).Body.String(), "$2a$") {
		t.Fatalf("password hash leaked")
	}
}

func TestFailErr_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrEmptyNote, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrAdminOnly, http.StatusForbidden, ErrCodeForbidden},
		{services.ErrChatLocked, http.StatusPaymentRequired, ErrCodePaymentRequired},
		{services.ErrCaseNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrCaseDeleted, http.StatusConflict, ErrCodeConflict},
		{services.ErrFileTooLarge, http.StatusRequestEntityTooLarge, ErrCodeTooLarge},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/", func(c *gin.Context) { failErr(c, tc.err) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		wantStatus(t, w, tc.status, tc.code)
		if tc.status == http.StatusInternalServerError && strings.Contains(w.Body.String(), "disk on fire") {
			t.Fatalf("internal error message leaked: %s", w.Body.String())
		}
	}
}

func TestSanitizeContent(t *testing.T) {
	cases := map[string]string{
		"  hi  ":             "hi",
		"a\r\nb":             "a\nb",
		"a\rb":               "a\nb",
		"a\n\n\n\n\nb":       "a\n\nb",
		"\r\n\r\n\r\n":       "",
		"keep\n\nparagraphs": "keep\n\nparagraphs",
	}
	for in, want := range cases {
		if got := sanitizeContent(in); got != want {
			t.Fatalf("sanitizeContent(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestActor_AnonymousWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if a := actor(c); !a.Anonymous() {
		t.Fatalf("expected anonymous actor, got %+v", a)
	}
	if _, ok := middleware.ActorFrom(c); ok {
		t.Fatalf("ActorFrom without session")
	}
}
