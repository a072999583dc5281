package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/limitscope/caseportal/internal/events"
	"github.com/limitscope/caseportal/internal/http/middleware"
	"github.com/limitscope/caseportal/internal/payments"
	"github.com/limitscope/caseportal/internal/repo"
	"github.com/limitscope/caseportal/internal/services"
	"github.com/limitscope/caseportal/internal/storage"
)

// ---------- test DB + router ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type harness struct {
	t      *testing.T
	r      *gin.Engine
	db     *gorm.DB
	events *events.Recorder
}

// newHarness serves every handler against real services. Callers identify
// themselves through the development headers.
func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	blobs, err := storage.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	rec := &events.Recorder{}
	users := &services.UserService{DB: db, HashCost: bcrypt.MinCost}
	idem := &services.IdempotencyService{DB: db}

	h := New(Deps{
		Cases:          &services.CaseService{DB: db, Events: rec, Payments: payments.NewMock(0), Blobs: blobs},
		Classification: &services.ClassificationService{DB: db, Events: rec},
		Messages:       &services.MessageService{DB: db, Events: rec, MaxMessageRunes: 100},
		Documents:      &services.DocumentService{DB: db, Blobs: blobs, MaxBytes: 1 << 16},
		Users:          users,
		Idem:           idem,
	})

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Session(middleware.SessionOptions{DevHeaders: true, Provision: users.Provision}))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idem.Exists))

	api := r.Group("/api", middleware.RequireSession())
	api.POST("/cases", h.CreateCase)
	api.GET("/cases", h.ListMyCases)
	api.GET("/cases/:id", h.GetCase)
	api.PUT("/cases/:id/view-results", h.ViewResults)
	api.POST("/cases/:id/pay", h.MarkPaid)
	api.POST("/cases/:id/documents", h.UploadDocument)
	api.GET("/cases/:id/documents", h.ListDocuments)
	api.GET("/cases/:id/documents/:docId", h.DownloadDocument)

	api.GET("/admin/cases", h.AdminListCases)
	api.GET("/admin/cases/:id", h.AdminGetCase)
	api.PUT("/admin/cases/:id/status", h.SetStatus)
	api.PUT("/admin/cases/:id/classify", h.Classify)
	api.POST("/admin/cases/:id/notes", h.AddNote)
	api.GET("/admin/cases/:id/notes", h.ListNotes)
	api.DELETE("/admin/cases/:id", h.DeleteCase)
	api.GET("/admin/stats", h.Stats)
	api.GET("/admin/users", h.ListUsers)

	api.GET("/chat/conversations", h.ListConversations)
	api.GET("/chat/messages/:key", h.ListMessages)
	api.POST("/chat/messages/:key", h.PostMessage)

	api.GET("/auth/me", h.Me)
	api.PUT("/auth/email", h.UpdateEmail)
	api.PUT("/auth/password", h.UpdatePassword)

	return &harness{t: t, r: r, db: db, events: rec}
}

// caller is a development-header identity.
type caller struct {
	id    string
	admin bool
}

var (
	staff   = caller{id: "staff-1", admin: true}
	jane    = caller{id: "jane-1"}
	mallory = caller{id: "mallory-1"}
)

func (h *harness) do(who caller, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.serve(who, req, hdr...)
}

func (h *harness) upload(who caller, caseID, fileType, name string, content []byte) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("fileType", fileType)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		h.t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/cases/"+caseID+"/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return h.serve(who, req)
}

func (h *harness) serve(who caller, req *http.Request, hdr ...string) *httptest.ResponseRecorder {
	if who.id != "" {
		req.Header.Set(middleware.HeaderDevUserID, who.id)
		if who.admin {
			req.Header.Set(middleware.HeaderDevUserAdmin, "true")
		}
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

// envelope decodes a success or failure body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

func decodeEnv(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid json %q: %v", w.Body.String(), err)
	}
	return env
}

func dataAs[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	env := decodeEnv(t, w)
	if !env.Success {
		t.Fatalf("expected success, got %d %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return out
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d; want %d (body %s)", w.Code, status, w.Body.String())
	}
	if code == "" {
		return
	}
	if env := decodeEnv(t, w); env.Success || env.Code != code {
		t.Fatalf("code = %q; want %q (body %s)", env.Code, code, w.Body.String())
	}
}

// newCase submits a minimal intake as who and returns the case ID.
func (h *harness) newCase(who caller) string {
	h.t.Helper()
	w := h.do(who, http.MethodPost, "/api/cases", map[string]any{
		"country":         "Germany",
		"restrictionType": "permanent",
		"freeTextReason":  "account limited after a large incoming payment",
	})
	wantStatus(h.t, w, http.StatusCreated, "")
	return dataAs[caseView](h.t, w).ID
}

func (h *harness) classify(caseID string) {
	h.t.Helper()
	w := h.do(staff, http.MethodPut, "/api/admin/cases/"+caseID+"/classify", map[string]string{
		"likelihood": "HIGH", "fundLikelihood": "MEDIUM", "recommendation": "appeal with invoices",
	})
	wantStatus(h.t, w, http.StatusOK, "")
}

// caseView is the subset of the case payload the tests inspect.
type caseView struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title"`
	Status               string  `json:"status"`
	Likelihood           *string `json:"likelihood"`
	Recommendation       *string `json:"recommendation"`
	ClassificationViewed bool    `json:"classificationViewed"`
	IsPaid               bool    `json:"isPaid"`
	CanChat              bool    `json:"canChat"`
	Notes                []any   `json:"notes"`
	Owner                *struct {
		Email string `json:"email"`
	} `json:"user"`
}

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << >>\n%%EOF\n")
)
