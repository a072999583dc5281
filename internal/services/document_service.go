// Package services – DocumentService
//
// DocumentService accepts evidentiary uploads for a case while it is still
// awaiting classification, and serves them back to the owner and staff.
// File contents are sniffed rather than trusted from the client's declared
// content type.
package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/limitscope/caseportal/internal/domain"
	"github.com/limitscope/caseportal/internal/observability"
	"github.com/limitscope/caseportal/internal/repo"
	"github.com/limitscope/caseportal/internal/storage"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BlobStore persists uploaded file contents under opaque keys.
type BlobStore interface {
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// DefaultMaxUploadBytes applies when DocumentService.MaxBytes is unset.
const DefaultMaxUploadBytes int64 = 10 << 20

// sniffLen is how much of the file mimetype inspects.
const sniffLen = 3072

var acceptedMIME = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/webp",
	"image/heic",
	"image/heif",
}

// DocumentService stores and serves case documents.
type DocumentService struct {
	DB       *gorm.DB
	Blobs    BlobStore
	MaxBytes int64
}

// Upload is one incoming file.
type Upload struct {
	FileType domain.DocumentType
	FileName string
	// Size is the client-declared size; -1 when unknown.
	Size int64
	Body io.Reader
}

func (s *DocumentService) maxBytes() int64 {
	if s.MaxBytes > 0 {
		return s.MaxBytes
	}
	return DefaultMaxUploadBytes
}

// Upload stores a document on caseID. Owner only, and only while the case is
// still pending classification.
func (s *DocumentService) Upload(ctx context.Context, actor Actor, caseID string, up Upload) (*domain.Document, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "Upload",
		trace.WithAttributes(
			attribute.String("case.id", caseID),
			attribute.String("document.type", string(up.FileType)),
			attribute.Int64("document.size", up.Size),
		),
	)
	defer span.End()

	if !up.FileType.Valid() {
		return nil, ErrInvalidDocumentType
	}
	c, err := repo.GetCase(ctx, s.DB, caseID)
	if err != nil {
		return nil, caseLookupErr(err)
	}
	if !actor.owns(c.OwnerUserID) {
		return nil, ErrOwnerOnly
	}
	if !c.IsPending {
		return nil, ErrIntakeClosed
	}

	limit := s.maxBytes()
	if up.Size == 0 || up.Body == nil {
		return nil, ErrEmptyFile
	}
	if up.Size > limit {
		return nil, ErrFileTooLarge
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(up.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if n == 0 {
		return nil, ErrEmptyFile
	}
	head = head[:n]
	mt := mimetype.Detect(head)
	if !acceptedType(mt) {
		return nil, ErrUnsupportedFileType
	}

	id := uuid.NewString()
	key := caseID + "/" + id + mt.Extension()
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), up.Body), limit+1)
	written, err := s.Blobs.Save(ctx, key, body)
	if err != nil {
		return nil, err
	}
	if written > limit {
		s.discard(ctx, key)
		return nil, ErrFileTooLarge
	}

	doc := &domain.Document{
		ID:          id,
		CaseID:      caseID,
		FileType:    up.FileType,
		FileName:    cleanFileName(up.FileName, mt.Extension()),
		ContentType: mt.String(),
		SizeBytes:   written,
		StorageKey:  key,
	}
	if err := repo.CreateDocument(ctx, s.DB, doc); err != nil {
		s.discard(ctx, key)
		return nil, err
	}
	observability.DocumentsUploaded.WithLabelValues(string(doc.FileType)).Inc()
	return doc, nil
}

// List returns a case's documents, oldest first. Owner or staff.
func (s *DocumentService) List(ctx context.Context, actor Actor, caseID string) ([]domain.Document, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "List", trace.WithAttributes(attribute.String("case.id", caseID)))
	defer span.End()

	if err := s.authorizeRead(ctx, actor, caseID); err != nil {
		return nil, err
	}
	return repo.ListDocuments(ctx, s.DB, caseID)
}

// Open returns a document's metadata and a reader over its contents. The
// caller must close the reader.
func (s *DocumentService) Open(ctx context.Context, actor Actor, caseID, docID string) (*domain.Document, io.ReadCloser, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "Open",
		trace.WithAttributes(
			attribute.String("case.id", caseID),
			attribute.String("document.id", docID),
		),
	)
	defer span.End()

	if err := s.authorizeRead(ctx, actor, caseID); err != nil {
		return nil, nil, err
	}
	doc, err := repo.GetDocument(ctx, s.DB, caseID, docID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrDocumentNotFound
		}
		return nil, nil, err
	}
	rc, err := s.Blobs.Open(ctx, doc.StorageKey)
	if errors.Is(err, storage.ErrBlobNotFound) {
		zerolog.Ctx(ctx).Warn().Str("storage_key", doc.StorageKey).Msg("document row without blob")
		return nil, nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

func (s *DocumentService) authorizeRead(ctx context.Context, actor Actor, caseID string) error {
	c, err := repo.GetCase(ctx, s.DB, caseID)
	if err != nil {
		return caseLookupErr(err)
	}
	if !actor.canSee(c.OwnerUserID) {
		return ErrForbidden
	}
	return nil
}

func (s *DocumentService) discard(ctx context.Context, key string) {
	if err := s.Blobs.Delete(ctx, key); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("storage_key", key).Msg("discard upload failed")
	}
}

func acceptedType(mt *mimetype.MIME) bool {
	for _, want := range acceptedMIME {
		if mt.Is(want) {
			return true
		}
	}
	return false
}

// cleanFileName keeps only the base name of the client-supplied path.
func cleanFileName(name, ext string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return "document" + ext
	}
	if r := []rune(name); len(r) > 255 {
		name = string(r[:255])
	}
	return name
}
