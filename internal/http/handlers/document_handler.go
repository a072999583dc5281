// Document HTTP handlers.
//
//   - POST /cases/{id}/documents           (multipart upload; owner, pending cases only)
//   - GET  /cases/{id}/documents           (metadata list)
//   - GET  /cases/{id}/documents/{docId}   (download)
//
// File content is sniffed server-side; the client's Content-Type is ignored.
package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/limitscope/caseportal/internal/domain"
	"github.com/limitscope/caseportal/internal/services"
)

// UploadDocument godoc
// @ID          uploadDocument
// @Summary     Upload a document
// @Description Attaches evidence to a pending case. Accepted: PDF, PNG, JPEG, WEBP, HEIC.
// @Tags        Documents
// @Accept      multipart/form-data
// @Produce     json
// @Param       id        path      string  true  "Case ID"  format(uuid)
// @Param       fileType  formData  string  true  "Document type"  Enums(ID,ADDRESS_PROOF,BANK_STATEMENT,INVOICE,OTHER)
// @Param       file      formData  file    true  "The file"
// @Success     201       {object}  handlers.Envelope{data=domain.Document}
// @Failure     400       {object}  handlers.ErrorResponse  "Missing, empty or unsupported file"
// @Failure     403       {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404       {object}  handlers.ErrorResponse  "Case not found"
// @Failure     409       {object}  handlers.ErrorResponse  "Case already classified"
// @Failure     413       {object}  handlers.ErrorResponse  "File too large"
// @Security    BearerAuth
// @Router      /cases/{id}/documents [post]
func (h *Handlers) UploadDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			failErr(c, services.ErrFileTooLarge)
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable file")
		return
	}
	defer f.Close()

	doc, err := h.docs.Upload(c.Request.Context(), actor(c), c.Param("id"), services.Upload{
		FileType: domain.DocumentType(strings.ToUpper(strings.TrimSpace(c.PostForm("fileType")))),
		FileName: fh.Filename,
		Size:     fh.Size,
		Body:     f,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, doc)
}

// ListDocuments godoc
// @ID          listDocuments
// @Summary     List case documents
// @Tags        Documents
// @Produce     json
// @Param       id   path      string  true  "Case ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=[]domain.Document}
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Case not found"
// @Security    BearerAuth
// @Router      /cases/{id}/documents [get]
func (h *Handlers) ListDocuments(c *gin.Context) {
	docs, err := h.docs.List(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, docs)
}

// DownloadDocument godoc
// @ID          downloadDocument
// @Summary     Download a document
// @Tags        Documents
// @Produce     octet-stream
// @Param       id     path      string  true  "Case ID"      format(uuid)
// @Param       docId  path      string  true  "Document ID"  format(uuid)
// @Success     200    {file}    file
// @Failure     403    {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404    {object}  handlers.ErrorResponse  "Case or document not found"
// @Security    BearerAuth
// @Router      /cases/{id}/documents/{docId} [get]
func (h *Handlers) DownloadDocument(c *gin.Context) {
	doc, rc, err := h.docs.Open(c.Request.Context(), actor(c), c.Param("id"), c.Param("docId"))
	if err != nil {
		failErr(c, err)
		return
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName})
	c.DataFromReader(http.StatusOK, doc.SizeBytes, doc.ContentType, rc, map[string]string{
		"Content-Disposition": disposition,
	})
}
