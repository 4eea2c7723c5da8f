// Package httpapi exposes the document service over HTTP with gin.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"levi/internal/briefing"
	"levi/internal/domain"
	"levi/internal/service"
)

// DocumentService is the part of service.DocumentService the handlers use.
type DocumentService interface {
	Upload(ctx context.Context, name, text string) (service.UploadResult, error)
	Verify(ctx context.Context, sessionID string) (domain.VerifierReport, error)
	Brief(ctx context.Context, sessionID string) (briefing.Brief, error)
	Reset(sessionID string) error
	SearchCorpus(ctx context.Context, query string, k int) (service.SearchResult, error)
	ReloadCorpus(ctx context.Context) (service.CorpusStats, error)
	CorpusStats() service.CorpusStats
	ActiveSessions() int
}

// Handler serves the HTTP endpoints.
type Handler struct {
	svc            DocumentService
	maxUploadBytes int64
	maxSearchK     int
}

func NewHandler(svc DocumentService, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 * 1024 * 1024
	}
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes, maxSearchK: 50}
}

// Root handles GET /
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"service": "levi", "status": "running"})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"corpus":   h.svc.CorpusStats(),
		"sessions": h.svc.ActiveSessions(),
	})
}

type uploadRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Upload handles POST /upload. It accepts either a multipart form with a
// plain-text "file" field or a JSON body {"name": "...", "text": "..."}.
func (h *Handler) Upload(c *gin.Context) {
	// Leave room for multipart framing around the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+64*1024)

	var (
		name, text string
		err        error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		name, text, err = h.readMultipart(c)
	} else {
		name, text, err = h.readJSON(c)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.svc.Upload(c.Request.Context(), name, text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) readMultipart(c *gin.Context) (string, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", "", h.tooLarge()
		}
		return "", "", badRequest("MISSING_FILE", "File is required")
	}
	if fh.Size > h.maxUploadBytes {
		return "", "", h.tooLarge()
	}
	if !isPlainText(fh.Header.Get("Content-Type"), fh.Filename) {
		return "", "", &apiError{
			status:  http.StatusUnsupportedMediaType,
			code:    "INVALID_FILE_TYPE",
			message: "Only plain text (.txt) documents are supported",
		}
	}
	f, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		return "", "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > h.maxUploadBytes {
		return "", "", h.tooLarge()
	}
	text, err := decodeText(data)
	if err != nil {
		return "", "", err
	}
	return filepath.Base(fh.Filename), text, nil
}

func (h *Handler) readJSON(c *gin.Context) (string, string, error) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", "", h.tooLarge()
		}
		return "", "", badRequest("INVALID_REQUEST", "Expected a multipart file or a JSON body with a text field")
	}
	if int64(len(req.Text)) > h.maxUploadBytes {
		return "", "", h.tooLarge()
	}
	if req.Name == "" {
		req.Name = "document.txt"
	}
	return req.Name, req.Text, nil
}

func (h *Handler) tooLarge() error {
	return &apiError{
		status:  http.StatusRequestEntityTooLarge,
		code:    "FILE_TOO_LARGE",
		message: fmt.Sprintf("Document exceeds maximum of %d bytes", h.maxUploadBytes),
	}
}

func isPlainText(contentType, filename string) bool {
	if contentType == "" || contentType == "application/octet-stream" {
		return strings.EqualFold(filepath.Ext(filename), ".txt")
	}
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/plain"
}

func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", badRequest("INVALID_ENCODING", "Document must be UTF-8 text")
	}
	return string(data), nil
}

// Verifier handles GET /sessions/:id/verifier
func (h *Handler) Verifier(c *gin.Context) {
	report, err := h.svc.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Briefings handles GET /sessions/:id/briefings
func (h *Handler) Briefings(c *gin.Context) {
	brief, err := h.svc.Brief(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, brief)
}

// Reset handles POST /sessions/:id/reset
func (h *Handler) Reset(c *gin.Context) {
	if err := h.svc.Reset(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "message": "Session reset"})
}

// Search handles GET /search?q=...&k=...
func (h *Handler) Search(c *gin.Context) {
	k := 0
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > h.maxSearchK {
			writeError(c, badRequest("INVALID_K", fmt.Sprintf("k must be an integer between 1 and %d", h.maxSearchK)))
			return
		}
		k = n
	}
	res, err := h.svc.SearchCorpus(c.Request.Context(), c.Query("q"), k)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Reindex handles POST /admin/reindex
func (h *Handler) Reindex(c *gin.Context) {
	stats, err := h.svc.ReloadCorpus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Corpus reloaded", "corpus": stats})
}
