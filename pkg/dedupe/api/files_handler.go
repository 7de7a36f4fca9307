package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/fileforge/dedupe/pkg/dedupe"
)

// Upload validation limits enforced at this layer. The core service assumes
// they hold and does not re-check them.
const (
	maxFilenameLength = 255
	defaultMaxUpload  = 100 << 20 // 100 MiB
	multipartMemory   = 32 << 20
)

// defaultAllowedExtensions mirrors the common document/image allow-list.
var defaultAllowedExtensions = []string{
	"txt", "pdf", "doc", "docx", "xls", "xlsx", "csv", "md",
	"png", "jpg", "jpeg", "gif", "webp", "svg",
	"zip", "tar", "gz", "json", "xml", "yaml", "yml",
}

// FilesHandler handles file upload, search and deduplication API endpoints
type FilesHandler struct {
	service           dedupe.Service
	maxUploadSize     int64
	allowedExtensions map[string]bool
}

// HandlerOption configures a FilesHandler
type HandlerOption func(*FilesHandler)

// WithMaxUploadSize overrides the upload size ceiling
func WithMaxUploadSize(n int64) HandlerOption {
	return func(h *FilesHandler) {
		if n > 0 {
			h.maxUploadSize = n
		}
	}
}

// WithAllowedExtensions replaces the extension allow-list
func WithAllowedExtensions(exts []string) HandlerOption {
	return func(h *FilesHandler) {
		h.allowedExtensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			h.allowedExtensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
		}
	}
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(service dedupe.Service, opts ...HandlerOption) *FilesHandler {
	h := &FilesHandler{
		service:       service,
		maxUploadSize: defaultMaxUpload,
	}
	WithAllowedExtensions(defaultAllowedExtensions)(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for files endpoints
func (h *FilesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.UploadFile)
	r.Get("/", h.SearchFiles)
	r.Get("/storage-summary", h.StorageSummary)
	r.Get("/{id}", h.GetFile)
	r.Delete("/{id}", h.DeleteFile)
	r.Get("/{id}/download", h.DownloadFile)
	return r
}

// FileResponse is the response body for a file record
type FileResponse struct {
	ID               string    `json:"id"`
	ContentHash      string    `json:"content_hash"`
	Size             int64     `json:"size"`
	RefCount         int64     `json:"ref_count"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	UploadedAt       time.Time `json:"uploaded_at"`
	IsNew            *bool     `json:"is_new,omitempty"`
}

func fileResponse(record *dedupe.FileRecord, isNew *bool) FileResponse {
	return FileResponse{
		ID:               record.ID.String(),
		ContentHash:      record.ContentHash,
		Size:             record.Size,
		RefCount:         record.RefCount,
		OriginalFilename: record.OriginalFilename,
		ContentType:      record.ContentType,
		UploadedAt:       record.UploadedAt,
		IsNew:            isNew,
	}
}

// UploadFile handles POST /files: multipart upload with deduplication.
// Responds 201 when a new record was created, 200 when the content was
// already stored and a reference was attached.
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		slog.Error("Failed to parse multipart form", "error", err)
		http.Error(w, "invalid multipart request", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Missing file field", "error", err)
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if msg := h.validateUpload(header.Filename, header.Size); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	record, isNew, err := h.service.Upload(r.Context(), dedupe.UploadRequest{
		Content:     file,
		Filename:    header.Filename,
		ContentType: contentType,
	})
	if err != nil {
		h.renderError(w, "upload failed", err)
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	render.Status(r, status)
	render.JSON(w, r, fileResponse(record, &isNew))
}

func (h *FilesHandler) validateUpload(filename string, size int64) string {
	if filename == "" || len(filename) > maxFilenameLength {
		return fmt.Sprintf("filename must be 1-%d characters", maxFilenameLength)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" || !h.allowedExtensions[ext] {
		return fmt.Sprintf("file extension %q is not allowed", ext)
	}
	if size > h.maxUploadSize {
		return fmt.Sprintf("file exceeds maximum size of %d bytes", h.maxUploadSize)
	}
	return ""
}

// GetFile handles GET /files/{id}
func (h *FilesHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}

	record, err := h.service.GetRecord(r.Context(), id)
	if err != nil {
		h.renderError(w, "get file failed", err)
		return
	}

	render.JSON(w, r, fileResponse(record, nil))
}

// DeleteFile handles DELETE /files/{id}: detaches one reference and reports
// whether the record became fully deleted.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.renderError(w, "delete file failed", err)
		return
	}

	render.JSON(w, r, map[string]any{
		"id":            id.String(),
		"fully_deleted": deleted,
	})
}

// DownloadFile handles GET /files/{id}/download, streaming the stored bytes.
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}

	rc, record, err := h.service.Download(r.Context(), id)
	if err != nil {
		h.renderError(w, "download failed", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", record.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(record.Size, 10))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", record.OriginalFilename))
	if _, err := io.Copy(w, rc); err != nil {
		slog.Error("Failed streaming file", "record_id", id, "error", err)
	}
}

// SearchFiles handles GET /files with filter query parameters.
func (h *FilesHandler) SearchFiles(w http.ResponseWriter, r *http.Request) {
	filters, err := parseSearchFilters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Search(r.Context(), filters)
	if err != nil {
		h.renderError(w, "search failed", err)
		return
	}

	render.JSON(w, r, result)
}

// StorageSummary handles GET /files/storage-summary.
func (h *FilesHandler) StorageSummary(w http.ResponseWriter, r *http.Request) {
	useCache := r.URL.Query().Get("refresh") != "true"

	summary, err := h.service.StorageSummary(r.Context(), useCache)
	if err != nil {
		h.renderError(w, "storage summary failed", err)
		return
	}

	render.JSON(w, r, summary)
}

func (h *FilesHandler) recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid file id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// renderError maps service errors onto HTTP statuses.
func (h *FilesHandler) renderError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dedupe.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dedupe.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, dedupe.ErrIntegrity), errors.Is(err, dedupe.ErrConflictExhausted):
		status = http.StatusConflict
	}

	slog.Error(msg, "error", err, "status", status)
	http.Error(w, err.Error(), status)
}

func parseSearchFilters(r *http.Request) (dedupe.SearchFilters, error) {
	q := r.URL.Query()
	filters := dedupe.SearchFilters{
		Filename:  q.Get("filename"),
		Extension: q.Get("extension"),
	}

	var err error
	if filters.Page, err = intParam(q.Get("page")); err != nil {
		return filters, fmt.Errorf("invalid page: %w", err)
	}
	if filters.PageSize, err = intParam(q.Get("page_size")); err != nil {
		return filters, fmt.Errorf("invalid page_size: %w", err)
	}
	if filters.MinSize, err = int64Param(q.Get("min_size")); err != nil {
		return filters, fmt.Errorf("invalid min_size: %w", err)
	}
	if filters.MaxSize, err = int64Param(q.Get("max_size")); err != nil {
		return filters, fmt.Errorf("invalid max_size: %w", err)
	}
	if filters.StartDate, err = timeParam(q.Get("start_date")); err != nil {
		return filters, fmt.Errorf("invalid start_date: %w", err)
	}
	if filters.EndDate, err = timeParam(q.Get("end_date")); err != nil {
		return filters, fmt.Errorf("invalid end_date: %w", err)
	}

	return filters, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func int64Param(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func timeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// accept date-only values too
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}
