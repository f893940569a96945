package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/parser"
	importservice "github.com/FACorreiaa/statement-ledger/internal/domain/import/service"
	"github.com/FACorreiaa/statement-ledger/pkg/httpx"
)

// DefaultMaxUploadBytes bounds a statement upload.
const DefaultMaxUploadBytes int64 = 10 << 20

// Importer is implemented by *importservice.ImportService.
type Importer interface {
	Preview(ctx context.Context, filename string, data []byte) (*importservice.PreviewResult, error)
	SaveReviewed(ctx context.Context, previews []importservice.Preview) (*importservice.Summary, error)
	Import(ctx context.Context, filename string, data []byte) (*importservice.Summary, error)
}

// ImportHandler serves statement uploads
type ImportHandler struct {
	importer       Importer
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewImportHandler creates a new import handler. maxUploadBytes <= 0 uses the default.
func NewImportHandler(importer Importer, maxUploadBytes int64, logger *slog.Logger) *ImportHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &ImportHandler{importer: importer, maxUploadBytes: maxUploadBytes, logger: logger}
}

// Register mounts the handler routes on mux.
func (h *ImportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/import", h.Import)
	mux.HandleFunc("POST /api/import/preview", h.Preview)
	mux.HandleFunc("POST /api/import/save", h.Save)
}

// Preview categorizes an uploaded file for review.
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	filename, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.importer.Preview(r.Context(), filename, data)
	if err != nil {
		h.writeImportError(w, "failed to preview statement", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

type saveRequest struct {
	Previews []importservice.Preview `json:"previews"`
}

// Save persists reviewed previews.
func (h *ImportHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Previews) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "no transactions to save")
		return
	}

	summary, err := h.importer.SaveReviewed(r.Context(), req.Previews)
	if err != nil {
		h.logger.Error("failed to save reviewed statement", slog.Any("error", err))
		httpx.WriteError(w, http.StatusInternalServerError, "failed to save transactions")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

// Import categorizes and saves an upload in one request.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	filename, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	summary, err := h.importer.Import(r.Context(), filename, data)
	if err != nil {
		h.writeImportError(w, "failed to import statement", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

// readUpload extracts the "file" part of a multipart form.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if r.ContentLength > h.maxUploadBytes {
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "file is too large")
		return "", nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "file is too large")
			return "", nil, false
		}
		httpx.WriteError(w, http.StatusBadRequest, "expected a multipart form")
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "no file uploaded")
		return "", nil, false
	}
	defer file.Close()

	if _, err := parser.DetectFileType(header.Filename); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return "", nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read uploaded file")
		return "", nil, false
	}
	return header.Filename, data, true
}

func (h *ImportHandler) writeImportError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, parser.ErrUnsupportedFileType):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, parser.ErrEmptyFile), errors.Is(err, parser.ErrUnreadableFile):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled):
		h.logger.Warn(msg, slog.Any("error", err))
		httpx.WriteError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.logger.Error(msg, slog.Any("error", err))
		httpx.WriteError(w, http.StatusInternalServerError, msg)
	}
}
