package bulkimport

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

const maxUpload = 10 << 20

// Handler exposes the CSV import endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers bulk import routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products/import/preview", h.preview)
	r.Post("/products/import", h.importFile)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	body, closeFn, err := h.upload(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defer closeFn()
	preview, err := h.service.Preview(body)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, preview)
}

func (h *Handler) importFile(w http.ResponseWriter, r *http.Request) {
	body, closeFn, err := h.upload(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defer closeFn()

	var mapping Mapping
	if raw := r.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			httpx.RespondError(w, httpx.Invalid("mapping must be a JSON object of field to column"))
			return
		}
	}
	queueSync := true
	if raw := r.FormValue("queue_sync"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, httpx.Invalid("queue_sync must be a boolean"))
			return
		}
		queueSync = v
	}

	result, err := h.service.Import(r.Context(), body, mapping, queueSync)
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("bulk import", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

// upload returns the CSV payload from a multipart "file" part or the raw body.
func (h *Handler) upload(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.LimitReader(r.Body, maxUpload), func() {}, nil
	}
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return nil, nil, httpx.Invalid("parse upload: %s", err.Error())
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, httpx.Invalid("field %q failed %q", "file", "required")
	}
	return file, func() { _ = file.Close() }, nil
}
