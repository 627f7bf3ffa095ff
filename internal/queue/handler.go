package queue

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

// Handler exposes GET/POST /queue.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers queue routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/queue", h.list)
	r.Post("/queue", h.action)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	snap, err := h.service.Snapshot(r.Context(), ListFilter{
		Status: Status(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, snap)
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.service.Dispatch(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("queue request", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
