package sourcing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
	"github.com/dropship-ops/opsdash/internal/shared"
)

const idempotencyModule = "sourcing.run"

// Handler exposes sourcing endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency shared.Idempotency
}

// NewHandler builds the handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency shared.Idempotency) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency}
}

// MountRoutes registers sourcing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sourcing", func(r chi.Router) {
		r.Get("/criteria", h.getCriteria)
		r.Put("/criteria", h.putCriteria)
		r.Get("/schedule", h.getSchedule)
		r.Put("/schedule", h.putSchedule)
		r.Post("/preview", h.preview)
		r.Post("/runs", h.startRun)
		r.Get("/runs", h.listRuns)
		r.Get("/runs/{id}", h.getRun)
	})
}

func (h *Handler) getCriteria(w http.ResponseWriter, r *http.Request) {
	criteria, err := h.service.Criteria(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, criteria)
}

func (h *Handler) putCriteria(w http.ResponseWriter, r *http.Request) {
	var criteria FilterCriteria
	if err := httpx.DecodeJSON(r, &criteria); err != nil {
		h.fail(w, err)
		return
	}
	saved, err := h.service.SaveCriteria(r.Context(), criteria)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, saved)
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.service.Schedule(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, schedule)
}

type scheduleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) putSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if req.Enabled == nil {
		h.fail(w, httpx.Invalid("field %q failed %q", "enabled", "required"))
		return
	}
	schedule, err := h.service.SetSchedule(r.Context(), *req.Enabled)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, schedule)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var override *FilterCriteria
	if r.ContentLength != 0 {
		var criteria FilterCriteria
		if err := httpx.DecodeJSON(r, &criteria); err != nil {
			h.fail(w, err)
			return
		}
		override = &criteria
	}
	preview, err := h.service.Preview(r.Context(), override)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, preview)
}

func (h *Handler) startRun(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(shared.IdempotencyHeader)
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			h.fail(w, err)
			return
		}
	}
	result, err := h.service.Run(r.Context(), TriggerManual)
	if err != nil {
		if key != "" && h.idempotency != nil && result.Run.ID == uuid.Nil {
			// Nothing was recorded; allow the client to retry with the same key.
			if delErr := h.idempotency.Delete(context.WithoutCancel(r.Context()), key, idempotencyModule); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, result)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.service.ListRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, runs)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, httpx.Invalid("invalid run id"))
		return
	}
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, run)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError && !errors.Is(err, ErrSearchFailed) {
		h.logger.Error("sourcing request", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
