package social

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

type route struct {
	method string
	action string
}

// actionFunc returns the status and payload of one action.
type actionFunc func(r *http.Request) (int, any, error)

// Handler serves /social?action=.
type Handler struct {
	logger  *slog.Logger
	service *Service
	routes  map[route]actionFunc
}

// NewHandler builds the handler and its action table.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	h := &Handler{logger: logger, service: service}
	h.routes = map[route]actionFunc{
		{http.MethodGet, "posts"}:     h.listPosts,
		{http.MethodGet, "post"}:      h.getPost,
		{http.MethodGet, "campaigns"}: h.listCampaigns,
		{http.MethodGet, "campaign"}:  h.getCampaign,
		{http.MethodGet, "contacts"}:  h.listContacts,
		{http.MethodGet, "stats"}:     h.stats,

		{http.MethodPost, "create_post"}:      h.createPost,
		{http.MethodPost, "schedule_post"}:    h.schedulePost,
		{http.MethodPost, "publish_post"}:     h.publishPost,
		{http.MethodPost, "generate_caption"}: h.generateCaption,
		{http.MethodPost, "create_campaign"}:  h.createCampaign,
		{http.MethodPost, "import_contacts"}:  h.importContacts,

		{http.MethodPut, "update_post"}:     h.updatePost,
		{http.MethodPut, "update_campaign"}: h.updateCampaign,

		{http.MethodDelete, "delete_post"}:     h.deletePost,
		{http.MethodDelete, "delete_campaign"}: h.deleteCampaign,
		{http.MethodDelete, "delete_contact"}:  h.deleteContact,
	}
	return h
}

// MountRoutes registers /social for every method in the table.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/social", h.dispatch)
	r.Post("/social", h.dispatch)
	r.Put("/social", h.dispatch)
	r.Delete("/social", h.dispatch)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	fn, ok := h.routes[route{r.Method, action}]
	if !ok {
		h.fail(w, httpx.WithCode(CodeUnknownAction, httpx.Invalid("unknown action %q for %s", action, r.Method)))
		return
	}
	status, data, err := fn(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.OK(w, status, data)
}

func (h *Handler) listPosts(r *http.Request) (int, any, error) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := PostFilter{Status: PostStatus(q.Get("status")), Platform: Platform(q.Get("platform")), Limit: limit}
	if raw := q.Get("campaign_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return 0, nil, httpx.Invalid("campaign_id must be a uuid")
		}
		filter.CampaignID = &id
	}
	posts, err := h.service.ListPosts(r.Context(), filter)
	return http.StatusOK, posts, err
}

func (h *Handler) getPost(r *http.Request) (int, any, error) {
	id, err := queryID(r)
	if err != nil {
		return 0, nil, err
	}
	post, err := h.service.GetPost(r.Context(), id)
	return http.StatusOK, post, err
}

func (h *Handler) listCampaigns(r *http.Request) (int, any, error) {
	campaigns, err := h.service.ListCampaigns(r.Context())
	return http.StatusOK, campaigns, err
}

func (h *Handler) getCampaign(r *http.Request) (int, any, error) {
	id, err := queryID(r)
	if err != nil {
		return 0, nil, err
	}
	c, err := h.service.GetCampaign(r.Context(), id)
	return http.StatusOK, c, err
}

func (h *Handler) listContacts(r *http.Request) (int, any, error) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	contacts, err := h.service.ListContacts(r.Context(), limit)
	return http.StatusOK, contacts, err
}

func (h *Handler) stats(r *http.Request) (int, any, error) {
	stats, err := h.service.Stats(r.Context())
	return http.StatusOK, stats, err
}

func (h *Handler) createPost(r *http.Request) (int, any, error) {
	var in CreatePostInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return 0, nil, err
	}
	post, err := h.service.CreatePost(r.Context(), in)
	return http.StatusCreated, post, err
}

func (h *Handler) schedulePost(r *http.Request) (int, any, error) {
	var in SchedulePostInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return 0, nil, err
	}
	post, err := h.service.SchedulePost(r.Context(), in)
	return http.StatusOK, post, err
}

func (h *Handler) publishPost(r *http.Request) (int, any, error) {
	var in IDInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return 0, nil, err
	}
	if in.ID == uuid.Nil {
		return 0, nil, httpx.Invalid("field %q failed %q", "id", "required")
	}
	post, err := h.service.PublishPost(r.Context(), in.ID)
	return http.StatusOK, post, err
}

func (h *Handler) generateCaption(r *http.Request) (int, any, error) {
	var in CaptionRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return 0, nil, err
	}
	caption, err := h.service.GenerateCaption(r.Context(), in)
	return http.StatusOK, caption, err
}

func (h *Handler) createCampaign(r *http.Request) (int, any, error) {
	var in CampaignInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return 0, nil, err
	}
	c, err := h.service.CreateCampaign(r.Context(), in)
	return http.StatusCreated, c, err
}

func (h *Handler) importContacts(r *http.Request) (int, any, error) {
	var in ImportContactsInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return 0, nil, err
	}
	result, err := h.service.ImportContacts(r.Context(), in)
	return http.StatusOK, result, err
}

func (h *Handler) updatePost(r *http.Request) (int, any, error) {
	var in UpdatePostInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return 0, nil, err
	}
	post, err := h.service.UpdatePost(r.Context(), in)
	return http.StatusOK, post, err
}

func (h *Handler) updateCampaign(r *http.Request) (int, any, error) {
	var in UpdateCampaignInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return 0, nil, err
	}
	c, err := h.service.UpdateCampaign(r.Context(), in)
	return http.StatusOK, c, err
}

func (h *Handler) deletePost(r *http.Request) (int, any, error) {
	return h.delete(r, h.service.DeletePost)
}

func (h *Handler) deleteCampaign(r *http.Request) (int, any, error) {
	return h.delete(r, h.service.DeleteCampaign)
}

func (h *Handler) deleteContact(r *http.Request) (int, any, error) {
	return h.delete(r, h.service.DeleteContact)
}

func (h *Handler) delete(r *http.Request, fn func(ctx context.Context, id uuid.UUID) error) (int, any, error) {
	id, err := queryID(r)
	if err != nil {
		return 0, nil, err
	}
	if err := fn(r.Context(), id); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]string{"deleted": id.String()}, nil
}

func queryID(r *http.Request) (uuid.UUID, error) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		return uuid.Nil, httpx.Invalid("id query parameter is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, httpx.Invalid("id must be a uuid")
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("social request", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
