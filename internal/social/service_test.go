package social

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

type memoryRepo struct {
	mu        sync.Mutex
	posts     map[uuid.UUID]Post
	campaigns map[uuid.UUID]Campaign
	contacts  map[uuid.UUID]Contact
	failEmail string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		posts:     map[uuid.UUID]Post{},
		campaigns: map[uuid.UUID]Campaign{},
		contacts:  map[uuid.UUID]Contact{},
	}
}

func (r *memoryRepo) ListPosts(_ context.Context, f PostFilter) ([]Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Post{}
	for _, p := range r.posts {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Platform != "" && p.Platform != f.Platform {
			continue
		}
		if f.CampaignID != nil && (p.CampaignID == nil || *p.CampaignID != *f.CampaignID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memoryRepo) GetPost(_ context.Context, id uuid.UUID) (Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return Post{}, ErrPostNotFound
	}
	return p, nil
}

func (r *memoryRepo) InsertPost(_ context.Context, p Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[p.ID] = p
	return nil
}

func (r *memoryRepo) UpdatePost(_ context.Context, p Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[p.ID]; !ok {
		return ErrPostNotFound
	}
	r.posts[p.ID] = p
	return nil
}

func (r *memoryRepo) DeletePost(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[id]; !ok {
		return ErrPostNotFound
	}
	delete(r.posts, id)
	return nil
}

func (r *memoryRepo) ListCampaigns(context.Context) ([]Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Campaign{}
	for _, c := range r.campaigns {
		c.PostCount = r.postCount(c.ID)
		out = append(out, c)
	}
	return out, nil
}

// postCount derives the count the way the SQL subquery does; stored rows
// never carry it.
func (r *memoryRepo) postCount(id uuid.UUID) int {
	n := 0
	for _, p := range r.posts {
		if p.CampaignID != nil && *p.CampaignID == id {
			n++
		}
	}
	return n
}

func (r *memoryRepo) GetCampaign(_ context.Context, id uuid.UUID) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return Campaign{}, ErrCampaignNotFound
	}
	c.PostCount = r.postCount(id)
	return c, nil
}

func (r *memoryRepo) InsertCampaign(_ context.Context, c Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
	return nil
}

func (r *memoryRepo) UpdateCampaign(_ context.Context, c Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[c.ID]; !ok {
		return ErrCampaignNotFound
	}
	r.campaigns[c.ID] = c
	return nil
}

func (r *memoryRepo) DeleteCampaign(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[id]; !ok {
		return ErrCampaignNotFound
	}
	delete(r.campaigns, id)
	return nil
}

func (r *memoryRepo) ListContacts(_ context.Context, limit int) ([]Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Contact{}
	for _, c := range r.contacts {
		out = append(out, c)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) InsertContact(_ context.Context, c Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Email == r.failEmail {
		return errors.New("connection reset")
	}
	for _, existing := range r.contacts {
		if existing.Email == c.Email {
			return ErrDuplicateContact
		}
	}
	r.contacts[c.ID] = c
	return nil
}

func (r *memoryRepo) DeleteContact(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contacts[id]; !ok {
		return ErrContactNotFound
	}
	delete(r.contacts, id)
	return nil
}

func (r *memoryRepo) Stats(context.Context) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Posts: map[PostStatus]int{}}
	for _, p := range r.posts {
		s.Posts[p.Status]++
		s.TotalPosts++
	}
	for _, c := range r.campaigns {
		s.Campaigns++
		if c.Status == CampaignActive {
			s.ActiveCampaigns++
		}
	}
	s.Contacts = len(r.contacts)
	return s, nil
}

type fakePublisher struct {
	err   error
	calls int
}

func (p *fakePublisher) Publish(_ context.Context, post Post) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return "ext-" + string(post.Platform), nil
}

type fakeCopywriter struct {
	got CaptionRequest
}

func (c *fakeCopywriter) Caption(_ context.Context, req CaptionRequest) (string, error) {
	c.got = req
	return "Meet " + req.ProductTitle + " #deals", nil
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo Repository, pub Publisher, cw Copywriter) *Service {
	svc := NewService(repo, pub, cw, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestCreatePostDraftAndScheduled(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakePublisher{}, nil)
	ctx := context.Background()

	draft, err := svc.CreatePost(ctx, CreatePostInput{Platform: PlatformInstagram, Content: "New arrivals"})
	require.NoError(t, err)
	assert.Equal(t, PostDraft, draft.Status)
	assert.Nil(t, draft.ScheduledAt)

	at := fixedNow.Add(2 * time.Hour)
	scheduled, err := svc.CreatePost(ctx, CreatePostInput{Platform: PlatformTwitter, Content: "Soon", ScheduledAt: &at})
	require.NoError(t, err)
	assert.Equal(t, PostScheduled, scheduled.Status)
	require.NotNil(t, scheduled.ScheduledAt)
	assert.True(t, scheduled.ScheduledAt.Equal(at))

	past := fixedNow.Add(-time.Minute)
	_, err = svc.CreatePost(ctx, CreatePostInput{Platform: PlatformTwitter, Content: "Late", ScheduledAt: &past})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.CreatePost(ctx, CreatePostInput{Platform: "myspace", Content: "x"})
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), `field "platform" failed "oneof"`)
}

func TestCreatePostUnknownCampaign(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakePublisher{}, nil)
	missing := uuid.New()
	_, err := svc.CreatePost(context.Background(), CreatePostInput{CampaignID: &missing, Platform: PlatformFacebook, Content: "x"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestPublishPost(t *testing.T) {
	repo := newMemoryRepo()
	pub := &fakePublisher{}
	svc := newTestService(repo, pub, nil)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, CreatePostInput{Platform: PlatformFacebook, Content: "Hello"})
	require.NoError(t, err)

	published, err := svc.PublishPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, PostPublished, published.Status)
	assert.Equal(t, "ext-facebook", published.ExternalID)
	require.NotNil(t, published.PublishedAt)

	_, err = svc.PublishPost(ctx, post.ID)
	assert.ErrorIs(t, err, ErrAlreadyPublished)
	assert.Equal(t, 1, pub.calls)

	_, err = svc.UpdatePost(ctx, UpdatePostInput{ID: post.ID, Content: ptr("edited")})
	assert.ErrorIs(t, err, ErrAlreadyPublished)
}

func TestPublishPostFailureIsRecorded(t *testing.T) {
	repo := newMemoryRepo()
	pub := &fakePublisher{err: errors.New("webhook:facebook: unexpected status 502")}
	svc := newTestService(repo, pub, nil)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, CreatePostInput{Platform: PlatformFacebook, Content: "Hello"})
	require.NoError(t, err)

	_, err = svc.PublishPost(ctx, post.ID)
	require.Error(t, err)

	stored, err := repo.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, PostFailed, stored.Status)
	assert.Contains(t, stored.LastError, "502")
}

func TestPublishPostMissingEndpointLeavesPostUntouched(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, NewWebhookPublisher(nil, time.Second), nil)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, CreatePostInput{Platform: PlatformTikTok, Content: "Hello"})
	require.NoError(t, err)

	_, err = svc.PublishPost(ctx, post.ID)
	require.ErrorIs(t, err, httpx.ErrValidation)

	stored, err := repo.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, PostDraft, stored.Status)
}

func TestSchedulePost(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakePublisher{}, nil)
	ctx := context.Background()
	post, err := svc.CreatePost(ctx, CreatePostInput{Platform: PlatformLinkedIn, Content: "Hi"})
	require.NoError(t, err)

	_, err = svc.SchedulePost(ctx, SchedulePostInput{ID: post.ID, ScheduledAt: fixedNow})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	scheduled, err := svc.SchedulePost(ctx, SchedulePostInput{ID: post.ID, ScheduledAt: fixedNow.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, PostScheduled, scheduled.Status)

	_, err = svc.SchedulePost(ctx, SchedulePostInput{ID: uuid.New(), ScheduledAt: fixedNow.Add(time.Hour)})
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestCampaignLifecycle(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakePublisher{}, nil)
	ctx := context.Background()

	starts := fixedNow
	ends := fixedNow.Add(-time.Hour)
	_, err := svc.CreateCampaign(ctx, CampaignInput{Name: "Spring", StartsAt: &starts, EndsAt: &ends})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	c, err := svc.CreateCampaign(ctx, CampaignInput{Name: "  Spring  "})
	require.NoError(t, err)
	assert.Equal(t, "Spring", c.Name)
	assert.Equal(t, CampaignDraft, c.Status)

	_, err = svc.CreatePost(ctx, CreatePostInput{CampaignID: &c.ID, Platform: PlatformPinterest, Content: "Pin"})
	require.NoError(t, err)

	active := CampaignActive
	updated, err := svc.UpdateCampaign(ctx, UpdateCampaignInput{ID: c.ID, Status: &active})
	require.NoError(t, err)
	assert.Equal(t, CampaignActive, updated.Status)

	got, err := svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PostCount)

	renamed := "Spring sale"
	_, err = svc.UpdateCampaign(ctx, UpdateCampaignInput{ID: c.ID, Name: &renamed})
	require.NoError(t, err)
	got, err = svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PostCount)
	assert.Equal(t, "Spring sale", got.Name)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveCampaigns)
	assert.Equal(t, 1, stats.Posts[PostDraft])

	require.NoError(t, svc.DeleteCampaign(ctx, c.ID))
	assert.ErrorIs(t, svc.DeleteCampaign(ctx, c.ID), httpx.ErrNotFound)
}

func TestImportContactsContinuesPastBadRows(t *testing.T) {
	repo := newMemoryRepo()
	repo.failEmail = "broken@example.com"
	svc := newTestService(repo, &fakePublisher{}, nil)
	ctx := context.Background()

	_, err := svc.ImportContacts(ctx, ImportContactsInput{Contacts: []ContactInput{{Email: "existing@example.com"}}})
	require.NoError(t, err)

	result, err := svc.ImportContacts(ctx, ImportContactsInput{Contacts: []ContactInput{
		{Email: "Ada@Example.com", Name: "Ada", Handle: "@ada"},
		{Email: "not-an-email"},
		{Email: "ada@example.com"},
		{Email: "existing@example.com"},
		{Email: "broken@example.com"},
		{Email: "grace@example.com", Tags: []string{"vip"}},
	}})
	require.NoError(t, err)

	assert.Equal(t, 6, result.Total)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Duplicates)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Results, 6)
	assert.True(t, result.Results[0].Imported)
	assert.Equal(t, "ada@example.com", result.Results[0].Email)
	assert.Contains(t, result.Results[1].Error, `field "email" failed "email"`)
	assert.True(t, result.Results[2].Duplicate)
	assert.True(t, result.Results[3].Duplicate)
	assert.NotEmpty(t, result.Results[4].Error)
	assert.True(t, result.Results[5].Imported)

	contacts, err := svc.ListContacts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, contacts, 3)
	for _, c := range contacts {
		if c.Email == "ada@example.com" {
			assert.Equal(t, "ada", c.Handle)
		}
	}

	_, err = svc.ImportContacts(ctx, ImportContactsInput{})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestGenerateCaption(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakePublisher{}, nil)
	_, err := svc.GenerateCaption(context.Background(), CaptionRequest{ProductTitle: "Desk Lamp"})
	require.ErrorIs(t, err, ErrCopywriterMissing)
	assert.Equal(t, http.StatusInternalServerError, httpx.StatusFor(err))

	cw := &fakeCopywriter{}
	svc = newTestService(newMemoryRepo(), &fakePublisher{}, cw)
	caption, err := svc.GenerateCaption(context.Background(), CaptionRequest{ProductTitle: "Desk Lamp", Tone: "playful", Platform: PlatformInstagram})
	require.NoError(t, err)
	assert.Equal(t, "Meet Desk Lamp #deals", caption.Text)
	assert.Equal(t, PlatformInstagram, caption.Platform)
	assert.Equal(t, "playful", cw.got.Tone)

	_, err = svc.GenerateCaption(context.Background(), CaptionRequest{})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func ptr[T any](v T) *T { return &v }

func serve(t *testing.T, h *Handler, method, target, body string) (int, httpx.Envelope) {
	t.Helper()
	r := chi.NewRouter()
	h.MountRoutes(r)
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	var env httpx.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHandlerActionTable(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakePublisher{}, nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

	code, env := serve(t, h, http.MethodGet, "/social?action=bogus", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, CodeUnknownAction, env.Code)

	// A known action under the wrong method is still unknown.
	code, env = serve(t, h, http.MethodGet, "/social?action=create_post", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, CodeUnknownAction, env.Code)

	code, env = serve(t, h, http.MethodPost, "/social?action=create_post", `{"platform":"facebook","content":"Hello"}`)
	require.Equal(t, http.StatusCreated, code)
	require.True(t, env.Success)
	id := env.Data.(map[string]any)["id"].(string)

	code, env = serve(t, h, http.MethodGet, "/social?action=post&id="+id, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "draft", env.Data.(map[string]any)["status"])

	code, _ = serve(t, h, http.MethodPost, "/social?action=publish_post", `{"id":"`+id+`"}`)
	assert.Equal(t, http.StatusOK, code)

	code, env = serve(t, h, http.MethodGet, "/social?action=posts&status=published", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, env.Data.([]any), 1)

	code, _ = serve(t, h, http.MethodGet, "/social?action=post&id=nope", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = serve(t, h, http.MethodDelete, "/social?action=delete_post&id="+id, "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = serve(t, h, http.MethodDelete, "/social?action=delete_post&id="+id, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, env = serve(t, h, http.MethodPost, "/social?action=generate_caption", `{"product_title":"Lamp"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, env.Error, "GENAI_API_KEY")

	code, env = serve(t, h, http.MethodGet, "/social?action=stats", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, env.Data.(map[string]any)["total_posts"])
}
