package queue

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
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
	"github.com/dropship-ops/opsdash/internal/platform/throttle"
	"github.com/dropship-ops/opsdash/internal/shopify"
)

type memoryRepo struct {
	mu     sync.Mutex
	items  map[int64]*Item
	titles map[int64]string
	state  State
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[int64]*Item{}, titles: map[int64]string{}}
}

func (r *memoryRepo) add(asin string, status Status) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.items[r.nextID] = &Item{ID: r.nextID, ProductID: r.nextID * 10, ASIN: asin, Operation: OperationCreate, Status: status, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.titles[r.nextID] = "Product " + asin
	return r.nextID
}

func (r *memoryRepo) sorted() []*Item {
	out := make([]*Item, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) List(_ context.Context, f ListFilter) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Item{}
	for _, it := range r.sorted() {
		if f.Status == "" || it.Status == f.Status {
			out = append(out, *it)
		}
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memoryRepo) Stats(context.Context) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s Stats
	for _, it := range r.items {
		switch it.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusSynced:
			s.Synced++
		case StatusFailed:
			s.Failed++
		}
		s.Total++
	}
	return s, nil
}

func (r *memoryRepo) State(context.Context) (State, error) { return r.state, nil }

func (r *memoryRepo) SetPaused(_ context.Context, paused bool) (State, error) {
	r.state = State{Paused: paused, UpdatedAt: time.Now()}
	return r.state, nil
}

func (r *memoryRepo) update(ids []int64, match func(*Item) bool, apply func(*Item)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.sorted() {
		if ids != nil && !contains(ids, it.ID) {
			continue
		}
		if match(it) {
			apply(it)
			n++
		}
	}
	return n
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (r *memoryRepo) Retry(_ context.Context, ids []int64) (int, error) {
	return r.update(ids, func(it *Item) bool { return it.Status == StatusFailed }, func(it *Item) { it.Status, it.LastError = StatusPending, "" }), nil
}

func (r *memoryRepo) RetryFailed(context.Context) (int, error) {
	return r.Retry(context.Background(), nil)
}

func (r *memoryRepo) Remove(_ context.Context, ids []int64) (int, error) {
	n := r.update(ids, func(it *Item) bool { return it.Status != StatusProcessing }, func(it *Item) { it.Status = "deleted" })
	r.purge()
	return n, nil
}

func (r *memoryRepo) ClearSynced(context.Context) (int, error) {
	n := r.update(nil, func(it *Item) bool { return it.Status == StatusSynced }, func(it *Item) { it.Status = "deleted" })
	r.purge()
	return n, nil
}

func (r *memoryRepo) purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, it := range r.items {
		if it.Status == "deleted" {
			delete(r.items, id)
		}
	}
}

func (r *memoryRepo) ReclaimStale(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	return r.update(nil, func(it *Item) bool {
		return it.Status == StatusProcessing && it.UpdatedAt.Before(cutoff)
	}, func(it *Item) {
		it.Status, it.LastError, it.UpdatedAt = StatusPending, ErrStaleProcessing.Error(), time.Now()
	}), nil
}

func (r *memoryRepo) Claim(_ context.Context, limit int) ([]Claimed, error) {
	if r.state.Paused {
		return nil, ErrPaused
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Claimed
	for _, it := range r.sorted() {
		if len(out) == limit {
			break
		}
		if it.Status != StatusPending {
			continue
		}
		it.Status = StatusProcessing
		it.Attempts++
		it.UpdatedAt = time.Now()
		out = append(out, Claimed{ItemID: it.ID, ProductID: it.ProductID, ASIN: it.ASIN, Operation: it.Operation, Title: r.titles[it.ID], SellPrice: decimal.RequireFromString("16.983")})
	}
	return out, nil
}

func (r *memoryRepo) MarkSynced(_ context.Context, id, shopifyID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id].Status = StatusSynced
	r.items[id].ShopifyProductID = &shopifyID
	return nil
}

func (r *memoryRepo) MarkFailed(_ context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id].Status = StatusFailed
	r.items[id].LastError = reason
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	fail   map[string]bool
	inputs []shopify.ProductInput
}

func (p *fakePublisher) CreateProduct(_ context.Context, in shopify.ProductInput) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, in)
	if p.fail[in.Variants[0].SKU] {
		return 0, errors.New("shopify: unexpected status 422")
	}
	return int64(1000 + len(p.inputs)), nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestService(repo *memoryRepo, pub Publisher) *Service {
	return NewService(repo, pub, throttle.NewPacer(time.Millisecond), 10, quietLogger())
}

func TestProcessPartialFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.add("B0Q0000001", StatusPending)
	failing := repo.add("B0Q0000002", StatusPending)
	repo.add("B0Q0000003", StatusPending)
	repo.add("B0Q0000004", StatusSynced)
	pub := &fakePublisher{fail: map[string]bool{"B0Q0000002": true}}

	summary, err := newTestService(repo, pub).Process(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Claimed)
	assert.Equal(t, 2, summary.Synced)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, StatusFailed, repo.items[failing].Status)
	assert.Contains(t, repo.items[failing].LastError, "422")
	assert.Equal(t, 1, repo.items[failing].Attempts)

	require.Len(t, pub.inputs, 3)
	assert.Equal(t, "16.98", pub.inputs[0].Variants[0].Price)
	assert.Equal(t, "draft", pub.inputs[0].Status)
}

func TestProcessRespectsLimitAndPause(t *testing.T) {
	repo := newMemoryRepo()
	for i := 0; i < 4; i++ {
		repo.add("B0LIMIT00"+string(rune('0'+i)), StatusPending)
	}
	svc := newTestService(repo, &fakePublisher{})

	summary, err := svc.Process(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Claimed)

	_, err = svc.Dispatch(context.Background(), ActionRequest{Action: "pause"})
	require.NoError(t, err)
	_, err = svc.Process(context.Background(), 0)
	require.ErrorIs(t, err, ErrPaused)
	var coded *httpx.CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, CodePaused, coded.Code)
}

func TestProcessReclaimsStalledItems(t *testing.T) {
	repo := newMemoryRepo()
	stalled := repo.add("B0STALE001", StatusProcessing)
	repo.items[stalled].UpdatedAt = time.Now().Add(-2 * time.Hour)
	inFlight := repo.add("B0STALE002", StatusProcessing)
	pub := &fakePublisher{}

	summary, err := newTestService(repo, pub).Process(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Claimed)
	assert.Equal(t, 1, summary.Synced)
	assert.Equal(t, StatusSynced, repo.items[stalled].Status)
	assert.Equal(t, StatusProcessing, repo.items[inFlight].Status)
}

func TestRetryFailedReclaimsStalledItems(t *testing.T) {
	repo := newMemoryRepo()
	repo.add("B0STALE003", StatusFailed)
	stalled := repo.add("B0STALE004", StatusProcessing)
	repo.items[stalled].UpdatedAt = time.Now().Add(-time.Hour)
	inFlight := repo.add("B0STALE005", StatusProcessing)

	res, err := newTestService(repo, &fakePublisher{}).Dispatch(context.Background(), ActionRequest{Action: "retry_failed"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Affected)
	assert.Equal(t, StatusPending, repo.items[stalled].Status)
	assert.Equal(t, ErrStaleProcessing.Error(), repo.items[stalled].LastError)
	assert.Equal(t, StatusProcessing, repo.items[inFlight].Status)
}

func TestProcessWithoutPublisher(t *testing.T) {
	_, err := newTestService(newMemoryRepo(), nil).Process(context.Background(), 0)
	assert.ErrorIs(t, err, ErrPublisherMissing)
}

func TestDispatchActions(t *testing.T) {
	repo := newMemoryRepo()
	failed := repo.add("B0A0000001", StatusFailed)
	repo.add("B0A0000002", StatusFailed)
	synced := repo.add("B0A0000003", StatusSynced)
	svc := newTestService(repo, &fakePublisher{})
	ctx := context.Background()

	res, err := svc.Dispatch(ctx, ActionRequest{Action: "retry", IDs: []int64{failed}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)
	assert.Equal(t, StatusPending, repo.items[failed].Status)

	res, err = svc.Dispatch(ctx, ActionRequest{Action: "retry_failed"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)

	res, err = svc.Dispatch(ctx, ActionRequest{Action: "clear_synced"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)
	assert.NotContains(t, repo.items, synced)

	res, err = svc.Dispatch(ctx, ActionRequest{Action: "remove", IDs: []int64{failed}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)

	_, err = svc.Dispatch(ctx, ActionRequest{Action: "remove"})
	var coded *httpx.CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, CodeIDsRequired, coded.Code)

	res, err = svc.Dispatch(ctx, ActionRequest{Action: "pause"})
	require.NoError(t, err)
	assert.True(t, res.Paused)
	res, err = svc.Dispatch(ctx, ActionRequest{Action: "resume"})
	require.NoError(t, err)
	assert.False(t, res.Paused)

	assert.Equal(t, []string{"clear_synced", "pause", "process", "remove", "resume", "retry", "retry_failed"}, svc.Actions())
}

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	NewHandler(quietLogger(), svc).MountRoutes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, httpx.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env httpx.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestHandlerCodes(t *testing.T) {
	repo := newMemoryRepo()
	repo.add("B0H0000001", StatusPending)
	h := newTestRouter(newTestService(repo, &fakePublisher{}))

	rec, env := doJSON(t, h, http.MethodPost, "/queue", `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeUnknownAction, env.Code)
	assert.False(t, env.Success)

	rec, _ = doJSON(t, h, http.MethodPost, "/queue", `{"action":"pause"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = doJSON(t, h, http.MethodPost, "/queue", `{"action":"process"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodePaused, env.Code)

	rec, env = doJSON(t, h, http.MethodGet, "/queue?status=pending", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, true, data["paused"])
	assert.Len(t, data["items"], 1)

	rec, _ = doJSON(t, h, http.MethodGet, "/queue?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/queue", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
