package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/linkfeed/internal/feed"
	"github.com/nhle/linkfeed/internal/model"
	"github.com/nhle/linkfeed/internal/poller"
	"github.com/nhle/linkfeed/internal/testutil"
)

// stubPreviewer previews every URL except those under none.example.com.
type stubPreviewer struct{}

func (stubPreviewer) Resolve(_ context.Context, rawURL string) *model.LinkPreview {
	if rawURL == "https://none.example.com/" {
		return nil
	}
	return &model.LinkPreview{Title: "Preview", SiteName: "Example", Platform: model.PlatformArticle}
}

type stubPoller struct {
	triggered int
}

func (p *stubPoller) Status() poller.Status {
	return poller.Status{State: "idle", Cycles: 3, Processed: 7}
}

func (p *stubPoller) Trigger() { p.triggered++ }

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("database is down") }

// setupTestRouter builds a router over an in-memory store seeded with records.
func setupTestRouter(t *testing.T, pl PollerControl) http.Handler {
	t.Helper()

	s := testutil.NewTestStore(t)
	base := time.Date(2025, 10, 14, 7, 30, 0, 0, time.UTC)
	for i, r := range []model.FeedLinkRecord{
		{SenderEmail: "jane@x.com", CoreLink: "https://news.example.com/story?utm=1"},
		{SenderEmail: "jane@x.com", CoreLink: "https://none.example.com/"},
		{SenderEmail: "bob@x.com", CoreLink: "https://bob.example.com/post"},
	} {
		r.ReceivedAt = base.Add(time.Duration(i) * time.Hour)
		_, err := s.InsertIfAbsent(context.Background(), r)
		require.NoError(t, err)
	}

	logger := zaptest.NewLogger(t)
	return NewRouter(Deps{
		Feed:     feed.NewService(s, stubPreviewer{}, 0, logger),
		Previews: stubPreviewer{},
		Store:    s,
		Poller:   pl,
		Logger:   logger,
	})
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListFeed(t *testing.T) {
	h := setupTestRouter(t, nil)

	rec := get(t, h, "/api/feed?senders=jane@x.com,bob@x.com&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var page feed.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.True(t, page.HasMore)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "https://bob.example.com/post", page.Items[0].CoreLink)
	require.NotNil(t, page.Items[0].Preview)
	assert.Equal(t, "Preview", page.Items[0].Preview.Title)
	assert.Nil(t, page.Items[1].Preview, "missing preview renders as null")
}

func TestListFeed_EmailFilter(t *testing.T) {
	h := setupTestRouter(t, nil)

	rec := get(t, h, "/api/feed?email=jane@x.com&page=1&limit=20")
	require.Equal(t, http.StatusOK, rec.Code)

	var page feed.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Total)
	assert.False(t, page.HasMore)
	for _, item := range page.Items {
		assert.Equal(t, "jane@x.com", item.SenderEmail)
	}
}

func TestListFeed_InvalidParams(t *testing.T) {
	h := setupTestRouter(t, nil)

	for _, target := range []string{
		"/api/feed?limit=0",
		"/api/feed?limit=101",
		"/api/feed?page=0",
		"/api/feed?page=abc",
	} {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "error", target)
	}
}

func TestPreview(t *testing.T) {
	h := setupTestRouter(t, nil)

	rec := get(t, h, "/api/preview?url=https://news.example.com/story")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Preview"`)

	rec = get(t, h, "/api/preview?url=https://none.example.com/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"preview":null`)

	rec = get(t, h, "/api/preview")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	pl := &stubPoller{}
	h := setupTestRouter(t, pl)

	rec := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.NotNil(t, body.Poller)
	assert.EqualValues(t, 7, body.Poller.Processed)
}

func TestHealth_StoreDown(t *testing.T) {
	h := NewRouter(Deps{Store: downStore{}, Logger: zaptest.NewLogger(t)})

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is down")
	assert.NotContains(t, rec.Body.String(), "poller")
}

func TestTriggerPoll(t *testing.T) {
	pl := &stubPoller{}
	h := setupTestRouter(t, pl)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/poll", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, pl.triggered)

	h = setupTestRouter(t, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/poll", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupTestRouter(t, nil)

	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a, b", " c ", ""}))
	assert.Nil(t, splitList(nil))
}
