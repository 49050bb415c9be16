package acquisition

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosport/venue-signal/internal/metrics"
	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/internal/resilience"
)

type failingSource struct{ err error }

func (f failingSource) Recent(context.Context, string, int) ([]model.RawSignal, error) {
	return nil, f.err
}

type slowSource struct{}

func (slowSource) Recent(ctx context.Context, _ string, _ int) ([]model.RawSignal, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAcquirer_OrdersAndTruncates(t *testing.T) {
	base := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	src := Static{
		"v1": {
			{ID: "old", CapturedAt: base},
			{ID: "newest", CapturedAt: base.Add(2 * time.Hour)},
			{ID: "mid", CapturedAt: base.Add(time.Hour)},
		},
	}
	a := NewAcquirer(src, time.Second, nil)

	got := a.FetchRecent(context.Background(), "v1", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "newest", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)

	assert.Empty(t, a.FetchRecent(context.Background(), "unknown", 3))
	assert.Empty(t, a.FetchRecent(context.Background(), "v1", 0))
}

func TestAcquirer_FailureIsEmpty(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	a := NewAcquirer(failingSource{err: errors.New("feed down")}, time.Second, m)

	got := a.FetchRecent(context.Background(), "v1", 3)
	assert.Empty(t, got)
}

func TestAcquirer_TimeoutIsEmpty(t *testing.T) {
	a := NewAcquirer(slowSource{}, 20*time.Millisecond, nil)

	start := time.Now()
	got := a.FetchRecent(context.Background(), "v1", 3)
	assert.Empty(t, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNop(t *testing.T) {
	a := NewAcquirer(Nop{}, 0, nil)
	assert.Empty(t, a.FetchRecent(context.Background(), "v1", 5))
}

func TestHTTPSource_Recent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/venues/kop-bar/posts", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"id":"p1","text":"LIVE on the big screen","image_url":"https://img/1.jpg","captured_at":"2026-05-01T19:00:00+01:00"},
			{"id":"","text":"no id, dropped"},
			{"id":"p2","text":"doors open","captured_at":"2026-05-01T17:00:00Z"}
		]}`)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "secret")
	items, err := src.Recent(context.Background(), "kop-bar", 3)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].ID)
	assert.Equal(t, "https://img/1.jpg", items[0].ImageRef)
	assert.Equal(t, time.UTC, items[0].CapturedAt.Location())
	assert.Equal(t, 18, items[0].CapturedAt.Hour())
}

func TestHTTPSource_NotFoundIsEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	items, err := NewHTTPSource(srv.URL, "").Recent(context.Background(), "v1", 3)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHTTPSource_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"p1","text":"match on","captured_at":"2026-05-01T17:00:00Z"}]}`)
	}))
	defer srv.Close()

	g := &resilience.Guard{Name: "feed", Backoff: resilience.Backoff{Attempts: 3, Base: time.Millisecond}}
	items, err := NewHTTPSource(srv.URL, "", WithGuard(g), WithRateLimit(1000, 10)).Recent(context.Background(), "v1", 3)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSource_PermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, "nope").Recent(context.Background(), "v1", 3)
	require.Error(t, err)
	var se *resilience.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPSource_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":`)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, "").Recent(context.Background(), "v1", 3)
	assert.Error(t, err)
}

func TestHTTPSource_ThroughAcquirer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := &resilience.Guard{
		Name:    "feed",
		Backoff: resilience.Backoff{Attempts: 2, Base: time.Millisecond},
		Breaker: resilience.NewBreaker(1, time.Hour, nil),
	}
	a := NewAcquirer(NewHTTPSource(srv.URL, "", WithGuard(g)), time.Second, nil)
	assert.Empty(t, a.FetchRecent(context.Background(), "v1", 3))
	assert.Equal(t, resilience.Open, g.Breaker.State())
}
