package httpworker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-post-scraper/internal/handoff"
	"github.com/JakeFAU/realtime-post-scraper/internal/notify"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "http://worker", time.Second)
	require.Error(t, err)
	_, err = New(notify.NewMemorySink(), "not a url", time.Second)
	require.Error(t, err)

	h, err := New(notify.NewMemorySink(), "https://worker.internal/", 0)
	require.NoError(t, err)
	require.Equal(t, "https://worker.internal/v1/jobs", h.Endpoint())
	require.Equal(t, 10*time.Second, h.timeout)
}

func TestScheduleAccepted(t *testing.T) {
	t.Parallel()

	got := make(chan scrape.Job, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, JobsPath, r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		var job scrape.Job
		_ = json.Unmarshal(data, &job)
		got <- job
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	h, err := New(notify.NewHTTPSink(srv.Client(), ""), srv.URL, time.Second)
	require.NoError(t, err)

	job := scrape.Job{ID: "j1", Request: scrape.Request{URL: "https://x.com/a/status/5", Mode: scrape.ModeSimple}}
	require.NoError(t, h.Schedule(context.Background(), job))
	require.Equal(t, "j1", (<-got).ID)
}

func TestScheduleRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	h, err := New(notify.NewHTTPSink(srv.Client(), ""), srv.URL, time.Second)
	require.NoError(t, err)
	require.ErrorContains(t, h.Schedule(context.Background(), scrape.Job{ID: "j2"}), "status 503")
}

func TestScheduleUnreachable(t *testing.T) {
	t.Parallel()

	h, err := New(notify.NewHTTPSink(nil, ""), "http://127.0.0.1:1", 200*time.Millisecond)
	require.NoError(t, err)
	require.Error(t, h.Schedule(context.Background(), scrape.Job{ID: "j3"}))
}

func TestNoneAlwaysFails(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, handoff.None{}.Schedule(context.Background(), scrape.Job{}), handoff.ErrNoWorker)
}
