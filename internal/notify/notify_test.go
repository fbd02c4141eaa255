package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time                       { return c.now }
func (c fixedClock) Sleep(context.Context, time.Duration) {}

var testNow = time.Date(2024, 11, 3, 10, 30, 0, 0, time.UTC)

func contentRecord() scrape.Record {
	return scrape.Record{
		URL:            "https://x.com/user/status/1",
		ScrapingMethod: "selenium_webdriver",
		Content: &scrape.Content{
			PageType: scrape.PageTypeSocialPost,
			MainText: "hello",
			Metrics:  map[string]string{"likes": "1"},
		},
	}
}

func TestHTTPSinkPost(t *testing.T) {
	t.Parallel()

	type seen struct {
		contentType string
		userAgent   string
		body        map[string]any
	}
	got := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		got <- seen{contentType: r.Header.Get("Content-Type"), userAgent: r.UserAgent(), body: body}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	}))
	t.Cleanup(srv.Close)

	sink := NewHTTPSink(nil, "post-scraper/1.0")
	resp, err := sink.Post(context.Background(), srv.URL, map[string]string{"hello": "world"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "queued", string(resp.Body))

	s := <-got
	require.Equal(t, "application/json", s.contentType)
	require.Equal(t, "post-scraper/1.0", s.userAgent)
	require.Equal(t, "world", s.body["hello"])
}

func TestHTTPSinkNon2xxIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	resp, err := NewHTTPSink(srv.Client(), "").Post(context.Background(), srv.URL, struct{}{}, time.Second)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHTTPSinkTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := NewHTTPSink(nil, "").Post(context.Background(), srv.URL, struct{}{}, 30*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPSinkMarshalError(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPSink(nil, "").Post(context.Background(), "http://127.0.0.1:1", make(chan int), time.Second)
	require.ErrorContains(t, err, "marshal payload")
}

func TestDelivererPostsPayload(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	d := NewDeliverer(sink, Config{WebhookURL: "https://hooks.example.com/result", Timeout: 5 * time.Second},
		fixedClock{now: testNow}, nil)

	rec := contentRecord()
	d.Deliver(context.Background(), rec, "chat-42")

	posts := sink.Posts()
	require.Len(t, posts, 1)
	require.Equal(t, "https://hooks.example.com/result", posts[0].URL)
	require.Equal(t, 5*time.Second, posts[0].Timeout)

	payload, ok := posts[0].Payload.(Payload)
	require.True(t, ok)
	require.Equal(t, StatusCompleted, payload.Status)
	require.Equal(t, rec.URL, payload.URL)
	require.Equal(t, "chat-42", payload.CorrelationID)
	require.Equal(t, "2024-11-03T10:30:00Z", payload.Timestamp)

	// The payload carries a copy.
	rec.Metrics["likes"] = "999"
	require.Equal(t, "1", payload.Result.Metrics["likes"])

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"status": "completed",
		"url": "https://x.com/user/status/1",
		"timestamp": "2024-11-03T10:30:00Z",
		"correlationId": "chat-42",
		"result": `+mustJSON(t, payload.Result)+`
	}`, string(data))
}

func TestDelivererFailedRecord(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	d := NewDeliverer(sink, Config{WebhookURL: "https://hooks.example.com/result"}, fixedClock{now: testNow}, nil)
	d.Deliver(context.Background(), scrape.NewErrorRecord("https://x.com/a", "selenium_webdriver",
		errors.New("timeout")), "")

	posts := sink.Posts()
	require.Len(t, posts, 1)
	payload := posts[0].Payload.(Payload)
	require.Equal(t, StatusFailed, payload.Status)
	require.Equal(t, "timeout", payload.Result.Error)
	require.Equal(t, 30*time.Second, posts[0].Timeout)
}

func TestDelivererSkipsWithoutWebhook(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	NewDeliverer(sink, Config{}, fixedClock{now: testNow}, nil).Deliver(context.Background(), contentRecord(), "x")
	require.Empty(t, sink.Posts())
}

func TestDelivererSwallowsSinkFailures(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	sink.Respond = func(string, any) (scrape.Response, error) {
		return scrape.Response{}, errors.New("connection refused")
	}
	d := NewDeliverer(sink, Config{WebhookURL: "https://hooks.example.com"}, fixedClock{now: testNow}, nil)
	require.NotPanics(t, func() { d.Deliver(context.Background(), contentRecord(), "") })
	require.Len(t, sink.Posts(), 1)

	Discard{}.Deliver(context.Background(), contentRecord(), "")
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
