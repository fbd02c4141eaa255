package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

const storedJSON = `{"url":"https://x.com/user/status/7","scraping_method":"selenium_webdriver",` +
	`"page_type":"social_post","author":"@user","main_text":"hello"}`

// newTestStore creates a ResultStore pointed at a fake GCS endpoint.
func newTestStore(t *testing.T, handler http.Handler, prefix string) *ResultStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket", Prefix: prefix})
	require.NoError(t, err)
	return store
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	s := &ResultStore{bucket: "b", prefix: "results"}
	name, err := s.objectName("1234567890")
	require.NoError(t, err)
	require.Equal(t, "results/1234567890.json", name)

	s.prefix = ""
	name, err = s.objectName("url-0123456789abcdef")
	require.NoError(t, err)
	require.Equal(t, "url-0123456789abcdef.json", name)

	_, err = s.objectName("")
	require.Error(t, err)
	_, err = s.objectName("a/b")
	require.Error(t, err)
}

func TestPutUploadsJSON(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body string
		name string
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		mu.Lock()
		body = string(data)
		name = r.URL.Query().Get("name")
		mu.Unlock()
		fmt.Fprintln(w, `{"name":"results/7.json","bucket":"test-bucket"}`)
	})
	store := newTestStore(t, handler, "results")

	rec := scrape.Record{
		URL:            "https://x.com/user/status/7",
		ScrapingMethod: "selenium_webdriver",
		Content:        &scrape.Content{PageType: scrape.PageTypeSocialPost, MainText: "hello"},
	}
	uri, err := store.Put(context.Background(), "7", rec)
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/results/7.json", uri)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, body, `"main_text":"hello"`)
	require.Contains(t, body, "application/json")
	if name != "" {
		require.Equal(t, "results/7.json", name)
	}
}

func TestPutUploadFailure(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	})
	store := newTestStore(t, handler, "")

	_, err := store.Put(context.Background(), "7", scrape.NewErrorRecord("https://x.com", "selenium_webdriver", nil))
	require.Error(t, err)
}

func TestGet(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/results/7.json") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, storedJSON)
			return
		}
		http.NotFound(w, r)
	})
	store := newTestStore(t, handler, "results")

	got, err := store.Get(context.Background(), "7")
	require.NoError(t, err)
	require.Equal(t, "https://x.com/user/status/7", got.URL)
	require.NotNil(t, got.Content)
	require.Equal(t, "@user", got.Author)

	_, err = store.Get(context.Background(), "8")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}
