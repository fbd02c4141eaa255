package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Post captures one MemorySink call.
type Post struct {
	URL     string
	Payload any
	Timeout time.Duration
}

// MemorySink records posts for inspection and answers with a canned response.
type MemorySink struct {
	mu    sync.RWMutex
	posts []Post

	// Respond, when set, produces the reply for each post. The default is 200 with an empty body.
	Respond func(url string, payload any) (scrape.Response, error)
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Post records the call and returns the canned response.
func (s *MemorySink) Post(_ context.Context, url string, payload any, timeout time.Duration) (scrape.Response, error) {
	s.mu.Lock()
	s.posts = append(s.posts, Post{URL: url, Payload: payload, Timeout: timeout})
	respond := s.Respond
	s.mu.Unlock()
	if respond != nil {
		return respond(url, payload)
	}
	return scrape.Response{StatusCode: http.StatusOK}, nil
}

// Posts returns the recorded posts.
func (s *MemorySink) Posts() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Post, len(s.posts))
	copy(out, s.posts)
	return out
}
