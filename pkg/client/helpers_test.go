package client

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testAPIKey = "test-key-0123456789"

// recordingSleeper records requested waits and returns immediately.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// doerFunc adapts a function to the Doer interface.
type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// newTestClient creates a client against baseURL with a recording sleeper
// and a silent logger. mutate may adjust the config before New.
func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) (*Client, *recordingSleeper) {
	t.Helper()

	sleeper := &recordingSleeper{}
	logger := zerolog.Nop()

	cfg := DefaultConfig(testAPIKey)
	cfg.BaseURL = baseURL
	cfg.Sleeper = sleeper.Sleep
	cfg.Logger = &logger
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return c, sleeper
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
