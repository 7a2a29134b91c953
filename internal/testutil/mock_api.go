// Package testutil provides testing utilities for the OilPriceAPI client.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock API endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request seen by the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// MockAPI is a configurable mock OilPriceAPI server for testing.
//
// Responses are looked up by path. A path can hold a queue of responses
// (SetSequence); the last one repeats once the queue is drained.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	queues   map[string][]MockResponse
	requests []RecordedRequest
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
		queues:   make(map[string][]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		handler, hasHandler := mock.handlers[r.URL.Path]
		resp, hasQueued := mock.next(r.URL.Path)
		mock.mu.Unlock()

		switch {
		case hasHandler:
			handler(w, r)
		case hasQueued:
			writeResponse(w, r, resp)
		default:
			mock.defaultHandler(w, r)
		}
	}))

	return mock
}

// next pops the next queued response for path. Callers hold mu.
func (m *MockAPI) next(path string) (MockResponse, bool) {
	queue := m.queues[path]
	if len(queue) == 0 {
		return MockResponse{}, false
	}
	resp := queue[0]
	if len(queue) > 1 {
		m.queues[path] = queue[1:]
	}
	return resp, true
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a single repeating response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetSequence(path, resp)
}

// SetSequence configures responses returned in order for a path.
func (m *MockAPI) SetSequence(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[path] = append([]MockResponse(nil), responses...)
}

// SetHanging makes path block until the client gives up or the server closes.
func (m *MockAPI) SetHanging(path string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Requests returns a copy of all recorded requests.
func (m *MockAPI) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// LastRequest returns the most recent request, or the zero value.
func (m *MockAPI) LastRequest() RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}
	}
	return m.requests[len(m.requests)-1]
}

// defaultHandler answers unknown paths with 404 like the real API.
func (m *MockAPI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, `{"status":"error","error":"no route for %s"}`, r.URL.Path)
}

func writeResponse(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewSuccessResponse wraps data in the API success envelope.
func NewSuccessResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"status":"success","data":` + data + `}`,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "10000",
			"X-RateLimit-Remaining": "9999",
			"X-RateLimit-Reset":     "3600",
		},
	}
}

// NewErrorResponse creates an error response with the API error body.
func NewErrorResponse(status int, message string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"status":"error","message":%q}`, message),
	}
}

// NewRateLimitResponse creates a 429 response. A positive retryAfter sets
// the Retry-After header in seconds.
func NewRateLimitResponse(retryAfter int) MockResponse {
	resp := NewErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	resp.Headers = map[string]string{
		"X-RateLimit-Limit":     "10000",
		"X-RateLimit-Remaining": "0",
	}
	if retryAfter > 0 {
		resp.Headers["Retry-After"] = strconv.Itoa(retryAfter)
	}
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewErrorResponse(http.StatusInternalServerError, "Internal server error")
}

// LatestPriceData is a single-price data object for code.
func LatestPriceData(code string, price float64) string {
	return fmt.Sprintf(`{"code":%q,"price":%v,"formatted":"$%.2f","currency":"USD","type":"spot_price","created_at":"2026-01-15T12:00:00Z"}`,
		code, price, price)
}

// PriceListData is a data.prices collection with one record per code.
func PriceListData(codes ...string) string {
	out := `{"prices":[`
	for i, code := range codes {
		if i > 0 {
			out += ","
		}
		out += LatestPriceData(code, 70+float64(i))
	}
	return out + `]}`
}
