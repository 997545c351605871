// Package testutil provides testing utilities for the market watcher.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// StatusDrop scripts a dropped connection instead of an HTTP response.
const StatusDrop = -1

type resource struct {
	pages    [][]byte
	version  int
	auth     bool
	failures []int

	pageFailures map[int][]int
}

// MockESI is a configurable mock ESI server for testing. Resources are
// registered per path and served with ETag and X-Pages headers; requests
// carrying the current ETag get 304 Not Modified.
type MockESI struct {
	server *httptest.Server

	mu        sync.Mutex
	resources map[string]*resource
	requests  map[string]int
	pages     map[string]int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	NotModifiedCount  int
	LastRequestHeader http.Header
}

// NewMockESI creates a new mock ESI server.
func NewMockESI() *MockESI {
	mock := &MockESI{
		resources: make(map[string]*resource),
		requests:  make(map[string]int),
		pages:     make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server URL.
func (m *MockESI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockESI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockESI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.NotModifiedCount = 0
	m.LastRequestHeader = nil
	m.requests = make(map[string]int)
	m.pages = make(map[string]int)
}

// SetJSON serves v as a single-page resource at path.
func (m *MockESI) SetJSON(path string, v any) {
	m.SetPages(path, v)
}

// SetPages serves each element of pages as one page of the resource at
// path. Replacing a resource changes its ETags.
func (m *MockESI) SetPages(path string, pages ...any) {
	encoded := make([][]byte, 0, len(pages))
	for _, p := range pages {
		data, err := json.Marshal(p)
		if err != nil {
			panic(fmt.Sprintf("marshal mock page: %v", err))
		}
		encoded = append(encoded, data)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[path]
	if !ok {
		res = &resource{}
		m.resources[path] = res
	}
	res.pages = encoded
	res.version++
}

// RequireAuth makes path answer 401 unless a bearer token is sent.
func (m *MockESI) RequireAuth(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[path]
	if !ok {
		res = &resource{}
		m.resources[path] = res
	}
	res.auth = true
}

// Fail scripts the next responses of path. Each status is served once, in
// order, before normal responses resume. StatusDrop closes the connection.
func (m *MockESI) Fail(path string, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[path]
	if !ok {
		res = &resource{}
		m.resources[path] = res
	}
	res.failures = append(res.failures, statuses...)
}

// FailPage scripts the next responses of one page of path, like Fail.
func (m *MockESI) FailPage(path string, page int, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[path]
	if !ok {
		res = &resource{}
		m.resources[path] = res
	}
	if res.pageFailures == nil {
		res.pageFailures = make(map[int][]int)
	}
	res.pageFailures[page] = append(res.pageFailures[page], statuses...)
}

// Requests returns the number of requests made to path.
func (m *MockESI) Requests(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[path]
}

// PageRequests returns the number of requests made to one page of path.
func (m *MockESI) PageRequests(path string, page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages[pageKey(path, page)]
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockESI) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockESI) GetConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConditionalCount
}

// GetNotModifiedCount returns the number of 304 responses served.
func (m *MockESI) GetNotModifiedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NotModifiedCount
}

func pageKey(path string, page int) string {
	return path + "#" + strconv.Itoa(page)
}

func (m *MockESI) serve(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}

	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	m.requests[r.URL.Path]++
	m.pages[pageKey(r.URL.Path, page)]++
	if r.Header.Get("If-None-Match") != "" {
		m.ConditionalCount++
	}

	res, ok := m.resources[r.URL.Path]
	var (
		status  int
		failing bool
		body    []byte
		etag    string
		total   int
		auth    bool
	)
	if ok {
		auth = res.auth
		if queued := res.pageFailures[page]; len(queued) > 0 {
			status, failing = queued[0], true
			res.pageFailures[page] = queued[1:]
		} else if len(res.failures) > 0 {
			status, failing = res.failures[0], true
			res.failures = res.failures[1:]
		}
		total = len(res.pages)
		if page <= total {
			body = res.pages[page-1]
			etag = fmt.Sprintf(`"v%d-p%d"`, res.version, page)
		}
	}
	m.mu.Unlock()

	w.Header().Set("X-ESI-Error-Limit-Remain", "100")
	w.Header().Set("X-ESI-Error-Limit-Reset", "60")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	switch {
	case failing && status == StatusDrop:
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusBadGateway)
		return
	case failing:
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error": "scripted failure"}`))
		return
	case auth && r.Header.Get("Authorization") == "":
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "authentication required"}`))
		return
	case body == nil:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "not found"}`))
		return
	}

	w.Header().Set("X-Pages", strconv.Itoa(total))
	w.Header().Set("ETag", etag)
	w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))

	if r.Header.Get("If-None-Match") == etag {
		m.mu.Lock()
		m.NotModifiedCount++
		m.mu.Unlock()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
