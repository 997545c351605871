package client

import "sync"

// Page is the pagination state of one page of one resource. It lives for
// the lifetime of the process and is never persisted.
type Page struct {
	mu        sync.Mutex
	number    int
	etag      string
	ids       []int64
	locations []int64
}

func newPage(number int) *Page {
	return &Page{number: number}
}

// Number returns the 1-based page number.
func (p *Page) Number() int {
	return p.number
}

// ETag returns the last cache validation tag seen for the page.
func (p *Page) ETag() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.etag
}

func (p *Page) setETag(etag string) {
	p.mu.Lock()
	p.etag = etag
	p.mu.Unlock()
}

// invalidate drops the tag so the next request fetches the full body. The
// cached IDs stay until that response replaces them.
func (p *Page) invalidate() {
	p.setETag("")
}

// update stores a changed response. The tag and the IDs it validates are
// published together, so a concurrent 304 never pairs the new tag with the
// old IDs.
func (p *Page) update(etag string, ids, locationIDs []int64) {
	p.mu.Lock()
	p.etag = etag
	p.ids = ids
	p.locations = locationIDs
	p.mu.Unlock()
}

// Cached returns copies of the record IDs (order IDs for order pages) and
// location IDs observed on the last changed response for this page.
func (p *Page) Cached() (ids, locationIDs []int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.ids...), append([]int64(nil), p.locations...)
}

type pageKey struct {
	id     int64
	number int
}

// PageSet maps (resource id, page number) to pages for one resource class.
// Its lock only guards the map; no I/O happens while it is held.
type PageSet struct {
	mu    sync.Mutex
	pages map[pageKey]*Page
}

// NewPageSet returns an empty page set.
func NewPageSet() *PageSet {
	return &PageSet{pages: make(map[pageKey]*Page)}
}

// Get returns the page for (id, number), creating it on first access.
func (s *PageSet) Get(id int64, number int) *Page {
	key := pageKey{id: id, number: number}

	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[key]
	if !ok {
		page = newPage(number)
		s.pages[key] = page
	}
	return page
}

// Len returns the number of pages created so far.
func (s *PageSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}
