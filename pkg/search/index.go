// Package search keeps an in-memory name index of regions, systems and item
// types, rebuilt from the store after reference data changes.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Sternrassler/eve-marketwatch/pkg/store"
	"github.com/blevesearch/bleve/v2"
	"github.com/rs/zerolog"
)

// Kind selects one of the indexes.
type Kind int

const (
	// Region indexes region names.
	Region Kind = iota

	// System indexes system names, with the region as parent.
	System

	// Type indexes item type names.
	Type

	numKinds
)

// String returns the name of the index.
func (k Kind) String() string {
	switch k {
	case Region:
		return "region"
	case System:
		return "system"
	case Type:
		return "type"
	default:
		return "unknown"
	}
}

// ParseKind converts an index name to a Kind.
func ParseKind(s string) (Kind, error) {
	for k := Region; k < numKinds; k++ {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown search kind %q", s)
}

// DefaultLimit is used when Query is called with a non-positive limit.
const DefaultLimit = 10

// Result is one search hit.
type Result struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parent_id,omitempty"`

	// Highlight is Name with the matched text wrapped in <b></b>.
	Highlight string `json:"highlight"`
}

type entry struct {
	id       int64
	name     string
	lower    string
	parentID int64
}

// Source is the read side of the store the index is built from.
type Source interface {
	GetRegions(ctx context.Context) ([]int64, error)
	GetRegionInfo(ctx context.Context, regionID int64) (*store.Region, error)
	GetSystems(ctx context.Context, regionID int64) ([]int64, error)
	GetSystemInfo(ctx context.Context, systemID int64) (*store.System, error)
	GetGroups(ctx context.Context) ([]int64, error)
	GetGroupTypes(ctx context.Context, groupID int64) ([]int64, error)
	GetTypeInfo(ctx context.Context, typeID int64) (*store.ItemType, error)
}

// Index is safe for concurrent queries while a rebuild is in progress; a
// rebuild fills a fresh in-memory bleve index and swaps it in one step once
// it has read everything.
type Index struct {
	mu      sync.RWMutex
	bleve   bleve.Index
	entries map[string]entry
	counts  [numKinds]int
	logger  zerolog.Logger
}

// New returns an empty index.
func New(logger zerolog.Logger) *Index {
	return &Index{logger: logger}
}

// Len returns the number of entries of kind k.
func (x *Index) Len(k Kind) int {
	if k < 0 || k >= numKinds {
		return 0
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.counts[k]
}

// Close releases the current index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.bleve == nil {
		return nil
	}
	err := x.bleve.Close()
	x.bleve = nil
	x.entries = nil
	x.counts = [numKinds]int{}
	return err
}

// Rebuild replaces every index with the names currently in src. Entities
// whose info is missing are skipped. On error the previous index is kept.
func (x *Index) Rebuild(ctx context.Context, src Source) error {
	var next [numKinds][]entry

	regionIDs, err := src.GetRegions(ctx)
	if err != nil {
		return fmt.Errorf("list regions: %w", err)
	}
	for _, regionID := range regionIDs {
		region, err := src.GetRegionInfo(ctx, regionID)
		if err != nil {
			return fmt.Errorf("region %d: %w", regionID, err)
		}
		if region != nil {
			next[Region] = append(next[Region], newEntry(region.ID, region.Name, 0))
		}

		systemIDs, err := src.GetSystems(ctx, regionID)
		if err != nil {
			return fmt.Errorf("systems of region %d: %w", regionID, err)
		}
		for _, systemID := range systemIDs {
			system, err := src.GetSystemInfo(ctx, systemID)
			if err != nil {
				return fmt.Errorf("system %d: %w", systemID, err)
			}
			if system != nil {
				next[System] = append(next[System], newEntry(system.ID, system.Name, regionID))
			}
		}
	}

	groupIDs, err := src.GetGroups(ctx)
	if err != nil {
		return fmt.Errorf("list market groups: %w", err)
	}
	seen := make(map[int64]struct{})
	for _, groupID := range groupIDs {
		typeIDs, err := src.GetGroupTypes(ctx, groupID)
		if err != nil {
			return fmt.Errorf("types of group %d: %w", groupID, err)
		}
		for _, typeID := range typeIDs {
			if _, ok := seen[typeID]; ok {
				continue
			}
			seen[typeID] = struct{}{}

			info, err := src.GetTypeInfo(ctx, typeID)
			if err != nil {
				return fmt.Errorf("type %d: %w", typeID, err)
			}
			if info != nil {
				next[Type] = append(next[Type], newEntry(info.ID, info.Name, 0))
			}
		}
	}

	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return fmt.Errorf("create search index: %w", err)
	}

	entries := make(map[string]entry)
	var counts [numKinds]int
	batch := idx.NewBatch()
	for k := range next {
		kind := Kind(k)
		for _, e := range next[k] {
			id := docID(kind, e.id)
			if _, dup := entries[id]; dup {
				continue
			}
			entries[id] = e
			counts[k]++
			if err := batch.Index(id, e.document(kind)); err != nil {
				idx.Close()
				return fmt.Errorf("index %s: %w", id, err)
			}
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return fmt.Errorf("write search index: %w", err)
	}

	x.mu.Lock()
	old := x.bleve
	x.bleve = idx
	x.entries = entries
	x.counts = counts
	x.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			x.logger.Warn().Err(err).Msg("Failed to close previous search index")
		}
	}

	x.logger.Info().
		Int("regions", counts[Region]).
		Int("systems", counts[System]).
		Int("types", counts[Type]).
		Msg("Search index rebuilt")
	return nil
}

func newEntry(id int64, name string, parentID int64) entry {
	return entry{id: id, name: name, lower: strings.ToLower(name), parentID: parentID}
}

// Query returns up to limit entries of kind k whose name contains text,
// ignoring case. Entries where text starts a word rank before other
// substring matches; ties keep name order. A non-zero parentID restricts
// System results to one region.
func (x *Index) Query(k Kind, text string, parentID int64, limit int) []Result {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" || k < 0 || k >= numKinds {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.bleve == nil || x.counts[k] == 0 {
		return nil
	}

	req := bleve.NewSearchRequestOptions(candidateQuery(k, needle, parentID), x.counts[k], 0, false)
	res, err := x.bleve.Search(req)
	if err != nil {
		x.logger.Warn().Err(err).Str("kind", k.String()).Str("text", text).Msg("Search failed")
		return nil
	}

	// The n-gram terms only narrow the candidates; the exact substring
	// test and the ranking happen here.
	var words, others []entry
	offsets := make(map[int64]int, len(res.Hits))
	for _, hit := range res.Hits {
		e, ok := x.entries[hit.ID]
		if !ok {
			continue
		}
		at, wordStart := match(e.lower, needle)
		if at < 0 {
			continue
		}
		offsets[e.id] = at
		if wordStart {
			words = append(words, e)
		} else {
			others = append(others, e)
		}
	}
	sortEntries(words)
	sortEntries(others)

	results := make([]Result, 0, limit)
	for _, e := range append(words, others...) {
		if len(results) == limit {
			break
		}
		results = append(results, Result{
			ID:        e.id,
			Name:      e.name,
			ParentID:  e.parentID,
			Highlight: highlight(e, offsets[e.id], len(needle)),
		})
	}
	if len(results) == 0 {
		return nil
	}
	return results
}

func sortEntries(entries []entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].lower != entries[j].lower {
			return entries[i].lower < entries[j].lower
		}
		return entries[i].id < entries[j].id
	})
}

// match returns the offset of the first word-start occurrence of needle in
// s, or of the first occurrence if none starts a word, or -1.
func match(s, needle string) (int, bool) {
	first := -1
	for from := 0; from <= len(s)-len(needle); {
		i := strings.Index(s[from:], needle)
		if i < 0 {
			break
		}
		at := from + i
		if first < 0 {
			first = at
		}
		if at == 0 || isSeparator(s[at-1]) {
			return at, true
		}
		from = at + 1
	}
	return first, false
}

func isSeparator(b byte) bool {
	switch b {
	case ' ', '-', '\'', '(', ')', '.', ',', '/':
		return true
	}
	return false
}

// highlight wraps n bytes of the name starting at at. Offsets come from the
// lowered name, so names whose lowering changed their width are returned
// unmarked.
func highlight(e entry, at, n int) string {
	name := e.name
	if len(e.lower) != len(name) || at < 0 || at+n > len(name) {
		return name
	}
	return name[:at] + "<b>" + name[at:at+n] + "</b>" + name[at+n:]
}
