package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
)

type locationState int

const (
	locationPending locationState = iota + 1
	locationKnown
	locationInaccessible
)

// RegionAPI fetches the market of one region. It keeps the pagination state
// of the region's resources and the locations already resolved for it, and
// is shared by every session.
type RegionAPI struct {
	regionID int64
	global   *GlobalAPI

	orderPages *PageSet
	typePages  *PageSet

	mu        sync.Mutex
	locations map[int64]locationState
}

// NewRegionAPI returns the endpoint set for regionID.
func NewRegionAPI(regionID int64, global *GlobalAPI) *RegionAPI {
	return &RegionAPI{
		regionID:   regionID,
		global:     global,
		orderPages: NewPageSet(),
		typePages:  NewPageSet(),
		locations:  make(map[int64]locationState),
	}
}

// RegionID returns the region the API is bound to.
func (r *RegionAPI) RegionID() int64 {
	return r.regionID
}

// OrderPage is one page of a region's order list as delivered to callers.
type OrderPage struct {
	page *Page

	Number  int
	Changed bool

	// Orders holds the decoded orders of a changed page.
	Orders []Order

	// OrderIDs and LocationIDs are the IDs on the page. For an unchanged
	// page they come from the last changed response.
	OrderIDs    []int64
	LocationIDs []int64
}

// Invalidate makes the next fetch of this page return the full body, for
// when the records behind its cached IDs are gone.
func (p OrderPage) Invalidate() {
	if p.page != nil {
		p.page.invalidate()
	}
}

// FetchOrders streams the order pages of the region, optionally filtered by
// item type (typeID 0 fetches every type). visit is called once per page in
// page order.
func (r *RegionAPI) FetchOrders(ctx context.Context, s *Session, typeID int64, visit func(OrderPage) error) error {
	req := pageRequest{
		category: "orders",
		endpoint: fmt.Sprintf("/markets/%d/orders/", r.regionID),
		params:   url.Values{"order_type": {"all"}},
	}
	if typeID != 0 {
		req.params.Set("type_id", strconv.FormatInt(typeID, 10))
	}

	fetch := func(ctx context.Context, s *Session, number int) (PageResult[Order], error) {
		return fetchPage[Order](ctx, s, req, r.orderPages.Get(typeID, number), orderIDs)
	}

	return FetchPaged(ctx, s, req.category, fetch, func(result PageResult[Order]) error {
		ids, locations := result.Page.Cached()
		return visit(OrderPage{
			page:        result.Page,
			Number:      result.Page.Number(),
			Changed:     result.Changed,
			Orders:      result.Items,
			OrderIDs:    ids,
			LocationIDs: locations,
		})
	})
}

// orderIDs extracts the order IDs and the distinct location IDs of orders.
func orderIDs(orders []Order) (ids, locations []int64) {
	ids = make([]int64, 0, len(orders))
	seen := make(map[int64]struct{})
	for _, o := range orders {
		ids = append(ids, o.OrderID)
		if _, ok := seen[o.LocationID]; !ok {
			seen[o.LocationID] = struct{}{}
			locations = append(locations, o.LocationID)
		}
	}
	return ids, locations
}

func typePageIDs(items []int64) ([]int64, []int64) {
	return append([]int64(nil), items...), nil
}

// FetchTypes returns the item type IDs with active orders in the region.
// Unchanged pages contribute the IDs of their last changed response.
func (r *RegionAPI) FetchTypes(ctx context.Context, s *Session) ([]int64, error) {
	req := pageRequest{
		category: "region_types",
		endpoint: fmt.Sprintf("/markets/%d/types/", r.regionID),
	}

	fetch := func(ctx context.Context, s *Session, number int) (PageResult[int64], error) {
		return fetchPage[int64](ctx, s, req, r.typePages.Get(r.regionID, number), typePageIDs)
	}

	var typeIDs []int64
	err := FetchPaged(ctx, s, req.category, fetch, func(result PageResult[int64]) error {
		ids, _ := result.Page.Cached()
		typeIDs = append(typeIDs, ids...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return typeIDs, nil
}

// FetchLocation resolves a location the region has not seen before. It
// returns (nil, nil) for locations that are already resolved, in flight, or
// known to be inaccessible. A terminal failure marks the location
// inaccessible for the life of the process; any other failure forgets it so
// a later call retries.
func (r *RegionAPI) FetchLocation(ctx context.Context, s *Session, locationID int64) (*Location, error) {
	if !r.claimLocation(locationID) {
		return nil, nil
	}

	loc, err := r.global.FetchLocation(ctx, s, locationID)
	switch {
	case err == nil:
		r.setLocation(locationID, locationKnown)
		return &loc, nil
	case errors.Is(err, ErrNoToken), !errors.Is(err, ErrAbandoned):
		r.forgetLocation(locationID)
	default:
		r.setLocation(locationID, locationInaccessible)
	}
	return nil, err
}

// LocationKnown reports whether locationID was resolved successfully.
func (r *RegionAPI) LocationKnown(locationID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locations[locationID] == locationKnown
}

func (r *RegionAPI) claimLocation(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.locations[id]; ok {
		return false
	}
	r.locations[id] = locationPending
	return true
}

func (r *RegionAPI) setLocation(id int64, state locationState) {
	r.mu.Lock()
	r.locations[id] = state
	r.mu.Unlock()
}

func (r *RegionAPI) forgetLocation(id int64) {
	r.mu.Lock()
	delete(r.locations, id)
	r.mu.Unlock()
}
