package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/eve-marketwatch/pkg/client"
	"github.com/Sternrassler/eve-marketwatch/pkg/store"
	"github.com/Sternrassler/eve-marketwatch/pkg/worker"
)

// UpdateOrders ingests the orders of one region, optionally for a single
// item type. Changed pages are written in full; unchanged pages only have
// their orders' TTL refreshed, and a page whose orders already expired is
// fetched in full on the next run. Locations seen on any page are resolved
// once per region, and the region's location list is replaced when the
// whole order list was walked.
type UpdateOrders struct {
	Region *client.RegionAPI
	TypeID int64
}

// Execute implements worker.Task.
func (t UpdateOrders) Execute(ctx context.Context, p *worker.Pool, w *worker.Worker) error {
	regionID := t.Region.RegionID()
	logger := w.Log().With().Int64("region_id", regionID).Logger()
	if t.TypeID != 0 {
		logger = logger.With().Int64("type_id", t.TypeID).Logger()
	}
	logger.Info().Msg("Fetching market orders")

	st := w.Store()
	var locationIDs []int64
	seen := make(map[int64]struct{})

	walkErr := t.Region.FetchOrders(ctx, w.Session(), t.TypeID, func(page client.OrderPage) error {
		if page.Changed {
			logger.Debug().Int("page", page.Number).Int("orders", len(page.Orders)).Msg("Adding new orders")
			if err := st.AddOrders(ctx, regionID, toStoreOrders(page.Orders)); err != nil {
				return err
			}
		} else if len(page.OrderIDs) > 0 {
			logger.Debug().Int("page", page.Number).Int("orders", len(page.OrderIDs)).Msg("Refreshing cached orders")
			missing, err := st.RefreshOrders(ctx, page.OrderIDs)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				// The orders lapsed while the page stayed unchanged; only a
				// full body can bring them back.
				logger.Info().Int("page", page.Number).Int("missing", len(missing)).Msg("Cached orders expired, refetching page next cycle")
				page.Invalidate()
			}
		}

		for _, id := range page.LocationIDs {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				locationIDs = append(locationIDs, id)
			}
		}
		return nil
	})

	locErr := t.updateLocations(ctx, w, st, locationIDs)

	if walkErr != nil {
		return fmt.Errorf("fetch orders for region %d: %w", regionID, walkErr)
	}
	if locErr != nil {
		return locErr
	}

	if t.TypeID != 0 {
		// A single-type walk only sees part of the region's locations.
		return nil
	}

	known := make([]int64, 0, len(locationIDs))
	for _, id := range locationIDs {
		if t.Region.LocationKnown(id) {
			known = append(known, id)
		}
	}
	return st.SetRegionLocations(ctx, regionID, known)
}

// updateLocations resolves and stores the locations the region has not
// seen before.
func (t UpdateOrders) updateLocations(ctx context.Context, w *worker.Worker, st *store.Store, locationIDs []int64) error {
	var infos []store.Location
	for _, id := range locationIDs {
		loc, err := t.Region.FetchLocation(ctx, w.Session(), id)
		switch {
		case errors.Is(err, client.ErrNoToken):
			w.Log().Debug().Int64("location_id", id).Msg("Skipping structure without token")
			continue
		case client.IsNotFound(err):
			w.Log().Debug().Int64("location_id", id).Msg("Location no longer exists")
			continue
		case err != nil:
			w.Log().Warn().Err(err).Int64("location_id", id).Msg("Location unavailable")
			continue
		case loc == nil:
			continue
		}

		info := toStoreLocation(*loc)
		if sys, err := st.GetSystemInfo(ctx, info.SystemID); err == nil && sys != nil {
			info.Security = sys.Security
		}
		infos = append(infos, info)
	}

	if len(infos) == 0 {
		return nil
	}
	w.Log().Info().Int64("region_id", t.Region.RegionID()).Int("locations", len(infos)).Msg("Adding new locations")
	return st.AddLocationInfo(ctx, infos)
}
