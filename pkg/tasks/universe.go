// Package tasks defines the units of work the watcher schedules on the pool:
// universe and market group refreshes that fan out into per-entity tasks,
// and per-region order ingestion.
package tasks

import (
	"context"
	"fmt"
	"slices"

	"github.com/Sternrassler/eve-marketwatch/pkg/client"
	"github.com/Sternrassler/eve-marketwatch/pkg/store"
	"github.com/Sternrassler/eve-marketwatch/pkg/worker"
)

// ChunkSize is the number of entities fetched by one info task.
const ChunkSize = 8

// UpdateRegions refreshes the region list and enqueues UpdateRegionInfo
// for each chunk of regions.
type UpdateRegions struct {
	Global *client.GlobalAPI
}

// Execute implements worker.Task.
func (t UpdateRegions) Execute(ctx context.Context, p *worker.Pool, w *worker.Worker) error {
	w.Log().Info().Msg("Fetching region list")

	regionIDs, err := t.Global.FetchRegions(ctx, w.Session())
	if err != nil {
		return fmt.Errorf("fetch regions: %w", err)
	}
	if err := w.Store().SetRegions(ctx, regionIDs); err != nil {
		return err
	}

	for chunk := range slices.Chunk(regionIDs, ChunkSize) {
		p.Enqueue(UpdateRegionInfo{Global: t.Global, RegionIDs: chunk})
	}
	return nil
}

// UpdateRegionInfo stores the info of a chunk of regions and enqueues
// UpdateRegionSystems for each of them.
type UpdateRegionInfo struct {
	Global    *client.GlobalAPI
	RegionIDs []int64
}

// Execute implements worker.Task.
func (t UpdateRegionInfo) Execute(ctx context.Context, p *worker.Pool, w *worker.Worker) error {
	regions := make([]store.Region, 0, len(t.RegionIDs))
	for _, regionID := range t.RegionIDs {
		w.Log().Info().Int64("region_id", regionID).Msg("Fetching region info")

		info, err := t.Global.FetchRegion(ctx, w.Session(), regionID)
		if err != nil {
			w.Log().Warn().Err(err).Int64("region_id", regionID).Msg("Skipping region")
			continue
		}
		regions = append(regions, store.Region{ID: info.RegionID, Name: info.Name})

		if len(info.Constellations) > 0 {
			p.Enqueue(UpdateRegionSystems{
				Global:           t.Global,
				RegionID:         regionID,
				ConstellationIDs: info.Constellations,
			})
		}
	}
	return w.Store().AddRegionInfo(ctx, regions)
}

// UpdateRegionSystems resolves the constellations of a region to its
// systems, replaces the region's system list and enqueues UpdateSystemInfo.
// The list is left untouched unless every constellation was fetched.
type UpdateRegionSystems struct {
	Global           *client.GlobalAPI
	RegionID         int64
	ConstellationIDs []int64
}

// Execute implements worker.Task.
func (t UpdateRegionSystems) Execute(ctx context.Context, p *worker.Pool, w *worker.Worker) error {
	w.Log().Info().Int64("region_id", t.RegionID).Msg("Fetching systems for region")

	var systemIDs []int64
	for _, constellationID := range t.ConstellationIDs {
		info, err := t.Global.FetchConstellation(ctx, w.Session(), constellationID)
		if err != nil {
			return fmt.Errorf("fetch constellation %d of region %d: %w", constellationID, t.RegionID, err)
		}
		systemIDs = append(systemIDs, info.Systems...)
	}

	if err := w.Store().SetRegionSystems(ctx, t.RegionID, systemIDs); err != nil {
		return err
	}
	if len(systemIDs) > 0 {
		p.Enqueue(UpdateSystemInfo{Global: t.Global, SystemIDs: systemIDs})
	}
	return nil
}

// UpdateSystemInfo stores the info of a list of systems.
type UpdateSystemInfo struct {
	Global    *client.GlobalAPI
	SystemIDs []int64
}

// Execute implements worker.Task.
func (t UpdateSystemInfo) Execute(ctx context.Context, p *worker.Pool, w *worker.Worker) error {
	w.Log().Info().Int("systems", len(t.SystemIDs)).Msg("Fetching system info")

	systems := make([]store.System, 0, len(t.SystemIDs))
	for _, systemID := range t.SystemIDs {
		info, err := t.Global.FetchSystem(ctx, w.Session(), systemID)
		if err != nil {
			w.Log().Warn().Err(err).Int64("system_id", systemID).Msg("Skipping system")
			continue
		}
		systems = append(systems, store.System{
			ID:       info.SystemID,
			Name:     info.Name,
			Security: info.SecurityStatus,
		})
	}
	return w.Store().AddSystemInfo(ctx, systems)
}
