package client

import (
	"context"
	"fmt"
)

// structureIDFloor separates station IDs from player structure IDs.
const structureIDFloor = 1_000_000_000_000

// IsStructureID reports whether id names a player-owned structure.
func IsStructureID(id int64) bool {
	return id >= structureIDFloor
}

// GlobalAPI fetches universe and market group data that is not tied to a
// region. It is shared by every session.
type GlobalAPI struct{}

// NewGlobalAPI returns the global endpoint set.
func NewGlobalAPI() *GlobalAPI {
	return &GlobalAPI{}
}

// FetchRegions returns every region ID.
func (g *GlobalAPI) FetchRegions(ctx context.Context, s *Session) ([]int64, error) {
	return FetchUnpaged[[]int64](ctx, s, "regions", "/universe/regions/", false)
}

// FetchRegion returns the info of one region.
func (g *GlobalAPI) FetchRegion(ctx context.Context, s *Session, regionID int64) (Region, error) {
	return FetchUnpaged[Region](ctx, s, "region_info", fmt.Sprintf("/universe/regions/%d/", regionID), false)
}

// FetchConstellation returns the info of one constellation.
func (g *GlobalAPI) FetchConstellation(ctx context.Context, s *Session, constellationID int64) (Constellation, error) {
	return FetchUnpaged[Constellation](ctx, s, "constellation_info", fmt.Sprintf("/universe/constellations/%d/", constellationID), false)
}

// FetchSystem returns the info of one solar system.
func (g *GlobalAPI) FetchSystem(ctx context.Context, s *Session, systemID int64) (System, error) {
	return FetchUnpaged[System](ctx, s, "system_info", fmt.Sprintf("/universe/systems/%d/", systemID), false)
}

// FetchLocation returns a station or, for structure IDs, a player-owned
// structure. Structures require a bearer token.
func (g *GlobalAPI) FetchLocation(ctx context.Context, s *Session, locationID int64) (Location, error) {
	if !IsStructureID(locationID) {
		return FetchUnpaged[Location](ctx, s, "station_info", fmt.Sprintf("/universe/stations/%d/", locationID), false)
	}

	loc, err := FetchUnpaged[Location](ctx, s, "structure_info", fmt.Sprintf("/universe/structures/%d/", locationID), true)
	if err != nil {
		return loc, err
	}
	loc.StationID = locationID
	loc.SystemID = loc.SolarSystemID
	loc.IsStructure = true
	return loc, nil
}

// FetchMarketGroups returns every market group ID.
func (g *GlobalAPI) FetchMarketGroups(ctx context.Context, s *Session) ([]int64, error) {
	return FetchUnpaged[[]int64](ctx, s, "market_groups", "/markets/groups/", false)
}

// FetchMarketGroup returns the info of one market group, including its
// item type IDs.
func (g *GlobalAPI) FetchMarketGroup(ctx context.Context, s *Session, groupID int64) (MarketGroup, error) {
	return FetchUnpaged[MarketGroup](ctx, s, "market_group_info", fmt.Sprintf("/markets/groups/%d/", groupID), false)
}

// FetchType returns the info of one item type.
func (g *GlobalAPI) FetchType(ctx context.Context, s *Session, typeID int64) (ItemType, error) {
	return FetchUnpaged[ItemType](ctx, s, "type_info", fmt.Sprintf("/universe/types/%d/", typeID), false)
}
