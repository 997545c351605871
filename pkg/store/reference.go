package store

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// SetRegions replaces the region list.
func (s *Store) SetRegions(ctx context.Context, regionIDs []int64) error {
	return s.setList(ctx, "set_regions", keyRegions, regionIDs)
}

// GetRegions returns the region list.
func (s *Store) GetRegions(ctx context.Context) ([]int64, error) {
	return s.getList(ctx, "get_regions", keyRegions)
}

// AddRegionInfo writes region hashes.
func (s *Store) AddRegionInfo(ctx context.Context, regions []Region) error {
	if len(regions) == 0 {
		return nil
	}
	return s.tx(ctx, "add_region_info", len(regions), func(p redis.Pipeliner) error {
		for _, r := range regions {
			key := idKey(prefixRegionInfo, r.ID)
			p.Del(ctx, key)
			p.HSet(ctx, key, r.hash())
		}
		return nil
	})
}

// GetRegionInfo returns a region, or nil if it is not stored.
func (s *Store) GetRegionInfo(ctx context.Context, regionID int64) (*Region, error) {
	f, err := s.getHash(ctx, "get_region_info", idKey(prefixRegionInfo, regionID))
	if err != nil || f == nil {
		return nil, err
	}
	r := decodeRegion(f)
	return &r, nil
}

// SetRegionSystems replaces the system list of a region.
func (s *Store) SetRegionSystems(ctx context.Context, regionID int64, systemIDs []int64) error {
	return s.setList(ctx, "set_region_systems", idKey(prefixRegionSystems, regionID), systemIDs)
}

// GetSystems returns the system IDs of a region.
func (s *Store) GetSystems(ctx context.Context, regionID int64) ([]int64, error) {
	return s.getList(ctx, "get_systems", idKey(prefixRegionSystems, regionID))
}

// AddSystemInfo writes system hashes.
func (s *Store) AddSystemInfo(ctx context.Context, systems []System) error {
	if len(systems) == 0 {
		return nil
	}
	return s.tx(ctx, "add_system_info", len(systems), func(p redis.Pipeliner) error {
		for _, sys := range systems {
			key := idKey(prefixSystemInfo, sys.ID)
			p.Del(ctx, key)
			p.HSet(ctx, key, sys.hash())
		}
		return nil
	})
}

// GetSystemInfo returns a system, or nil if it is not stored.
func (s *Store) GetSystemInfo(ctx context.Context, systemID int64) (*System, error) {
	f, err := s.getHash(ctx, "get_system_info", idKey(prefixSystemInfo, systemID))
	if err != nil || f == nil {
		return nil, err
	}
	sys := decodeSystem(f)
	return &sys, nil
}

// SetRegionLocations replaces the location list of a region.
func (s *Store) SetRegionLocations(ctx context.Context, regionID int64, locationIDs []int64) error {
	return s.setList(ctx, "set_region_locations", idKey(prefixRegionLocations, regionID), locationIDs)
}

// GetLocations returns the location IDs of a region.
func (s *Store) GetLocations(ctx context.Context, regionID int64) ([]int64, error) {
	return s.getList(ctx, "get_locations", idKey(prefixRegionLocations, regionID))
}

// AddLocationInfo writes location hashes.
func (s *Store) AddLocationInfo(ctx context.Context, locations []Location) error {
	if len(locations) == 0 {
		return nil
	}
	return s.tx(ctx, "add_location_info", len(locations), func(p redis.Pipeliner) error {
		for _, l := range locations {
			key := idKey(prefixLocationInfo, l.ID)
			p.Del(ctx, key)
			p.HSet(ctx, key, l.hash())
		}
		return nil
	})
}

// GetLocationInfo returns a location, or nil if it is not stored.
func (s *Store) GetLocationInfo(ctx context.Context, locationID int64) (*Location, error) {
	f, err := s.getHash(ctx, "get_location_info", idKey(prefixLocationInfo, locationID))
	if err != nil || f == nil {
		return nil, err
	}
	l := decodeLocation(f)
	return &l, nil
}

// SetTypes replaces the item type list.
func (s *Store) SetTypes(ctx context.Context, typeIDs []int64) error {
	return s.setList(ctx, "set_types", keyTypes, typeIDs)
}

// GetTypes returns the item type list.
func (s *Store) GetTypes(ctx context.Context) ([]int64, error) {
	return s.getList(ctx, "get_types", keyTypes)
}

// AddTypeInfo writes item type hashes.
func (s *Store) AddTypeInfo(ctx context.Context, types []ItemType) error {
	if len(types) == 0 {
		return nil
	}
	return s.tx(ctx, "add_type_info", len(types), func(p redis.Pipeliner) error {
		for _, t := range types {
			key := idKey(prefixTypeInfo, t.ID)
			p.Del(ctx, key)
			p.HSet(ctx, key, t.hash())
		}
		return nil
	})
}

// GetTypeInfo returns an item type, or nil if it is not stored.
func (s *Store) GetTypeInfo(ctx context.Context, typeID int64) (*ItemType, error) {
	f, err := s.getHash(ctx, "get_type_info", idKey(prefixTypeInfo, typeID))
	if err != nil || f == nil {
		return nil, err
	}
	t := decodeItemType(f)
	return &t, nil
}

// SetMarketGroups replaces the market group list.
func (s *Store) SetMarketGroups(ctx context.Context, groupIDs []int64) error {
	return s.setList(ctx, "set_market_groups", keyMarketGroups, groupIDs)
}

// GetGroups returns the market group list.
func (s *Store) GetGroups(ctx context.Context) ([]int64, error) {
	return s.getList(ctx, "get_groups", keyMarketGroups)
}

// AddMarketGroupInfo writes market group hashes and replaces each group's
// item type list.
func (s *Store) AddMarketGroupInfo(ctx context.Context, groups []MarketGroup) error {
	if len(groups) == 0 {
		return nil
	}
	return s.tx(ctx, "add_market_group_info", len(groups), func(p redis.Pipeliner) error {
		for _, g := range groups {
			key := idKey(prefixGroupInfo, g.ID)
			p.Del(ctx, key)
			p.HSet(ctx, key, g.hash())
			replaceList(ctx, p, idKey(prefixGroupTypes, g.ID), g.Types)
		}
		return nil
	})
}

// GetGroupInfo returns a market group, or nil if it is not stored.
func (s *Store) GetGroupInfo(ctx context.Context, groupID int64) (*MarketGroup, error) {
	f, err := s.getHash(ctx, "get_group_info", idKey(prefixGroupInfo, groupID))
	if err != nil || f == nil {
		return nil, err
	}
	g := decodeMarketGroup(f)
	return &g, nil
}

// GetGroupTypes returns the item type IDs of a market group.
func (s *Store) GetGroupTypes(ctx context.Context, groupID int64) ([]int64, error) {
	return s.getList(ctx, "get_group_types", idKey(prefixGroupTypes, groupID))
}
