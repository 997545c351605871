package store

import (
	"strconv"
	"time"
)

// OrderTTL is how long an order stays in the store after it was last
// observed or refreshed.
const OrderTTL = 1200 * time.Second

// Redis key layout.
const (
	keyUniverseCache    = "rc"
	keyMarketGroupCache = "mc"
	keyRegions          = "r"
	keyTypes            = "t"
	keyMarketGroups     = "mg"

	prefixRegionInfo      = "ri:"
	prefixRegionSystems   = "rs:"
	prefixRegionLocations = "rl:"
	prefixSystemInfo      = "si:"
	prefixLocationInfo    = "li:"
	prefixTypeInfo        = "ti:"
	prefixGroupInfo       = "mgi:"
	prefixGroupTypes      = "mgt:"
	prefixOrder           = "o:"
	prefixRegionType      = "rt:"
)

func idKey(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

func orderKey(orderID int64) string {
	return idKey(prefixOrder, orderID)
}

func regionTypeKey(regionID, typeID int64) string {
	return prefixRegionType + strconv.FormatInt(regionID, 10) + ":" + strconv.FormatInt(typeID, 10)
}
