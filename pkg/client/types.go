package client

import "time"

// Region is the response of /universe/regions/{id}/.
type Region struct {
	RegionID       int64   `json:"region_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Constellations []int64 `json:"constellations"`
}

// Constellation is the response of /universe/constellations/{id}/.
type Constellation struct {
	ConstellationID int64   `json:"constellation_id"`
	Name            string  `json:"name"`
	RegionID        int64   `json:"region_id"`
	Systems         []int64 `json:"systems"`
}

// System is the response of /universe/systems/{id}/.
type System struct {
	SystemID        int64   `json:"system_id"`
	Name            string  `json:"name"`
	ConstellationID int64   `json:"constellation_id"`
	SecurityStatus  float64 `json:"security_status"`
}

// Location is a station or a player-owned structure. Stations and
// structures use different field names for the same data.
type Location struct {
	StationID int64  `json:"station_id"`
	Name      string `json:"name"`
	SystemID  int64  `json:"system_id"`
	TypeID    int64  `json:"type_id,omitempty"`

	// Structures only.
	SolarSystemID int64 `json:"solar_system_id,omitempty"`
	OwnerID       int64 `json:"owner_id,omitempty"`

	// Set locally, not part of the payload.
	IsStructure bool `json:"-"`
}

// MarketGroup is the response of /markets/groups/{id}/.
type MarketGroup struct {
	MarketGroupID int64   `json:"market_group_id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	ParentGroupID int64   `json:"parent_group_id,omitempty"`
	Types         []int64 `json:"types"`
}

// ItemType is the response of /universe/types/{id}/.
type ItemType struct {
	TypeID        int64   `json:"type_id"`
	Name          string  `json:"name"`
	GroupID       int64   `json:"group_id"`
	MarketGroupID int64   `json:"market_group_id,omitempty"`
	IconID        int64   `json:"icon_id,omitempty"`
	Volume        float64 `json:"volume,omitempty"`
	Published     bool    `json:"published"`
}

// Order is one entry of /markets/{region}/orders/.
type Order struct {
	OrderID      int64     `json:"order_id"`
	TypeID       int64     `json:"type_id"`
	SystemID     int64     `json:"system_id"`
	LocationID   int64     `json:"location_id"`
	IsBuyOrder   bool      `json:"is_buy_order"`
	MinVolume    int64     `json:"min_volume"`
	VolumeTotal  int64     `json:"volume_total"`
	VolumeRemain int64     `json:"volume_remain"`
	Price        float64   `json:"price"`
	Range        string    `json:"range"`
	Issued       time.Time `json:"issued"`
	Duration     int       `json:"duration"`
}

// Expiry returns the time the order lapses: issue time plus its duration in
// days.
func (o Order) Expiry() time.Time {
	return o.Issued.Add(time.Duration(o.Duration) * 24 * time.Hour)
}
