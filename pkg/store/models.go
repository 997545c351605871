package store

import (
	"strconv"
	"time"
)

// orderTimeFormat is the layout of stored order expiry times.
const orderTimeFormat = "2006-01-02T15:04:05Z"

// Region is a stored region.
type Region struct {
	ID   int64
	Name string
}

// System is a stored solar system.
type System struct {
	ID       int64
	Name     string
	Security float64
}

// Location is a stored station or player structure.
type Location struct {
	ID          int64
	Name        string
	SystemID    int64
	Security    float64
	IsStructure bool
}

// ItemType is a stored item type.
type ItemType struct {
	ID            int64
	Name          string
	MarketGroupID int64
}

// MarketGroup is a stored market group. Types is only used when writing;
// read it back with GetGroupTypes.
type MarketGroup struct {
	ID       int64
	Name     string
	ParentID int64
	HasTypes bool
	Types    []int64
}

// Order is one active market order.
type Order struct {
	ID           int64
	RegionID     int64
	TypeID       int64
	SystemID     int64
	LocationID   int64
	IsBuy        bool
	MinVolume    int64
	VolumeTotal  int64
	VolumeRemain int64
	Price        float64
	Range        string
	Expiry       time.Time

	// Age is how long ago the order was last written or refreshed. It is
	// only set on read.
	Age time.Duration
}

// CacheExpiry is the last and next refresh time of a reference data set.
type CacheExpiry struct {
	Modified time.Time
	Expires  time.Time
}

func formatInt(v int64) string     { return strconv.FormatInt(v, 10) }
func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// fields wraps a Redis hash with typed accessors. Missing or malformed
// values read as zero.
type fields map[string]string

func (f fields) getInt(name string) int64 {
	v, _ := strconv.ParseInt(f[name], 10, 64)
	return v
}

func (f fields) getFloat(name string) float64 {
	v, _ := strconv.ParseFloat(f[name], 64)
	return v
}

func (f fields) getBool(name string) bool {
	return f[name] == "1"
}

func (f fields) getTime(name string) time.Time {
	t, _ := time.Parse(orderTimeFormat, f[name])
	return t
}

func (r Region) hash() map[string]any {
	return map[string]any{"id": formatInt(r.ID), "name": r.Name}
}

func decodeRegion(f fields) Region {
	return Region{ID: f.getInt("id"), Name: f["name"]}
}

func (s System) hash() map[string]any {
	return map[string]any{"id": formatInt(s.ID), "name": s.Name, "sec": formatFloat(s.Security)}
}

func decodeSystem(f fields) System {
	return System{ID: f.getInt("id"), Name: f["name"], Security: f.getFloat("sec")}
}

func (l Location) hash() map[string]any {
	return map[string]any{
		"id":       formatInt(l.ID),
		"name":     l.Name,
		"sid":      formatInt(l.SystemID),
		"sec":      formatFloat(l.Security),
		"isstruct": formatBool(l.IsStructure),
	}
}

func decodeLocation(f fields) Location {
	return Location{
		ID:          f.getInt("id"),
		Name:        f["name"],
		SystemID:    f.getInt("sid"),
		Security:    f.getFloat("sec"),
		IsStructure: f.getBool("isstruct"),
	}
}

func (t ItemType) hash() map[string]any {
	return map[string]any{"id": formatInt(t.ID), "name": t.Name, "gid": formatInt(t.MarketGroupID)}
}

func decodeItemType(f fields) ItemType {
	return ItemType{ID: f.getInt("id"), Name: f["name"], MarketGroupID: f.getInt("gid")}
}

func (g MarketGroup) hash() map[string]any {
	return map[string]any{
		"id":       formatInt(g.ID),
		"name":     g.Name,
		"pid":      formatInt(g.ParentID),
		"hastypes": formatBool(len(g.Types) > 0),
	}
}

func decodeMarketGroup(f fields) MarketGroup {
	return MarketGroup{
		ID:       f.getInt("id"),
		Name:     f["name"],
		ParentID: f.getInt("pid"),
		HasTypes: f.getBool("hastypes"),
	}
}

func (o Order) hash() map[string]any {
	return map[string]any{
		"id":     formatInt(o.ID),
		"tid":    formatInt(o.TypeID),
		"sid":    formatInt(o.SystemID),
		"lid":    formatInt(o.LocationID),
		"buy":    formatBool(o.IsBuy),
		"minvol": formatInt(o.MinVolume),
		"totvol": formatInt(o.VolumeTotal),
		"remvol": formatInt(o.VolumeRemain),
		"price":  formatFloat(o.Price),
		"range":  o.Range,
		"expiry": o.Expiry.UTC().Format(orderTimeFormat),
	}
}

func decodeOrder(f fields) Order {
	return Order{
		ID:           f.getInt("id"),
		TypeID:       f.getInt("tid"),
		SystemID:     f.getInt("sid"),
		LocationID:   f.getInt("lid"),
		IsBuy:        f.getBool("buy"),
		MinVolume:    f.getInt("minvol"),
		VolumeTotal:  f.getInt("totvol"),
		VolumeRemain: f.getInt("remvol"),
		Price:        f.getFloat("price"),
		Range:        f["range"],
		Expiry:       f.getTime("expiry"),
	}
}
