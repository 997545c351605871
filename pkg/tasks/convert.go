package tasks

import (
	"github.com/Sternrassler/eve-marketwatch/pkg/client"
	"github.com/Sternrassler/eve-marketwatch/pkg/store"
)

func toStoreOrders(orders []client.Order) []store.Order {
	out := make([]store.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, store.Order{
			ID:           o.OrderID,
			TypeID:       o.TypeID,
			SystemID:     o.SystemID,
			LocationID:   o.LocationID,
			IsBuy:        o.IsBuyOrder,
			MinVolume:    o.MinVolume,
			VolumeTotal:  o.VolumeTotal,
			VolumeRemain: o.VolumeRemain,
			Price:        o.Price,
			Range:        o.Range,
			Expiry:       o.Expiry(),
		})
	}
	return out
}

func toStoreLocation(l client.Location) store.Location {
	return store.Location{
		ID:          l.StationID,
		Name:        l.Name,
		SystemID:    l.SystemID,
		IsStructure: l.IsStructure,
	}
}

func toStoreMarketGroup(g client.MarketGroup) store.MarketGroup {
	return store.MarketGroup{
		ID:       g.MarketGroupID,
		Name:     g.Name,
		ParentID: g.ParentGroupID,
		Types:    g.Types,
	}
}
