package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AddOrders writes orders observed in regionID. Each order is stored with
// OrderTTL and added to its (region, type) set.
func (s *Store) AddOrders(ctx context.Context, regionID int64, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	return s.tx(ctx, "add_orders", len(orders)*3, func(p redis.Pipeliner) error {
		for _, o := range orders {
			key := orderKey(o.ID)
			p.HSet(ctx, key, o.hash())
			p.Expire(ctx, key, OrderTTL)
			p.SAdd(ctx, regionTypeKey(regionID, o.TypeID), o.ID)
		}
		return nil
	})
}

// RefreshOrders resets the TTL of stored orders without touching their
// fields. IDs that are no longer stored are left absent and returned as
// missing.
func (s *Store) RefreshOrders(ctx context.Context, orderIDs []int64) ([]int64, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.BoolCmd, len(orderIDs))
	err := s.tx(ctx, "refresh_orders", len(orderIDs), func(p redis.Pipeliner) error {
		for i, id := range orderIDs {
			cmds[i] = p.Expire(ctx, orderKey(id), OrderTTL)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var missing []int64
	for i, cmd := range cmds {
		if !cmd.Val() {
			missing = append(missing, orderIDs[i])
		}
	}
	return missing, nil
}

// pruneScript removes set members whose order hash is gone. The check and
// the removal run atomically, so an order written back in between keeps its
// membership. KEYS[1] is the set, ARGV[1] the hash key prefix and the rest
// the candidate IDs.
var pruneScript = redis.NewScript(`
local removed = 0
for i = 2, #ARGV do
	if redis.call("EXISTS", ARGV[1] .. ARGV[i]) == 0 then
		removed = removed + redis.call("SREM", KEYS[1], ARGV[i])
	end
end
return removed
`)

func (s *Store) pruneOrders(ctx context.Context, setKey string, ids []string) error {
	args := make([]any, 0, len(ids)+1)
	args = append(args, prefixOrder)
	for _, id := range ids {
		args = append(args, id)
	}
	if err := pruneScript.Run(ctx, s.redis, []string{setKey}, args...).Err(); err != nil {
		storeErrors.WithLabelValues("prune_orders").Inc()
		return fmt.Errorf("redis prune %s: %w", setKey, err)
	}
	return nil
}

type orderReply struct {
	id     string
	fields *redis.MapStringStringCmd
	ttl    *redis.DurationCmd
}

// GetOrders returns the live orders of a type in a region. A systemID of 0
// returns every system. Members whose order has expired are removed from
// the set.
func (s *Store) GetOrders(ctx context.Context, regionID, typeID, systemID int64) ([]Order, error) {
	const op = "get_orders"
	storeOps.WithLabelValues(op).Inc()

	setKey := regionTypeKey(regionID, typeID)
	members, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		storeErrors.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("redis smembers %s: %w", setKey, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	replies := make([]orderReply, len(members))
	_, err = s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range members {
			key := prefixOrder + id
			replies[i] = orderReply{
				id:     id,
				fields: p.HGetAll(ctx, key),
				ttl:    p.TTL(ctx, key),
			}
		}
		return nil
	})
	if err != nil {
		storeErrors.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("redis get orders %s: %w", setKey, err)
	}

	var (
		orders []Order
		stale  []string
	)
	for _, r := range replies {
		f := r.fields.Val()
		if len(f) == 0 {
			stale = append(stale, r.id)
			continue
		}

		o := decodeOrder(fields(f))
		if systemID != 0 && o.SystemID != systemID {
			continue
		}
		o.RegionID = regionID
		if remain := r.ttl.Val(); remain > 0 {
			o.Age = (OrderTTL - remain).Truncate(time.Second)
		}
		orders = append(orders, o)
	}

	if len(stale) > 0 {
		if err := s.pruneOrders(ctx, setKey, stale); err != nil {
			return orders, err
		}
	}
	return orders, nil
}

// GetOrdersAllRegions returns the live orders of a type in every stored
// region.
func (s *Store) GetOrdersAllRegions(ctx context.Context, typeID int64) ([]Order, error) {
	regionIDs, err := s.GetRegions(ctx)
	if err != nil {
		return nil, err
	}

	var orders []Order
	for _, regionID := range regionIDs {
		regionOrders, err := s.GetOrders(ctx, regionID, typeID, 0)
		if err != nil {
			return nil, err
		}
		orders = append(orders, regionOrders...)
	}
	return orders, nil
}
