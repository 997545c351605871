package tasks

import (
	"context"
	"fmt"
	"slices"

	"github.com/Sternrassler/eve-marketwatch/pkg/client"
	"github.com/Sternrassler/eve-marketwatch/pkg/store"
	"github.com/Sternrassler/eve-marketwatch/pkg/worker"
)

// UpdateGroups refreshes the market group list and enqueues
// UpdateGroupInfo for each chunk of groups.
type UpdateGroups struct {
	Global *client.GlobalAPI
}

// Execute implements worker.Task.
func (t UpdateGroups) Execute(ctx context.Context, p *worker.Pool, w *worker.Worker) error {
	w.Log().Info().Msg("Fetching market groups")

	groupIDs, err := t.Global.FetchMarketGroups(ctx, w.Session())
	if err != nil {
		return fmt.Errorf("fetch market groups: %w", err)
	}
	if err := w.Store().SetMarketGroups(ctx, groupIDs); err != nil {
		return err
	}

	for chunk := range slices.Chunk(groupIDs, ChunkSize) {
		p.Enqueue(UpdateGroupInfo{Global: t.Global, GroupIDs: chunk})
	}
	return nil
}

// UpdateGroupInfo stores a chunk of market groups with their type lists
// and enqueues UpdateTypeInfo for the types.
type UpdateGroupInfo struct {
	Global   *client.GlobalAPI
	GroupIDs []int64
}

// Execute implements worker.Task.
func (t UpdateGroupInfo) Execute(ctx context.Context, p *worker.Pool, w *worker.Worker) error {
	w.Log().Info().Int("groups", len(t.GroupIDs)).Msg("Fetching market group info")

	groups := make([]store.MarketGroup, 0, len(t.GroupIDs))
	var typeIDs []int64
	for _, groupID := range t.GroupIDs {
		info, err := t.Global.FetchMarketGroup(ctx, w.Session(), groupID)
		if err != nil {
			w.Log().Warn().Err(err).Int64("group_id", groupID).Msg("Skipping market group")
			continue
		}
		groups = append(groups, toStoreMarketGroup(info))
		typeIDs = append(typeIDs, info.Types...)
	}

	if err := w.Store().AddMarketGroupInfo(ctx, groups); err != nil {
		return err
	}
	for chunk := range slices.Chunk(typeIDs, ChunkSize) {
		p.Enqueue(UpdateTypeInfo{Global: t.Global, TypeIDs: chunk})
	}
	return nil
}

// UpdateTypeInfo stores the info of a chunk of item types.
type UpdateTypeInfo struct {
	Global  *client.GlobalAPI
	TypeIDs []int64
}

// Execute implements worker.Task.
func (t UpdateTypeInfo) Execute(ctx context.Context, p *worker.Pool, w *worker.Worker) error {
	types := make([]store.ItemType, 0, len(t.TypeIDs))
	for _, typeID := range t.TypeIDs {
		info, err := t.Global.FetchType(ctx, w.Session(), typeID)
		if err != nil {
			w.Log().Warn().Err(err).Int64("type_id", typeID).Msg("Skipping item type")
			continue
		}
		types = append(types, store.ItemType{
			ID:            info.TypeID,
			Name:          info.Name,
			MarketGroupID: info.MarketGroupID,
		})
	}
	return w.Store().AddTypeInfo(ctx, types)
}

// RebuildTypeList replaces the item type list with the union of every
// stored market group's types, in group order.
func RebuildTypeList(ctx context.Context, s *store.Store) ([]int64, error) {
	groupIDs, err := s.GetGroups(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var typeIDs []int64
	for _, groupID := range groupIDs {
		ids, err := s.GetGroupTypes(ctx, groupID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			typeIDs = append(typeIDs, id)
		}
	}

	if err := s.SetTypes(ctx, typeIDs); err != nil {
		return nil, err
	}
	return typeIDs, nil
}
