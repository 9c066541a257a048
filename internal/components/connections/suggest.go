package connections

import (
	"context"
	"fmt"

	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

// SuggestLimit resolves a requested pool size: non-positive values use the
// default and large values are clamped to the maximum.
func (e *Engine) SuggestLimit(requested int) int {
	if requested <= 0 {
		return e.suggest.SuggestDefaultLimit
	}
	if requested > e.suggest.SuggestMaxLimit {
		return e.suggest.SuggestMaxLimit
	}
	return requested
}

// Suggest returns up to poolLimit identities that have no record with
// selfID in any status. Candidates come from the identity universe in ID
// order; there is no ranking.
func (e *Engine) Suggest(ctx context.Context, selfID string, poolLimit int) ([]store.Snapshot, error) {
	if err := store.ValidateParticipantID(selfID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, selfID)
	}
	limit := e.SuggestLimit(poolLimit)

	excluded, err := e.related(ctx, selfID)
	if err != nil {
		return nil, err
	}

	// Excluded identities may fill whole pages, so keep paging until the
	// pool is full or the universe is exhausted.
	pageSize := limit + len(excluded)
	out := make([]store.Snapshot, 0, limit)
	after := ""
	for len(out) < limit {
		page, err := e.profiles.List(ctx, after, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list profiles: %w", err)
		}
		for _, p := range page {
			if _, skip := excluded[p.ID]; skip {
				continue
			}
			out = append(out, p.Snapshot())
			if len(out) == limit {
				break
			}
		}
		if len(page) < pageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	return out, nil
}

// related returns selfID plus every identity sharing a record with it.
func (e *Engine) related(ctx context.Context, selfID string) (map[string]struct{}, error) {
	recs, err := e.records.ListConnections(ctx, selfID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	set := make(map[string]struct{}, 2*len(recs)+1)
	set[selfID] = struct{}{}
	for _, rec := range recs {
		set[rec.UserA] = struct{}{}
		set[rec.UserB] = struct{}{}
	}
	return set, nil
}
