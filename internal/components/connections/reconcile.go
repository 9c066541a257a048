package connections

import (
	"context"
	"fmt"

	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

// Drift is a connection counter that disagrees with the accepted records.
type Drift struct {
	ID     string `json:"id"`
	Stored int64  `json:"stored"`
	Actual int64  `json:"actual"`
}

const reconcilePageSize = 200

// ReconcileCounters recomputes every identity's connection counter from its
// accepted records. With apply set, drifted counters are overwritten.
// This is the out-of-band correction for counters left behind by the
// caller_only policy; the engine never corrects counterparts itself.
func (e *Engine) ReconcileCounters(ctx context.Context, apply bool) ([]Drift, error) {
	var drifts []Drift
	after := ""
	for {
		page, err := e.profiles.List(ctx, after, reconcilePageSize)
		if err != nil {
			return drifts, fmt.Errorf("list profiles: %w", err)
		}
		for _, p := range page {
			accepted, err := e.records.ListConnections(ctx, p.ID, store.StatusAccepted)
			if err != nil {
				return drifts, fmt.Errorf("list connections of %s: %w", p.ID, err)
			}
			actual := int64(len(accepted))
			if actual == p.Counters.Connections {
				continue
			}
			drifts = append(drifts, Drift{ID: p.ID, Stored: p.Counters.Connections, Actual: actual})
			if apply {
				if err := e.profiles.SetConnections(ctx, p.ID, actual); err != nil {
					return drifts, fmt.Errorf("set counter of %s: %w", p.ID, err)
				}
			}
		}
		if len(page) < reconcilePageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	if apply && len(drifts) > 0 {
		e.log.Info("connection counters reconciled", "corrected", len(drifts))
	}
	return drifts, nil
}
