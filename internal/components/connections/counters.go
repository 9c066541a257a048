package connections

import (
	"context"
	"fmt"
)

// CounterPolicy selects whose connection counter a transition adjusts.
type CounterPolicy string

const (
	// CounterCallerOnly adjusts only the identity performing the action.
	// The counterpart drifts until reconciled out of band.
	CounterCallerOnly CounterPolicy = "caller_only"

	// CounterBoth adjusts both participants.
	CounterBoth CounterPolicy = "both"
)

// ParseCounterPolicy accepts the config spelling; empty means caller_only.
func ParseCounterPolicy(s string) (CounterPolicy, error) {
	switch CounterPolicy(s) {
	case "", CounterCallerOnly:
		return CounterCallerOnly, nil
	case CounterBoth:
		return CounterBoth, nil
	}
	return "", fmt.Errorf("unknown counter policy %q", s)
}

// adjustCounters is the single step through which transitions touch
// counters. Each failed write is reported as a side effect; the transition
// has already committed.
func (e *Engine) adjustCounters(ctx context.Context, callerID, counterpartID string, delta int64) []*SideEffectError {
	targets := []string{callerID}
	if e.policy == CounterBoth {
		targets = append(targets, counterpartID)
	}

	var failed []*SideEffectError
	for _, id := range targets {
		if err := e.profiles.AdjustConnections(ctx, id, delta); err != nil {
			failed = append(failed, &SideEffectError{Step: StepCounter, Identity: id, Err: err})
		}
	}
	return failed
}
