// Package connections implements the connection lifecycle between two
// identities: request, accept, reject, cancel and remove, together with the
// counter, notification and live-update side effects of each transition.
package connections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/events"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

var (
	// ErrAlreadyExists is returned by SendRequest when the pair already has
	// a record, pending or accepted.
	ErrAlreadyExists = errors.New("connection already exists")

	// ErrNotFound is returned when a mutation targets a pair with no record.
	ErrNotFound = errors.New("connection not found")

	// ErrInvalidTransition is returned when the stored state or the caller's
	// role in the record does not permit the mutation.
	ErrInvalidTransition = errors.New("invalid connection transition")

	// ErrInvalidIdentity is returned for malformed IDs and self-connections.
	ErrInvalidIdentity = errors.New("invalid identity")
)

// Side effect steps.
const (
	StepNotify  = "notify"
	StepCounter = "counter"
	StepPublish = "publish"
)

// SideEffectError reports a dependent write that failed after the record
// change committed. It is never returned as an operation error.
type SideEffectError struct {
	Step     string
	Identity string
	Err      error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("%s side effect for %s failed: %v", e.Step, e.Identity, e.Err)
}

func (e *SideEffectError) Unwrap() error { return e.Err }

// Result describes a committed transition.
type Result struct {
	// Record is the record after the transition, nil when it was deleted.
	Record *store.ConnectionRecord
	// State is the caller-relative state after the transition.
	State State
	// SideEffects lists the dependent writes that failed.
	SideEffects []*SideEffectError
}

// Profiles is the slice of the identity directory the engine needs.
type Profiles interface {
	Snapshot(ctx context.Context, id string) (store.Snapshot, error)
	List(ctx context.Context, afterID string, limit int) ([]*store.Profile, error)
	AdjustConnections(ctx context.Context, id string, delta int64) error
	SetConnections(ctx context.Context, id string, n int64) error
}

// Notifier receives the notification side effect of SendRequest.
type Notifier interface {
	ConnectionRequested(ctx context.Context, requester store.Snapshot, recipientID string) error
}

// Config tunes the engine.
type Config struct {
	CounterPolicy       CounterPolicy
	SuggestDefaultLimit int
	SuggestMaxLimit     int
}

func (c *Config) applyDefaults() {
	if c.CounterPolicy == "" {
		c.CounterPolicy = CounterCallerOnly
	}
	if c.SuggestMaxLimit <= 0 {
		c.SuggestMaxLimit = 100
	}
	if c.SuggestDefaultLimit <= 0 {
		c.SuggestDefaultLimit = 20
	}
	if c.SuggestDefaultLimit > c.SuggestMaxLimit {
		c.SuggestDefaultLimit = c.SuggestMaxLimit
	}
}

// Engine runs connection transitions against the store.
// It holds no per-pair state; concurrent calls on one pair are arbitrated
// by the store's create-if-absent and compare-and-set writes.
type Engine struct {
	records  store.ConnectionStore
	profiles Profiles
	notifier Notifier
	events   events.Publisher
	policy   CounterPolicy
	suggest  Config
	log      *slog.Logger
	now      func() time.Time
}

// New creates an engine. A nil notifier or publisher disables that side effect.
func New(records store.ConnectionStore, profiles Profiles, notifier Notifier, pub events.Publisher, cfg Config, log *slog.Logger) *Engine {
	cfg.applyDefaults()
	if pub == nil {
		pub = events.Discard{}
	}
	return &Engine{
		records:  records,
		profiles: profiles,
		notifier: notifier,
		events:   pub,
		policy:   cfg.CounterPolicy,
		suggest:  cfg,
		log:      logutil.Component(log, "connections"),
		now:      time.Now,
	}
}

// Policy returns the configured counter policy.
func (e *Engine) Policy() CounterPolicy { return e.policy }

func (e *Engine) logger(ctx context.Context) *slog.Logger {
	if l, ok := appctx.LoggerFromContext(ctx); ok {
		return l.With("component", "connections")
	}
	return e.log
}

// pairKey validates both IDs and returns their pair key.
func pairKey(currentID, otherID string) (string, error) {
	if err := store.ValidateParticipantID(currentID); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, currentID)
	}
	if err := store.ValidateParticipantID(otherID); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, otherID)
	}
	if currentID == otherID {
		return "", fmt.Errorf("%w: cannot connect %s to itself", ErrInvalidIdentity, currentID)
	}
	return store.PairKey(currentID, otherID), nil
}

// Request looks up both snapshots and sends a request from requesterID to
// targetID.
func (e *Engine) Request(ctx context.Context, requesterID, targetID string) (*Result, error) {
	if _, err := pairKey(requesterID, targetID); err != nil {
		return nil, err
	}
	requester, err := e.profiles.Snapshot(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("load requester %s: %w", requesterID, err)
	}
	target, err := e.profiles.Snapshot(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("load target %s: %w", targetID, err)
	}
	return e.SendRequest(ctx, requester, target)
}

// SendRequest creates a pending record with both snapshots embedded, then
// notifies the target. Exactly one of any number of concurrent requests for
// the same pair succeeds; the others get ErrAlreadyExists.
func (e *Engine) SendRequest(ctx context.Context, requester, target store.Snapshot) (*Result, error) {
	key, err := pairKey(requester.ID, target.ID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	a, b := store.OrderPair(requester.ID, target.ID)
	rec := &store.ConnectionRecord{
		PairKey:     key,
		UserA:       a,
		UserB:       b,
		Status:      store.StatusPending,
		RequesterID: requester.ID,
		Snapshots: map[string]store.Snapshot{
			requester.ID: requester,
			target.ID:    target,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.records.CreateConnection(ctx, rec); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, key)
		}
		return nil, fmt.Errorf("create connection %s: %w", key, err)
	}

	res := &Result{Record: rec, State: StatePendingSent}
	if e.notifier != nil {
		if err := e.notifier.ConnectionRequested(ctx, requester, target.ID); err != nil {
			res.SideEffects = append(res.SideEffects, &SideEffectError{Step: StepNotify, Identity: target.ID, Err: err})
		}
	}
	res.SideEffects = append(res.SideEffects, e.publish(ctx, requester.ID, target.ID)...)

	log := e.logger(ctx)
	e.reportSideEffects(log, "request", key, res.SideEffects)
	log.Info("connection requested", "pair_key", key, "requester_id", requester.ID, "target_id", target.ID)
	return res, nil
}

// requesterRule constrains who may perform a transition.
type requesterRule int

const (
	anyParticipant requesterRule = iota
	requesterOnly
	recipientOnly
)

type transition struct {
	name  string
	from  store.ConnectionStatus
	who   requesterRule
	to    store.ConnectionStatus // empty deletes the record
	delta int64
}

var (
	acceptTransition = transition{name: "accept", from: store.StatusPending, who: recipientOnly, to: store.StatusAccepted, delta: 1}
	rejectTransition = transition{name: "reject", from: store.StatusPending, who: recipientOnly}
	cancelTransition = transition{name: "cancel", from: store.StatusPending, who: requesterOnly}
	removeTransition = transition{name: "remove", from: store.StatusAccepted, who: anyParticipant, delta: -1}
)

func (t transition) permits(rec *store.ConnectionRecord, callerID string) error {
	if rec.Status != t.from {
		return fmt.Errorf("%w: cannot %s a %s connection", ErrInvalidTransition, t.name, rec.Status)
	}
	switch t.who {
	case requesterOnly:
		if rec.RequesterID != callerID {
			return fmt.Errorf("%w: only the requester may %s", ErrInvalidTransition, t.name)
		}
	case recipientOnly:
		if rec.RequesterID == callerID {
			return fmt.Errorf("%w: only the recipient may %s", ErrInvalidTransition, t.name)
		}
	}
	return nil
}

// Accept moves a pending request received by currentID to accepted and
// adds one to the caller's connection counter.
func (e *Engine) Accept(ctx context.Context, currentID, otherID string) (*Result, error) {
	return e.apply(ctx, acceptTransition, currentID, otherID)
}

// Reject deletes a pending request received by currentID.
func (e *Engine) Reject(ctx context.Context, currentID, otherID string) (*Result, error) {
	return e.apply(ctx, rejectTransition, currentID, otherID)
}

// Cancel deletes a pending request sent by currentID.
func (e *Engine) Cancel(ctx context.Context, currentID, otherID string) (*Result, error) {
	return e.apply(ctx, cancelTransition, currentID, otherID)
}

// Remove deletes an accepted connection and subtracts one from the caller's
// connection counter.
func (e *Engine) Remove(ctx context.Context, currentID, otherID string) (*Result, error) {
	return e.apply(ctx, removeTransition, currentID, otherID)
}

// apply reads the record, checks the transition against it, and writes
// conditionally on the state it read. Replays and lost races fail the
// condition and change nothing, counters included.
func (e *Engine) apply(ctx context.Context, t transition, currentID, otherID string) (*Result, error) {
	key, err := pairKey(currentID, otherID)
	if err != nil {
		return nil, err
	}

	rec, err := e.records.GetConnection(ctx, key)
	if err != nil {
		return nil, e.classify(err, key)
	}
	if err := t.permits(rec, currentID); err != nil {
		return nil, err
	}

	expect := store.Expect{Status: rec.Status, RequesterID: rec.RequesterID}
	if t.to == "" {
		err = e.records.DeleteConnection(ctx, key, expect)
	} else {
		err = e.records.UpdateConnectionStatus(ctx, key, expect, t.to)
	}
	if err != nil {
		return nil, e.classify(err, key)
	}

	res := &Result{}
	if t.to != "" {
		rec.Status = t.to
		rec.UpdatedAt = e.now().UTC()
		res.Record = rec
	}
	res.State = Relative(res.Record, currentID)

	if t.delta != 0 {
		res.SideEffects = append(res.SideEffects, e.adjustCounters(ctx, currentID, otherID, t.delta)...)
	}
	res.SideEffects = append(res.SideEffects, e.publish(ctx, currentID, otherID)...)

	log := e.logger(ctx)
	e.reportSideEffects(log, t.name, key, res.SideEffects)
	log.Info("connection "+t.name, "pair_key", key, "user_id", currentID, "other_id", otherID, "state", res.State)
	return res, nil
}

// classify maps store errors from a read or a lost conditional write.
func (e *Engine) classify(err error, key string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, key)
	}
	return fmt.Errorf("connection %s: %w", key, err)
}

func (e *Engine) publish(ctx context.Context, a, b string) []*SideEffectError {
	var failed []*SideEffectError
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		ev := events.Event{Identity: pair[0], Kind: events.KindConnection, Counterpart: pair[1], At: e.now().UTC()}
		if err := e.events.Publish(ctx, ev); err != nil {
			failed = append(failed, &SideEffectError{Step: StepPublish, Identity: pair[0], Err: err})
		}
	}
	return failed
}

func (e *Engine) reportSideEffects(log *slog.Logger, op, key string, failed []*SideEffectError) {
	for _, se := range failed {
		log.Warn("connection side effect failed",
			"op", op,
			"pair_key", key,
			"step", se.Step,
			"identity", se.Identity,
			"error", se.Err)
	}
}

// StatusOf returns the state of the pair as seen by currentID.
func (e *Engine) StatusOf(ctx context.Context, currentID, otherID string) (State, error) {
	key, err := pairKey(currentID, otherID)
	if err != nil {
		return StateNone, err
	}
	rec, err := e.records.GetConnection(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return StateNone, nil
	}
	if err != nil {
		return StateNone, fmt.Errorf("connection %s: %w", key, err)
	}
	return Relative(rec, currentID), nil
}

// Entry is a record as listed for one participant.
type Entry struct {
	PairKey     string         `json:"pair_key"`
	State       State          `json:"state"`
	RequesterID string         `json:"requester_id"`
	Counterpart store.Snapshot `json:"counterpart"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// List returns the records touching id, newest first. With no statuses
// given, pending and accepted records are both returned. Counterpart data
// comes from the snapshot embedded when the request was sent.
func (e *Engine) List(ctx context.Context, id string, statuses ...store.ConnectionStatus) ([]Entry, error) {
	if err := store.ValidateParticipantID(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, id)
	}
	for _, s := range statuses {
		if !s.Valid() {
			return nil, fmt.Errorf("unknown status %q", s)
		}
	}
	recs, err := e.records.ListConnections(ctx, id, statuses...)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		other := rec.Counterpart(id)
		snap, ok := rec.Snapshots[other]
		if !ok {
			snap = store.Snapshot{ID: other}
		}
		entries = append(entries, Entry{
			PairKey:     rec.PairKey,
			State:       Relative(rec, id),
			RequesterID: rec.RequesterID,
			Counterpart: snap,
			CreatedAt:   rec.CreatedAt,
			UpdatedAt:   rec.UpdatedAt,
		})
	}
	return entries, nil
}
