package app

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/dkeye/Fanhub/internal/metrics"
	"github.com/rs/zerolog/log"
)

var (
	ErrCallNotFound      = errors.New("call not found")
	ErrNotParticipant    = errors.New("not a participant of the call")
	ErrNotCallee         = errors.New("only the callee can accept a call")
	ErrInvalidTransition = errors.New("invalid call transition")
	ErrSelfCall          = errors.New("cannot call yourself")
	ErrInvalidKind       = errors.New("invalid call kind")
	ErrBusy              = errors.New("a call between these users is already in progress")
)

// ConcurrentCallPolicy decides whether a pair of users may hold more than one
// non-terminal call at a time.
type ConcurrentCallPolicy string

const (
	AllowConcurrentCalls  ConcurrentCallPolicy = "allow"
	RejectConcurrentCalls ConcurrentCallPolicy = "reject"
)

func ParseConcurrentCallPolicy(s string) (ConcurrentCallPolicy, error) {
	switch p := ConcurrentCallPolicy(s); p {
	case AllowConcurrentCalls, RejectConcurrentCalls:
		return p, nil
	case "":
		return AllowConcurrentCalls, nil
	}
	return "", fmt.Errorf("unknown concurrent call policy %q", s)
}

// CallObserver is told about every call state change, after the tracker
// released its lock. prev is empty for a new call.
type CallObserver interface {
	OnCallTransition(prev domain.CallStatus, call domain.Call)
}

type CallTrackerOptions struct {
	Policy      ConcurrentCallPolicy
	RingTimeout time.Duration // zero disables ring expiry
	FirstID     domain.CallID
	Observer    CallObserver
	Now         func() time.Time
}

type transition struct {
	prev domain.CallStatus
	call domain.Call
}

// CallTracker owns the call session table.
type CallTracker struct {
	mu     sync.Mutex
	calls  map[domain.CallID]*domain.Call
	nextID domain.CallID

	policy      ConcurrentCallPolicy
	ringTimeout time.Duration
	observer    CallObserver
	now         func() time.Time
}

func NewCallTracker(opts CallTrackerOptions) *CallTracker {
	t := &CallTracker{
		calls:       make(map[domain.CallID]*domain.Call),
		nextID:      opts.FirstID,
		policy:      opts.Policy,
		ringTimeout: opts.RingTimeout,
		observer:    opts.Observer,
		now:         opts.Now,
	}
	if t.nextID <= 0 {
		t.nextID = 1
	}
	if t.policy == "" {
		t.policy = AllowConcurrentCalls
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

func (t *CallTracker) Policy() ConcurrentCallPolicy { return t.policy }
func (t *CallTracker) RingTimeout() time.Duration   { return t.ringTimeout }

// Start opens a ringing call from caller to callee.
func (t *CallTracker) Start(caller, callee domain.UserID, kind domain.CallKind, callerConn string) (domain.Call, error) {
	if !caller.Valid() || !callee.Valid() {
		return domain.Call{}, ErrNotParticipant
	}
	if caller == callee {
		return domain.Call{}, ErrSelfCall
	}
	if !kind.Valid() {
		return domain.Call{}, ErrInvalidKind
	}

	t.mu.Lock()
	if t.policy == RejectConcurrentCalls {
		for _, c := range t.calls {
			if !c.Status.Terminal() && c.Involves(caller) && c.Involves(callee) {
				t.mu.Unlock()
				return domain.Call{}, ErrBusy
			}
		}
	}
	call := &domain.Call{
		ID:         t.nextID,
		CallerID:   caller,
		CalleeID:   callee,
		Kind:       kind,
		Status:     domain.CallRinging,
		CallerConn: callerConn,
		CreatedAt:  t.now(),
	}
	t.nextID++
	t.calls[call.ID] = call
	snap := *call
	t.mu.Unlock()

	t.notify([]transition{{prev: "", call: snap}})
	log.Info().Str("module", "app.calls").Int64("call", int64(snap.ID)).Int64("caller", int64(caller)).Int64("callee", int64(callee)).Str("kind", string(kind)).Msg("call started")
	return snap, nil
}

// Accept moves a ringing call to accepted. Only the callee may accept.
func (t *CallTracker) Accept(id domain.CallID, by domain.UserID, conn string) (domain.Call, error) {
	return t.apply(id, by, func(c *domain.Call) error {
		if by != c.CalleeID {
			return ErrNotCallee
		}
		if !domain.CanTransition(c.Status, domain.CallAccepted) {
			return ErrInvalidTransition
		}
		c.Status = domain.CallAccepted
		c.CalleeConn = conn
		c.AcceptedAt = t.now()
		return nil
	})
}

// Reject refuses a ringing call. Either party may reject.
func (t *CallTracker) Reject(id domain.CallID, by domain.UserID) (domain.Call, error) {
	return t.apply(id, by, func(c *domain.Call) error {
		if !domain.CanTransition(c.Status, domain.CallRejected) {
			return ErrInvalidTransition
		}
		c.Status = domain.CallRejected
		c.EndReason = domain.EndRejected
		c.EndedBy = by
		c.EndedAt = t.now()
		return nil
	})
}

// End hangs up a ringing or accepted call.
func (t *CallTracker) End(id domain.CallID, by domain.UserID) (domain.Call, error) {
	return t.apply(id, by, func(c *domain.Call) error {
		if !domain.CanTransition(c.Status, domain.CallEnded) {
			return ErrInvalidTransition
		}
		t.endLocked(c, by, domain.EndHangup)
		return nil
	})
}

func (t *CallTracker) apply(id domain.CallID, by domain.UserID, fn func(c *domain.Call) error) (domain.Call, error) {
	t.mu.Lock()
	c, ok := t.calls[id]
	if !ok {
		t.mu.Unlock()
		return domain.Call{}, ErrCallNotFound
	}
	if !c.Involves(by) {
		t.mu.Unlock()
		return domain.Call{}, ErrNotParticipant
	}
	prev := c.Status
	if err := fn(c); err != nil {
		snap := *c
		t.mu.Unlock()
		return snap, err
	}
	snap := *c
	t.mu.Unlock()

	t.notify([]transition{{prev: prev, call: snap}})
	log.Info().Str("module", "app.calls").Int64("call", int64(id)).Int64("by", int64(by)).Str("from", string(prev)).Str("to", string(snap.Status)).Msg("call transition")
	return snap, nil
}

func (t *CallTracker) endLocked(c *domain.Call, by domain.UserID, reason domain.EndReason) {
	c.Status = domain.CallEnded
	c.EndReason = reason
	c.EndedBy = by
	c.EndedAt = t.now()
}

// Get returns a snapshot of any tracked call.
func (t *CallTracker) Get(id domain.CallID) (domain.Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok {
		return domain.Call{}, false
	}
	return *c, true
}

// Live returns a snapshot of a ringing or accepted call.
func (t *CallTracker) Live(id domain.CallID) (domain.Call, bool) {
	c, ok := t.Get(id)
	if !ok || c.Status.Terminal() {
		return domain.Call{}, false
	}
	return c, true
}

// LiveCalls lists non-terminal calls ordered by id.
func (t *CallTracker) LiveCalls() []domain.Call {
	t.mu.Lock()
	out := make([]domain.Call, 0)
	for _, c := range t.calls {
		if !c.Status.Terminal() {
			out = append(out, *c)
		}
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Abandon ends the live calls of user that depend on the closed connection
// sid. A call is ended when it is bound to sid for that user, or when it is
// not bound to any connection of the user and the user has no connection left.
func (t *CallTracker) Abandon(user domain.UserID, sid string, userOnline bool) []domain.Call {
	if !user.Valid() {
		return nil
	}
	t.mu.Lock()
	var ended []transition
	for _, c := range t.calls {
		if c.Status.Terminal() || !c.Involves(user) {
			continue
		}
		bound := c.ConnOf(user)
		if (bound != "" && bound == sid) || (bound == "" && !userOnline) {
			prev := c.Status
			t.endLocked(c, user, domain.EndDisconnect)
			ended = append(ended, transition{prev: prev, call: *c})
		}
	}
	t.mu.Unlock()

	t.notify(ended)
	out := make([]domain.Call, 0, len(ended))
	for _, tr := range ended {
		log.Info().Str("module", "app.calls").Int64("call", int64(tr.call.ID)).Int64("user", int64(user)).Msg("call abandoned")
		out = append(out, tr.call)
	}
	return out
}

// ExpireRinging ends calls ringing for longer than the ring timeout.
func (t *CallTracker) ExpireRinging() []domain.Call {
	if t.ringTimeout <= 0 {
		return nil
	}
	now := t.now()
	t.mu.Lock()
	var expired []transition
	for _, c := range t.calls {
		if c.Status == domain.CallRinging && now.Sub(c.CreatedAt) >= t.ringTimeout {
			t.endLocked(c, 0, domain.EndTimeout)
			expired = append(expired, transition{prev: domain.CallRinging, call: *c})
		}
	}
	t.mu.Unlock()

	t.notify(expired)
	out := make([]domain.Call, 0, len(expired))
	for _, tr := range expired {
		out = append(out, tr.call)
	}
	return out
}

// Prune forgets terminal calls that ended more than retention ago.
func (t *CallTracker) Prune(retention time.Duration) int {
	cutoff := t.now().Add(-retention)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, c := range t.calls {
		if c.Status.Terminal() && !c.EndedAt.After(cutoff) {
			delete(t.calls, id)
			n++
		}
	}
	return n
}

func (t *CallTracker) notify(trs []transition) {
	if len(trs) == 0 {
		return
	}
	live := 0
	t.mu.Lock()
	for _, c := range t.calls {
		if !c.Status.Terminal() {
			live++
		}
	}
	t.mu.Unlock()
	metrics.LiveCalls.Set(float64(live))

	for _, tr := range trs {
		metrics.RecordCallTransition(string(tr.prev), string(tr.call.Status))
		if t.observer != nil {
			t.observer.OnCallTransition(tr.prev, tr.call)
		}
	}
}
