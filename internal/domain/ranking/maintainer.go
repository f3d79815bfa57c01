// Package ranking keeps a dense 1..N rank ordering over each owner's leads.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/pkg/logger"
	"github.com/okian/leadrank/pkg/metrics"
)

// Status is a scope's ranking state.
type Status int32

const (
	// Stale means a mutation happened since the last applied pass.
	Stale Status = iota
	// Recomputing means a pass is in progress.
	Recomputing
	// Consistent means the stored ranks match the scope's latest version.
	Consistent
)

func (s Status) String() string {
	switch s {
	case Recomputing:
		return "recomputing"
	case Consistent:
		return "consistent"
	default:
		return "stale"
	}
}

// Store is the persistence a Maintainer needs.
type Store interface {
	Snapshot(ctx context.Context, owner string) (model.ScopeSnapshot, error)
	ApplyRanks(ctx context.Context, owner string, version int64, ranks []model.RankAssignment) error
}

type scopeState struct {
	mu      sync.Mutex
	status  atomic.Int32
	dirty   atomic.Int64
	applied int64
	ranked  bool
}

// Maintainer recomputes ranks one scope at a time. Passes for the same
// scope are serialized; different scopes never contend.
type Maintainer struct {
	store          Store
	scopes         sync.Map
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         logger.Logger
}

// NewMaintainer creates a Maintainer over store.
func NewMaintainer(store Store, opts ...Option) *Maintainer {
	m := &Maintainer{
		store:          store,
		maxAttempts:    5,
		initialBackoff: 10 * time.Millisecond,
		maxBackoff:     500 * time.Millisecond,
		logger:         logger.Get().Named("ranking"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Maintainer) state(owner string) *scopeState {
	if st, ok := m.scopes.Load(owner); ok {
		return st.(*scopeState)
	}
	st, _ := m.scopes.LoadOrStore(owner, &scopeState{})
	return st.(*scopeState)
}

// MarkStale records that owner's scope changed.
func (m *Maintainer) MarkStale(owner string) {
	st := m.state(owner)
	st.dirty.Add(1)
	st.status.CompareAndSwap(int32(Consistent), int32(Stale))
}

// Status reports owner's ranking state. A scope never marked or recomputed
// is Stale. Status does not start tracking owner.
func (m *Maintainer) Status(owner string) Status {
	st, ok := m.scopes.Load(owner)
	if !ok {
		return Stale
	}
	return Status(st.(*scopeState).status.Load())
}

// Recompute re-ranks owner's scope from a fresh snapshot. A pass whose
// write-back conflicts with a concurrent mutation is retried as a whole; a
// snapshot already applied by an earlier pass is skipped.
func (m *Maintainer) Recompute(ctx context.Context, owner string) error {
	st := m.state(owner)
	st.mu.Lock()
	defer st.mu.Unlock()

	start := time.Now()
	gen := st.dirty.Load()
	st.status.Store(int32(Recomputing))

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		snap, err := m.store.Snapshot(ctx, owner)
		if err != nil {
			return struct{}{}, m.retryable(ctx, err)
		}
		if st.ranked && snap.Version == st.applied {
			metrics.RecordRankSuperseded()
			return struct{}{}, nil
		}
		err = m.store.ApplyRanks(ctx, owner, snap.Version, Assign(snap.Leads))
		if err != nil {
			if errors.Is(err, model.ErrRankConflict) {
				metrics.RecordRankConflict()
				m.logger.Debug(ctx, "rank write conflicted, retrying pass",
					logger.String("owner", owner), logger.Int("attempt", attempt), logger.Error(err))
			}
			return struct{}{}, m.retryable(ctx, err)
		}
		st.applied, st.ranked = snap.Version, true
		return struct{}{}, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = m.initialBackoff
	expo.MaxInterval = m.maxBackoff
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(m.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		st.status.Store(int32(Stale))
		metrics.RecordRankFailure()
		m.logger.Error(ctx, "rank recompute failed",
			logger.String("owner", owner), logger.Int("attempts", attempt), logger.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrRecomputeFailed, owner, err)
	}

	if st.dirty.Load() == gen {
		st.status.Store(int32(Consistent))
	} else {
		st.status.Store(int32(Stale))
	}
	metrics.RecordRankRecompute(float64(time.Since(start).Milliseconds()))
	return nil
}

func (m *Maintainer) retryable(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(err)
	}
	return err
}
