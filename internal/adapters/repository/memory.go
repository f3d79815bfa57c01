package repository

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/pkg/metrics"
)

type scope struct {
	version int64
	ids     map[string]struct{}
}

// MemoryStore is an in-process Store. A single lock covers all scopes, so
// every write including ApplyRanks is atomic.
type MemoryStore struct {
	mu     sync.RWMutex
	leads  map[string]model.Lead
	scopes map[string]*scope
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads:  make(map[string]model.Lead),
		scopes: make(map[string]*scope),
	}
}

func (s *MemoryStore) scopeFor(owner string) *scope {
	sc, ok := s.scopes[owner]
	if !ok {
		sc = &scope{ids: make(map[string]struct{})}
		s.scopes[owner] = sc
	}
	return sc
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, lead model.Lead) error {
	return s.CreateMany(ctx, []model.Lead{lead})
}

// CreateMany implements Store.
func (s *MemoryStore) CreateMany(_ context.Context, leads []model.Lead) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(leads))
	for _, l := range leads {
		if _, ok := s.leads[l.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateLead, l.ID)
		}
		if _, ok := seen[l.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateLead, l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	bumped := make(map[string]struct{})
	for _, l := range leads {
		l.Rank = nil
		s.leads[l.ID] = clone(l)
		sc := s.scopeFor(l.OwnerID)
		sc.ids[l.ID] = struct{}{}
		if _, ok := bumped[l.OwnerID]; !ok {
			sc.version++
			bumped[l.OwnerID] = struct{}{}
		}
	}
	metrics.UpdateTotalLeads(len(s.leads))
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, owner, id string) (model.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok || l.OwnerID != owner {
		return model.Lead{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return clone(l), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, lead model.Lead) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.leads[lead.ID]
	if !ok || cur.OwnerID != lead.OwnerID {
		return fmt.Errorf("%w: %s", model.ErrNotFound, lead.ID)
	}
	lead.Rank = cur.Rank
	lead.CreatedAt = cur.CreatedAt
	s.leads[lead.ID] = clone(lead)
	s.scopeFor(lead.OwnerID).version++
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.leads[id]
	if !ok || cur.OwnerID != owner {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	delete(s.leads, id)
	sc := s.scopeFor(owner)
	delete(sc.ids, id)
	sc.version++
	metrics.UpdateTotalLeads(len(s.leads))
	return nil
}

// BulkDelete implements Store.
func (s *MemoryStore) BulkDelete(_ context.Context, owner string, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []string
	for _, id := range ids {
		cur, ok := s.leads[id]
		if !ok || cur.OwnerID != owner {
			continue
		}
		delete(s.leads, id)
		delete(s.scopes[owner].ids, id)
		deleted = append(deleted, id)
	}
	if len(deleted) > 0 {
		s.scopes[owner].version++
		metrics.UpdateTotalLeads(len(s.leads))
	}
	return deleted, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, owner string) ([]model.Lead, error) {
	snap, err := s.Snapshot(ctx, owner)
	if err != nil {
		return nil, err
	}
	SortForDisplay(snap.Leads)
	return snap.Leads, nil
}

// Snapshot implements Store.
func (s *MemoryStore) Snapshot(_ context.Context, owner string) (model.ScopeSnapshot, error) {
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := model.ScopeSnapshot{OwnerID: owner}
	sc, ok := s.scopes[owner]
	if !ok {
		return snap, nil
	}
	snap.Version = sc.version
	snap.Leads = make([]model.Lead, 0, len(sc.ids))
	for id := range sc.ids {
		snap.Leads = append(snap.Leads, clone(s.leads[id]))
	}
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	return snap, nil
}

// ApplyRanks implements Store.
func (s *MemoryStore) ApplyRanks(_ context.Context, owner string, version int64, ranks []model.RankAssignment) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scopeFor(owner)
	if sc.version != version {
		return fmt.Errorf("%w: scope %s at version %d, ranks computed at %d", model.ErrRankConflict, owner, sc.version, version)
	}
	if !coversScope(sc.ids, ranks) {
		return fmt.Errorf("%w: assignments do not cover scope %s", model.ErrRankConflict, owner)
	}
	for _, r := range ranks {
		l := s.leads[r.LeadID]
		rank := r.Rank
		l.Rank = &rank
		s.leads[r.LeadID] = l
	}
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// Owners implements Store.
func (s *MemoryStore) Owners(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owners := make([]string, 0, len(s.scopes))
	for owner, sc := range s.scopes {
		if len(sc.ids) > 0 {
			owners = append(owners, owner)
		}
	}
	sort.Strings(owners)
	return owners, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// SortForDisplay orders leads by rank, with unranked leads last, oldest
// first.
func SortForDisplay(leads []model.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		a, b := leads[i], leads[j]
		switch {
		case a.Rank != nil && b.Rank != nil:
			return *a.Rank < *b.Rank
		case a.Rank != nil:
			return true
		case b.Rank != nil:
			return false
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ID < b.ID
		}
	})
}

func clone(l model.Lead) model.Lead {
	if l.Rank != nil {
		r := *l.Rank
		l.Rank = &r
	}
	if l.Breakdown.ScientificIntentAI != nil {
		v := *l.Breakdown.ScientificIntentAI
		l.Breakdown.ScientificIntentAI = &v
	}
	l.Breakdown.Weights = maps.Clone(l.Breakdown.Weights)
	return l
}
