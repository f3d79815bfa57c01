// Package repository persists leads and the per-owner scope versions that
// guard rank write-back.
package repository

import (
	"context"

	"github.com/okian/leadrank/internal/domain/model"
)

// Store provides whole-record access to leads, scoped by owner.
//
// Every create, update and delete bumps the owning scope's version in the
// same atomic step as the write. ApplyRanks rewrites the rank of every lead
// in a scope at once, and only if the scope is still at the version the
// ranks were computed from.
//
// Implementations that lock rows take the scope version lock before any
// lead row, in every write including ApplyRanks, and lock several scopes in
// owner order.
type Store interface {
	// Create inserts a new lead. Returns ErrDuplicateLead if the ID exists.
	Create(ctx context.Context, lead model.Lead) error
	// CreateMany inserts leads atomically.
	CreateMany(ctx context.Context, leads []model.Lead) error
	// Get returns a lead in owner's scope or model.ErrNotFound.
	Get(ctx context.Context, owner, id string) (model.Lead, error)
	// Update replaces a lead's name, attributes and score. Its rank is kept
	// until the next ApplyRanks.
	Update(ctx context.Context, lead model.Lead) error
	// Delete removes a lead from owner's scope.
	Delete(ctx context.Context, owner, id string) error
	// BulkDelete removes the listed leads of owner's scope in one write and
	// returns the IDs it deleted. IDs outside the scope are skipped. The
	// scope version moves once, and only if something was deleted.
	BulkDelete(ctx context.Context, owner string, ids []string) ([]string, error)
	// List returns owner's leads, ranked leads first by rank, then unranked
	// leads oldest first.
	List(ctx context.Context, owner string) ([]model.Lead, error)
	// Snapshot returns owner's leads together with the scope version they
	// were read at.
	Snapshot(ctx context.Context, owner string) (model.ScopeSnapshot, error)
	// ApplyRanks writes ranks for every lead in owner's scope. It fails with
	// model.ErrRankConflict if the scope moved past version or the
	// assignments do not cover the scope exactly.
	ApplyRanks(ctx context.Context, owner string, version int64, ranks []model.RankAssignment) error
	// Owners lists every owner with at least one lead.
	Owners(ctx context.Context) ([]string, error)
	// Count returns the number of stored leads.
	Count(ctx context.Context) (int, error)
	Close() error
}

// coversScope reports whether ranks name each of ids exactly once with ranks
// 1..len(ids).
func coversScope(ids map[string]struct{}, ranks []model.RankAssignment) bool {
	if len(ids) != len(ranks) {
		return false
	}
	seenID := make(map[string]struct{}, len(ranks))
	seenRank := make([]bool, len(ranks)+1)
	for _, r := range ranks {
		if _, ok := ids[r.LeadID]; !ok {
			return false
		}
		if _, dup := seenID[r.LeadID]; dup {
			return false
		}
		if r.Rank < 1 || r.Rank > len(ranks) || seenRank[r.Rank] {
			return false
		}
		seenID[r.LeadID] = struct{}{}
		seenRank[r.Rank] = true
	}
	return true
}
