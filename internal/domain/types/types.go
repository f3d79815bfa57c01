// Package types contains read shapes returned by the HTTP API and the
// filters that select them.
package types

import "github.com/okian/leadrank/internal/domain/model"

// RankEntry is one row of an owner's ranked lead list.
type RankEntry struct {
	Rank   int        `json:"rank"`
	LeadID string     `json:"lead_id"`
	Name   string     `json:"name"`
	Score  int        `json:"score"`
	Tier   model.Tier `json:"tier"`
}

// RankEntries projects leads that already carry a rank. Unranked leads are
// skipped.
func RankEntries(leads []model.Lead) []RankEntry {
	out := make([]RankEntry, 0, len(leads))
	for i := range leads {
		l := &leads[i]
		if l.Rank == nil {
			continue
		}
		out = append(out, RankEntry{Rank: *l.Rank, LeadID: l.ID, Name: l.Name, Score: l.Score, Tier: l.Tier})
	}
	return out
}

// BulkFailure names one ID a bulk operation could not apply to.
type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkResult summarizes a bulk operation over a list of IDs.
type BulkResult struct {
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Total        int           `json:"total"`
	Errors       []BulkFailure `json:"errors"`
}
