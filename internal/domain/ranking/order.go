package ranking

import (
	"sort"

	"github.com/okian/leadrank/internal/domain/model"
)

// Less orders leads for ranking: higher score first, then older, then by ID.
func Less(a, b model.Lead) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Assign returns dense ranks 1..N for leads. The input is not modified.
func Assign(leads []model.Lead) []model.RankAssignment {
	ordered := make([]model.Lead, len(leads))
	copy(ordered, leads)
	sort.Slice(ordered, func(i, j int) bool { return Less(ordered[i], ordered[j]) })
	out := make([]model.RankAssignment, len(ordered))
	for i, l := range ordered {
		out[i] = model.RankAssignment{LeadID: l.ID, Rank: i + 1}
	}
	return out
}
