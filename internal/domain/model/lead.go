// Package model contains domain models passed between layers.
package model

import (
	"math"
	"strings"
	"time"
)

// Tier buckets a score into an outreach priority.
type Tier string

// Priority tiers.
const (
	TierHigh     Tier = "HIGH"
	TierMedium   Tier = "MEDIUM"
	TierLow      Tier = "LOW"
	TierUnscored Tier = "UNSCORED"
)

// Tier thresholds (inclusive lower bounds).
const (
	HighTierMin   = 70
	MediumTierMin = 50
)

// TierFor returns the priority tier for a score in [0,100].
func TierFor(score int) Tier {
	switch {
	case score >= HighTierMin:
		return TierHigh
	case score >= MediumTierMin:
		return TierMedium
	default:
		return TierLow
	}
}

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// Attributes are the lead properties the deterministic factors read.
type Attributes struct {
	Title             string `json:"title,omitempty"`
	Company           string `json:"company,omitempty"`
	Location          string `json:"location,omitempty"`
	CompanyFunding    string `json:"company_funding,omitempty"`
	RecentPublication bool   `json:"recent_publication"`
	PublicationYear   int    `json:"publication_year,omitempty"`
	PublicationTitle  string `json:"publication_title,omitempty"`
}

// Breakdown is the per-factor contribution to a score. ScientificIntentAI is
// nil when no enrichment ran for the score. Weights records the factor
// weights the entries were computed under.
type Breakdown struct {
	RoleFit            float64        `json:"role_fit"`
	Publication        float64        `json:"publication"`
	Funding            float64        `json:"funding"`
	Location           float64        `json:"location"`
	ScientificIntentAI *float64       `json:"scientific_intent_ai,omitempty"`
	Weights            map[string]int `json:"weights,omitempty"`
}

// Component is one named entry of a Breakdown.
type Component struct {
	Name   string  `json:"name"`
	Points float64 `json:"points"`
}

// Breakdown component names.
const (
	ComponentRoleFit            = "role_fit"
	ComponentPublication        = "publication"
	ComponentFunding            = "funding"
	ComponentLocation           = "location"
	ComponentScientificIntentAI = "scientific_intent_ai"
)

// Components lists the breakdown entries in display order.
func (b Breakdown) Components() []Component {
	out := []Component{
		{Name: ComponentRoleFit, Points: b.RoleFit},
		{Name: ComponentPublication, Points: b.Publication},
		{Name: ComponentFunding, Points: b.Funding},
		{Name: ComponentLocation, Points: b.Location},
	}
	if b.ScientificIntentAI != nil {
		out = append(out, Component{Name: ComponentScientificIntentAI, Points: *b.ScientificIntentAI})
	}
	return out
}

// Sum adds all entries without clamping.
func (b Breakdown) Sum() float64 {
	sum := b.RoleFit + b.Publication + b.Funding + b.Location
	if b.ScientificIntentAI != nil {
		sum += *b.ScientificIntentAI
	}
	return sum
}

// Total truncates the sum toward zero and clamps it to [MinScore, MaxScore].
func (b Breakdown) Total() int {
	return ClampScore(b.Sum())
}

// ClampScore truncates v and clamps it to the score range.
func ClampScore(v float64) int {
	if math.IsNaN(v) {
		return MinScore
	}
	t := math.Trunc(v)
	if t < MinScore {
		return MinScore
	}
	if t > MaxScore {
		return MaxScore
	}
	return int(t)
}

// Lead is a prospect owned by a single scope.
type Lead struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Name       string     `json:"name"`
	Attributes Attributes `json:"attributes"`
	Score      int        `json:"score"`
	Breakdown  Breakdown  `json:"breakdown"`
	Tier       Tier       `json:"tier"`
	// Rank is nil until the lead is included in a recompute pass.
	Rank      *int      `json:"rank,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scored reports whether the lead carries a score.
func (l *Lead) Scored() bool {
	return l.Tier != "" && l.Tier != TierUnscored
}

// LeadDraft is the caller-supplied part of a lead.
type LeadDraft struct {
	Name       string     `json:"name"`
	Attributes Attributes `json:"attributes"`
}

// Validate checks the draft carries a usable subject name.
func (d LeadDraft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrInvalidLead
	}
	return nil
}

// ScopeSnapshot is a consistent read of every lead in an owner's scope
// together with the scope version it was taken at.
type ScopeSnapshot struct {
	OwnerID string
	Version int64
	Leads   []Lead
}

// RankAssignment assigns a rank to one lead.
type RankAssignment struct {
	LeadID string
	Rank   int
}

// ImportJob is a batch of drafts submitted for asynchronous creation.
type ImportJob struct {
	ID          string      `json:"import_id"`
	OwnerID     string      `json:"owner_id"`
	Leads       []LeadDraft `json:"leads"`
	Score       bool        `json:"score"`
	SubmittedAt time.Time   `json:"submitted_at"`
}
