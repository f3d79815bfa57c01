package scoring

import (
	"fmt"
	"strings"

	"github.com/okian/leadrank/internal/domain/model"
)

const notAvailable = "N/A"

// Explain renders a human readable account of r for lead. Factor maxima
// come from the weights r was scored under when it records them.
func (s *Service) Explain(lead model.Lead, r Result) string {
	a := lead.Attributes
	w := s.weights
	if r.Breakdown.Weights != nil {
		if scored, err := ParseWeights(r.Breakdown.Weights); err == nil {
			w = scored
		}
	}
	var sb strings.Builder

	fmt.Fprintf(&sb, "Lead Score: %d/100 (%s Priority)\n\n", r.Total, r.Tier)
	sb.WriteString("Score Breakdown:\n")

	fmt.Fprintf(&sb, "• Role Fit: %.1f/%d points\n", r.Breakdown.RoleFit, w.RoleFit)
	fmt.Fprintf(&sb, "  - Job title: %s\n\n", orDefault(a.Title, notAvailable))

	fmt.Fprintf(&sb, "• Publication: %.1f/%d points\n", r.Breakdown.Publication, w.Publication)
	fmt.Fprintf(&sb, "  - Recent publication: %t\n", a.RecentPublication)
	year := notAvailable
	if a.PublicationYear > 0 {
		year = fmt.Sprint(a.PublicationYear)
	}
	fmt.Fprintf(&sb, "  - Year: %s\n\n", year)

	fmt.Fprintf(&sb, "• Funding: %.1f/%d points\n", r.Breakdown.Funding, w.Funding)
	fmt.Fprintf(&sb, "  - Company stage: %s\n\n", orDefault(a.CompanyFunding, "Unknown"))

	fmt.Fprintf(&sb, "• Location: %.1f/%d points\n", r.Breakdown.Location, w.Location)
	fmt.Fprintf(&sb, "  - Based in: %s\n\n", orDefault(a.Location, notAvailable))

	if r.Breakdown.ScientificIntentAI != nil {
		fmt.Fprintf(&sb, "• Scientific Intent (AI): %.1f/%.0f points\n", *r.Breakdown.ScientificIntentAI, s.bonusCap)
		sb.WriteString("  - Relevance of recent publications\n\n")
	}

	if w != s.weights {
		fmt.Fprintf(&sb, "Note: scored under earlier weights (%s); current weights are (%s). Rescore to apply them.\n\n", w, s.weights)
	}

	fmt.Fprintf(&sb, "Recommendation: %s", recommendation(r.Tier))
	return sb.String()
}

func recommendation(t model.Tier) string {
	switch t {
	case model.TierHigh:
		return "HIGH priority outreach - strong fit!"
	case model.TierMedium:
		return "Medium priority - good potential"
	default:
		return "Lower priority - consider for nurture campaign"
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
