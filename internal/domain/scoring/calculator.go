package scoring

import (
	"strings"
	"time"

	"github.com/okian/leadrank/internal/domain/model"
)

// Factor fractions of the factor weight.
const (
	fullFraction     = 1.0
	techFraction     = 0.8
	genericFraction  = 0.6
	baselineFraction = 0.2
	seniorityFactor  = 1.2

	recentPubRelevant = 1.0
	recentPubOther    = 0.8
	olderPubFraction  = 0.5
	pubBaseline       = 0.1
	recentPubYears    = 2
	olderPubYears     = 5

	publicFraction = 0.8
	seedFraction   = 0.4

	secondaryHubFraction = 0.6
)

// Keywords are the lowercase substrings each factor matches on.
type Keywords struct {
	RolePrimary      []string
	RoleTechnology   []string
	RoleGeneric      []string
	Seniority        []string
	PublicationTopic []string
	FundingGrowth    []string
	FundingPublic    []string
	FundingEarly     []string
	PrimaryHubs      []string
	SecondaryHubs    []string
}

// DefaultKeywords returns the built-in keyword sets.
func DefaultKeywords() Keywords {
	return Keywords{
		RolePrimary:      []string{"toxicology", "toxicologist", "safety", "hepatic", "liver"},
		RoleTechnology:   []string{"3d", "in vitro", "in-vitro"},
		RoleGeneric:      []string{"scientist", "researcher", "director", "vp", "head"},
		Seniority:        []string{"director", "head", "vp", "chief", "lead", "principal"},
		PublicationTopic: []string{"dili", "liver injury", "3d", "organoid", "toxicity"},
		FundingGrowth:    []string{"series a", "series b", "series c"},
		FundingPublic:    []string{"public", "ipo"},
		FundingEarly:     []string{"seed", "early"},
		PrimaryHubs:      []string{"cambridge, ma", "boston", "bay area", "basel"},
		SecondaryHubs: []string{
			"san francisco", "south san francisco", "san diego",
			"oxford", "cambridge uk", "london", "seattle", "new jersey",
		},
	}
}

// CalculatorOption configures a Calculator.
type CalculatorOption func(*Calculator)

// WithClock sets the time source used for publication recency.
func WithClock(now func() time.Time) CalculatorOption {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithKeywords replaces the keyword sets.
func WithKeywords(k Keywords) CalculatorOption {
	return func(c *Calculator) {
		c.keywords = k
	}
}

// Calculator evaluates the four deterministic factors. It is stateless apart
// from its configuration and safe for concurrent use.
type Calculator struct {
	keywords Keywords
	now      func() time.Time
}

// NewCalculator returns a Calculator with the default keyword sets.
func NewCalculator(opts ...CalculatorOption) *Calculator {
	c := &Calculator{
		keywords: DefaultKeywords(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score returns the clamped total and the per-factor breakdown for attrs
// under w. w is assumed valid.
func (c *Calculator) Score(attrs model.Attributes, w Weights) (int, model.Breakdown) {
	b := model.Breakdown{
		RoleFit:     c.roleFit(attrs.Title, float64(w.RoleFit)),
		Publication: c.publication(attrs, float64(w.Publication)),
		Funding:     c.funding(attrs.CompanyFunding, float64(w.Funding)),
		Location:    c.location(attrs.Location, float64(w.Location)),
	}
	return b.Total(), b
}

func (c *Calculator) roleFit(title string, weight float64) float64 {
	t := normalize(title)
	if t == "" {
		return weight * baselineFraction
	}
	var score float64
	switch {
	case containsAny(t, c.keywords.RolePrimary):
		score = weight * fullFraction
	case containsAny(t, c.keywords.RoleTechnology):
		score = weight * techFraction
	case containsAny(t, c.keywords.RoleGeneric):
		score = weight * genericFraction
	default:
		score = weight * baselineFraction
	}
	if containsAny(t, c.keywords.Seniority) {
		score *= seniorityFactor
	}
	if score > weight {
		return weight
	}
	return score
}

func (c *Calculator) publication(attrs model.Attributes, weight float64) float64 {
	if !attrs.RecentPublication {
		return weight * pubBaseline
	}
	year := c.now().Year()
	switch {
	case attrs.PublicationYear >= year-recentPubYears:
		if containsAny(normalize(attrs.PublicationTitle), c.keywords.PublicationTopic) {
			return weight * recentPubRelevant
		}
		return weight * recentPubOther
	case attrs.PublicationYear >= year-olderPubYears:
		return weight * olderPubFraction
	default:
		return weight * pubBaseline
	}
}

func (c *Calculator) funding(stage string, weight float64) float64 {
	s := normalize(stage)
	switch {
	case s == "" || s == "unknown":
		return weight * baselineFraction
	case containsAny(s, c.keywords.FundingGrowth):
		return weight * fullFraction
	case containsAny(s, c.keywords.FundingPublic):
		return weight * publicFraction
	case containsAny(s, c.keywords.FundingEarly):
		return weight * seedFraction
	default:
		return weight * baselineFraction
	}
}

func (c *Calculator) location(loc string, weight float64) float64 {
	l := normalize(loc)
	switch {
	case l == "":
		return weight * baselineFraction
	case containsAny(l, c.keywords.PrimaryHubs):
		return weight * fullFraction
	case containsAny(l, c.keywords.SecondaryHubs):
		return weight * secondaryHubFraction
	default:
		return weight * baselineFraction
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
