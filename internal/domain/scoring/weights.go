// Package scoring computes lead propensity scores from attributes and an
// optional relevance enrichment bonus.
package scoring

import (
	"fmt"
	"sort"
	"strings"
)

// Factor names one deterministic scoring factor.
type Factor string

// Scoring factors. The set is closed.
const (
	FactorRoleFit     Factor = "role_fit"
	FactorPublication Factor = "publication"
	FactorFunding     Factor = "funding"
	FactorLocation    Factor = "location"
)

// Factors lists every factor in evaluation order.
var Factors = []Factor{FactorRoleFit, FactorPublication, FactorFunding, FactorLocation}

// WeightTotal is the required sum of all factor weights.
const WeightTotal = 100

// Weights holds the maximum points each factor contributes.
type Weights struct {
	RoleFit     int `json:"role_fit" koanf:"role_fit"`
	Publication int `json:"publication" koanf:"publication"`
	Funding     int `json:"funding" koanf:"funding"`
	Location    int `json:"location" koanf:"location"`
}

// DefaultWeights returns the 30/40/20/10 split.
func DefaultWeights() Weights {
	return Weights{RoleFit: 30, Publication: 40, Funding: 20, Location: 10}
}

// Of returns the weight of f.
func (w Weights) Of(f Factor) int {
	switch f {
	case FactorRoleFit:
		return w.RoleFit
	case FactorPublication:
		return w.Publication
	case FactorFunding:
		return w.Funding
	case FactorLocation:
		return w.Location
	default:
		return 0
	}
}

// Map returns the weights keyed by factor name.
func (w Weights) Map() map[string]int {
	out := make(map[string]int, len(Factors))
	for _, f := range Factors {
		out[string(f)] = w.Of(f)
	}
	return out
}

// String renders the weights as factor=points pairs in evaluation order.
func (w Weights) String() string {
	parts := make([]string, len(Factors))
	for i, f := range Factors {
		parts[i] = fmt.Sprintf("%s=%d", f, w.Of(f))
	}
	return strings.Join(parts, " ")
}

// Validate rejects negative weights and sums other than WeightTotal.
func (w Weights) Validate() error {
	sum := 0
	for _, f := range Factors {
		v := w.Of(f)
		if v < 0 {
			return fmt.Errorf("%w: %s is negative (%d)", ErrInvalidWeightConfig, f, v)
		}
		sum += v
	}
	if sum != WeightTotal {
		return fmt.Errorf("%w: weights must sum to %d, got %d", ErrInvalidWeightConfig, WeightTotal, sum)
	}
	return nil
}

// ParseWeights builds Weights from a factor-name map. Every factor must be
// present; unknown names fail.
func ParseWeights(in map[string]int) (Weights, error) {
	var w Weights
	seen := make(map[Factor]bool, len(Factors))
	unknown := make([]string, 0)
	for name, v := range in {
		f := Factor(strings.ToLower(strings.TrimSpace(name)))
		switch f {
		case FactorRoleFit:
			w.RoleFit = v
		case FactorPublication:
			w.Publication = v
		case FactorFunding:
			w.Funding = v
		case FactorLocation:
			w.Location = v
		default:
			unknown = append(unknown, name)
			continue
		}
		seen[f] = true
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Weights{}, fmt.Errorf("%w: unknown factors %v", ErrInvalidWeightConfig, unknown)
	}
	for _, f := range Factors {
		if !seen[f] {
			return Weights{}, fmt.Errorf("%w: missing factor %s", ErrInvalidWeightConfig, f)
		}
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}
