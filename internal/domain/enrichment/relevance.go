package enrichment

import (
	"fmt"
	"strings"
)

// Relevance is the classifier verdict for one abstract.
type Relevance int

const (
	// Unrecognized is any classifier answer that is not one of the three levels.
	Unrecognized Relevance = iota
	Low
	Medium
	High
)

// ParseRelevance maps a raw classifier answer to a level. Surrounding
// whitespace, case and trailing punctuation are ignored; anything else is
// Unrecognized.
func ParseRelevance(s string) Relevance {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".!:;,")
	switch s {
	case "HIGH":
		return High
	case "MEDIUM":
		return Medium
	case "LOW":
		return Low
	default:
		return Unrecognized
	}
}

// Score converts the level into a bonus fraction.
func (r Relevance) Score() float64 {
	switch r {
	case High:
		return 1.0
	case Medium:
		return 0.5
	default:
		return 0.0
	}
}

func (r Relevance) String() string {
	switch r {
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	case Low:
		return "LOW"
	default:
		return "UNRECOGNIZED"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Relevance) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Relevance) UnmarshalText(b []byte) error {
	v := ParseRelevance(string(b))
	if v == Unrecognized && strings.ToUpper(strings.TrimSpace(string(b))) != "UNRECOGNIZED" {
		return fmt.Errorf("unknown relevance %q", b)
	}
	*r = v
	return nil
}
