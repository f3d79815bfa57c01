package enrichment

import (
	"context"
	"strings"
)

// DefaultRelevanceKeywords drive the StaticClassifier.
var DefaultRelevanceKeywords = []string{
	"3d", "in vitro", "in-vitro", "organoid", "organ-on-chip", "organ-on-a-chip",
	"spheroid", "microphysiological", "toxicity", "toxicology", "hepatotoxicity",
	"drug-induced liver injury", "dili", "preclinical safety", "safety assessment",
}

// StaticClassifier grades abstracts by keyword hits. It is used when no
// semantic classifier is configured.
type StaticClassifier struct {
	Keywords []string
}

// Classify implements Classifier: two or more distinct hits are HIGH, one is
// MEDIUM, none is LOW.
func (s StaticClassifier) Classify(_ context.Context, text string) (Relevance, error) {
	keywords := s.Keywords
	if len(keywords) == 0 {
		keywords = DefaultRelevanceKeywords
	}
	t := strings.ToLower(text)
	hits := 0
	for _, k := range keywords {
		if strings.Contains(t, k) {
			hits++
		}
	}
	switch {
	case hits >= 2:
		return High, nil
	case hits == 1:
		return Medium, nil
	default:
		return Low, nil
	}
}
