package cache

import "strings"

// Kind names the type of cached enrichment artifact.
type Kind string

// Cached artifact kinds.
const (
	KindSearch    Kind = "search"
	KindAbstract  Kind = "abstract"
	KindRelevance Kind = "relevance"
	KindBonus     Kind = "bonus"
)

const keyPrefix = "enrichment"

// Key identifies a cached artifact by subject, item and kind. Item is empty
// for subject-level artifacts such as search results.
type Key struct {
	Subject string
	Item    string
	Kind    Kind
}

// String renders the backend key, e.g. "enrichment:sarah mitchell:3917422:abstract".
func (k Key) String() string {
	parts := []string{keyPrefix, k.Subject}
	if k.Item != "" {
		parts = append(parts, k.Item)
	}
	parts = append(parts, string(k.Kind))
	return strings.Join(parts, ":")
}
