package enrichment

import "errors"

// ErrEnrichmentTimeout is logged when a subject's lookups outlive the
// enrichment timeout. Items that did not finish contribute nothing.
var ErrEnrichmentTimeout = errors.New("enrichment timed out")
