package ranking

import "errors"

// ErrRecomputeFailed is returned when a scope could not be re-ranked within
// the attempt limit. The scope keeps its previous complete ranking.
var ErrRecomputeFailed = errors.New("rank recompute failed")
