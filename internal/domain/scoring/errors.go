package scoring

import "errors"

// Sentinel errors for scoring configuration.
var (
	ErrInvalidWeightConfig = errors.New("invalid weight config")
)
