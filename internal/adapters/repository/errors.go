package repository

import "errors"

// Sentinel errors for store configuration and writes. Lookups report
// model.ErrNotFound and rank write conflicts report model.ErrRankConflict.
var (
	ErrDuplicateLead     = errors.New("lead already exists")
	ErrUnsupportedDriver = errors.New("unsupported store driver")
)

// errNothingDeleted rolls back a bulk delete that matched no lead.
var errNothingDeleted = errors.New("no lead deleted")
