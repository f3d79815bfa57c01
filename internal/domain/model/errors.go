package model

import "errors"

// Sentinel errors shared by repositories and services.
var (
	ErrNotFound     = errors.New("lead not found")
	ErrInvalidLead  = errors.New("invalid lead")
	ErrRankConflict = errors.New("rank conflict: scope changed since snapshot")
)
