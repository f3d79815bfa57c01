package service

import "errors"

// ErrMissingOwner is returned when an operation is called without a scope.
var ErrMissingOwner = errors.New("owner id is required")

// ErrEmptyImport is returned for imports and bulk creates without leads.
var ErrEmptyImport = errors.New("import has no leads")

// ErrEmptyBulk is returned for bulk operations without IDs.
var ErrEmptyBulk = errors.New("bulk operation has no ids")
