package service

import "errors"

// Sentinel kinds for run failures.
var (
	ErrCatalog     = errors.New("fetch season catalog")
	ErrOutputRoot  = errors.New("write to output root")
	ErrMissingDeps = errors.New("service dependency missing")
)
