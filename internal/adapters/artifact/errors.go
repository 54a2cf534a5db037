package artifact

import "errors"

// Sentinel errors for artifact persistence.
var (
	ErrEmptyPath  = errors.New("artifact path is empty")
	ErrEmptyTable = errors.New("refusing to write an empty table")
	ErrRaggedRow  = errors.New("row width does not match header")
)
