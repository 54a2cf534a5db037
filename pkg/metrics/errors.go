package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrEmptyPath    = errors.New("metrics textfile path is empty")
	ErrExportFailed = errors.New("metrics export failed")
)
