package cache

import "errors"

// ErrOutsideRoot is returned when a unit's cache directory would resolve
// outside the configured cache root.
var ErrOutsideRoot = errors.New("cache dir escapes cache root")
