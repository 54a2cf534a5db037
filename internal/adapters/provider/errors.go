package provider

import "errors"

// Sentinel kinds for provider errors. Callers decide retryability with
// retry.IsPermanent; the constructors in this package already wrap
// permanent conditions.
var (
	ErrSessionNotFound = errors.New("session not found upstream")
	ErrEventNotFound   = errors.New("event not found upstream")
	ErrNotFound        = errors.New("upstream returned not found")
	ErrUpstream        = errors.New("upstream unavailable")
	ErrBadStatus       = errors.New("unexpected upstream status")
	ErrDecode          = errors.New("decode upstream response")
)
