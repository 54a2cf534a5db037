package layout

import "errors"

// ErrUnknownArtifact is returned for an artifact kind without a path rule.
var ErrUnknownArtifact = errors.New("unknown artifact kind")
