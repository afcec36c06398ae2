package normalize

import "errors"

var (
	// ErrMalformedInput marks a scanner record that cannot be turned into findings.
	ErrMalformedInput = errors.New("malformed input")
	// ErrMissingArtifact is returned when a channel has no scanner output in the iteration directory.
	ErrMissingArtifact = errors.New("missing scanner artifact")
)
