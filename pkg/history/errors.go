package history

import "errors"

var (
	// ErrIterationOrder is returned when iterations newer than the one being computed
	// are already finalized.
	ErrIterationOrder   = errors.New("iteration is older than the latest finalized iteration")
	ErrInvalidIteration = errors.New("invalid iteration number")
)
