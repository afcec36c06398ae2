package ticket

import (
	"errors"
	"fmt"
)

// ErrHistoryCorrupt is returned when a persisted ticket cannot be read back.
var ErrHistoryCorrupt = errors.New("history corrupt")

// CorruptTicketError describes a persisted ticket that cannot be parsed back into its
// identity.
type CorruptTicketError struct {
	Path   string
	Reason string
}

func (e *CorruptTicketError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %s", ErrHistoryCorrupt, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrHistoryCorrupt, e.Path, e.Reason)
}

func (e *CorruptTicketError) Unwrap() error { return ErrHistoryCorrupt }

func corrupt(format string, args ...any) error {
	return &CorruptTicketError{Reason: fmt.Sprintf(format, args...)}
}
