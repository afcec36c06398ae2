package lifecycle

import (
	"errors"
	"fmt"

	"github.com/venslabs/roundup/pkg/ticket"
)

// ErrIdentityCollision is returned when unrelated packages map to one ticket identity.
var ErrIdentityCollision = errors.New("identity collision")

// CollisionError names the identity and the conflicting package sources.
type CollisionError struct {
	Identity ticket.Identity
	Channel  string
	// Sources holds the two conflicting derivations or attribute paths.
	Sources [2]string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("%v: %s on %s is provided by both %s and %s",
		ErrIdentityCollision, e.Identity, e.Channel, e.Sources[0], e.Sources[1])
}

func (e *CollisionError) Unwrap() error { return ErrIdentityCollision }
