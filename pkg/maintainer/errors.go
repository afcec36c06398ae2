package maintainer

import "errors"

// ErrNotFound is returned by a Provider for an attribute path it does not know.
var ErrNotFound = errors.New("package attribute path not found")
