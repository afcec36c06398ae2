package finding

import "errors"

var (
	ErrInvalidAdvisory = errors.New("invalid advisory")
	ErrInvalidPackage  = errors.New("invalid package name")
)
