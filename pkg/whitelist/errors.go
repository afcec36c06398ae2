package whitelist

import "errors"

var (
	ErrInvalidRule       = errors.New("invalid whitelist rule")
	ErrInvalidConstraint = errors.New("invalid version constraint")
	ErrNoWhitelistDir    = errors.New("whitelist directory not found")
)
