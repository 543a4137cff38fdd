package rules

import "errors"

var (
	ErrRuleNotFound = errors.New("rule not found")

	// ErrInvalidRule wraps every registration-time rule problem: struct
	// validation, malformed conditions, unknown action kinds, bad action
	// configs and duplicate ids.
	ErrInvalidRule = errors.New("invalid rule")
)

// IsValidationError reports whether err is a registration-time rule error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRule)
}
