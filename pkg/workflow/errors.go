// Package workflow owns workflow instances: template registration, step
// execution, status transitions and failure policies.
package workflow

import "errors"

var (
	ErrTemplateNotFound = errors.New("workflow template not found")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrStepNotFound     = errors.New("workflow step not found")
	ErrStepNotCurrent   = errors.New("step is not the workflow's current step")
	ErrAlreadyTerminal  = errors.New("workflow already in a terminal state")

	// ErrInvalidTemplate wraps every configuration error surfaced at
	// template registration: dangling decision targets, unknown parallel
	// children, bad compensation references.
	ErrInvalidTemplate = errors.New("invalid workflow template")
)

// IsNotFound reports whether err is one of the package's not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrStepNotFound)
}

// IsConfigurationError reports whether err is a registration-time template
// configuration error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidTemplate)
}
