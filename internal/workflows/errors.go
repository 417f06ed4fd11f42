package workflows

import "errors"

// ErrWorkflowNotFound is returned by registry lookups for unknown ids.
var ErrWorkflowNotFound = errors.New("workflow not found")

// RequestError marks a caller mistake: a product name that does not match the
// workflow's product type, an unknown option, a wrong option type or a
// disallowed enum value. Handlers surface it as 422.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}
