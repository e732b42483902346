package generate

import "fmt"

// ParseError indicates a model response could not be decoded as the
// expected structure. The extracted text is kept for diagnostics.
type ParseError struct {
	Task string
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: cannot parse response: %v", e.Task, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError indicates a decoded response is missing required fields
// or has the wrong shape.
type ValidationError struct {
	Task   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid response: %s", e.Task, e.Reason)
}
