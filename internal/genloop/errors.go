package genloop

import "fmt"

// GenerationError wraps a failed external generator call. Stage-level retry
// handles these; the correction loop does not consume attempts on them.
type GenerationError struct {
	Attempt int
	Cause   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation call failed on attempt %d: %v", e.Attempt, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// ParseError wraps unparseable generator output on the final attempt. Earlier
// parse failures consume an attempt and trigger a corrective retry instead.
type ParseError struct {
	Attempt int
	Cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse generator output on attempt %d: %v", e.Attempt, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }
