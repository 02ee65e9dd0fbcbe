// Package role builds prompts for and parses responses from the model
// roles the control loop plays: actor, summarizer, verifier, selector,
// and editor. Each role wraps a backend.Client and owns its prompt
// template and output grammar.
package role

import (
	"errors"
	"fmt"
)

// ParseError reports that a role's output did not match its grammar
// after all in-call reattempts.
type ParseError struct {
	Role   string
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Role, e.Reason)
}

// IsParseError reports whether err is a role output parse failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
