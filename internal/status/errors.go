package status

import "fmt"

// ParseError reports malformed status or queue file content.
// It is always surfaced to the caller; only an absent summary section decodes silently.
type ParseError struct {
	// Source names what was being parsed, usually a file path
	Source string

	// Line is the 1-based line number, or 0 when not applicable
	Line int

	// Msg describes what was wrong
	Msg string

	// Err is the underlying cause, if any
	Err error
}

func (e *ParseError) Error() string {
	loc := e.Source
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Source, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", loc, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
