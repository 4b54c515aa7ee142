package domain

import "fmt"

// ErrNotFound is returned when no company, template, custom layout or
// fallback applies to an identifier.
var ErrNotFound = errString("not found")

// ErrVersionConflict is returned by conditional writes when the stored
// version moved on.
var ErrVersionConflict = errString("version conflict")

type errString string

func (e errString) Error() string { return string(e) }

// MalformedConfigError reports a stored layout that failed structural
// parsing. Source names the store ("layout_template", "custom_layout").
type MalformedConfigError struct {
	Source string
	ID     string
	Err    error
}

func (e *MalformedConfigError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("malformed %s config: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("malformed %s config %q: %v", e.Source, e.ID, e.Err)
}

func (e *MalformedConfigError) Unwrap() error { return e.Err }
