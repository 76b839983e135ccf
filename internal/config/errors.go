package config

import "fmt"

// ConfigurationError reports an unusable case. Case is -1 when the problem
// is not tied to one case.
type ConfigurationError struct {
	Case   int
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Case >= 0 {
		msg = fmt.Sprintf("case %d: %s", e.Case, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "configuration: " + msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
