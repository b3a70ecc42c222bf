package validation

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// hostnameRegex is a pre-compiled regex for RFC 1123 hostname validation
var hostnameRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// Error represents a validation error with an actionable remediation hint
type Error struct {
	Field       string
	Value       string
	Message     string
	Remediation string
}

func (e *Error) Error() string {
	if e.Remediation != "" {
		return fmt.Sprintf("%s: %s\nRemediation: %s", e.Field, e.Message, e.Remediation)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Port validates a port number (1-65535)
func Port(field, value string) error {
	if value == "" {
		return nil // Empty values are handled by Required()
	}

	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return &Error{
			Field:       field,
			Value:       value,
			Message:     fmt.Sprintf("invalid port number: %q", value),
			Remediation: "Provide a valid port number between 1 and 65535",
		}
	}
	return nil
}

// Host validates a device address: an IPv4/IPv6 literal or an RFC 1123 hostname
func Host(field, value string) error {
	if value == "" {
		return nil // Empty values are handled by Required()
	}

	if net.ParseIP(value) != nil {
		return nil
	}

	if len(value) > 253 || !hostnameRegex.MatchString(value) {
		return &Error{
			Field:       field,
			Value:       value,
			Message:     fmt.Sprintf("invalid host: %q", value),
			Remediation: "Provide an IP address (e.g., 192.168.1.101) or hostname (e.g., tessel.local)",
		}
	}
	return nil
}

// Required validates that a field is not empty
func Required(field, value string) error {
	if value == "" {
		return &Error{
			Field:       field,
			Value:       value,
			Message:     "field is required but not set",
			Remediation: fmt.Sprintf("Set %s via config file or command-line flag", field),
		}
	}
	return nil
}

// OneOf validates that a value is one of the allowed values
func OneOf(field, value string, allowed []string) error {
	if value == "" {
		return nil // Empty values are handled by Required()
	}

	for _, a := range allowed {
		if value == a {
			return nil
		}
	}

	return &Error{
		Field:       field,
		Value:       value,
		Message:     fmt.Sprintf("invalid value: %q", value),
		Remediation: fmt.Sprintf("Must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// Errors collects multiple validation errors
type Errors []error

func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed:\n%s", strings.Join(messages, "\n"))
}

// HasErrors returns true if there are any errors
func (e Errors) HasErrors() bool {
	return len(e) > 0
}

// Collect runs the given checks and returns the failures, or nil when all pass.
func Collect(checks ...error) error {
	var errs Errors
	for _, err := range checks {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if !errs.HasErrors() {
		return nil
	}
	return errs
}
