package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mfittko/devicectl/internal/validation"
)

// Format represents the output format
type Format string

const (
	// FormatText is the default human-readable text format
	FormatText Format = "text"
	// FormatJSON is machine-readable JSON format
	FormatJSON Format = "json"
)

// ParseFormat parses a format string and validates it
func ParseFormat(s string) (Format, error) {
	if err := validation.Collect(
		validation.Required("output", s),
		validation.OneOf("output", s, []string{string(FormatText), string(FormatJSON)}),
	); err != nil {
		return FormatText, err
	}
	return Format(s), nil
}

// Formatter handles outputting command results in different formats
type Formatter struct {
	format Format
	writer io.Writer
}

// New creates a new Formatter with the specified format
func New(format Format) *Formatter {
	return &Formatter{
		format: format,
		writer: os.Stdout,
	}
}

// SetWriter sets the output writer (useful for testing)
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

// Format returns the configured format
func (f *Formatter) Format() Format {
	return f.format
}

// Result represents a command result that can be output in different formats
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Print outputs a result in the configured format
func (f *Formatter) Print(result *Result) error {
	switch f.format {
	case FormatJSON:
		return f.printJSON(result)
	case FormatText:
		return f.printText(result)
	default:
		return fmt.Errorf("unsupported output format: %s", f.format)
	}
}

// printJSON outputs the value as indented JSON
func (f *Formatter) printJSON(v interface{}) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printText outputs the result as human-readable text
func (f *Formatter) printText(result *Result) error {
	if !result.Success {
		if result.Error != "" {
			_, err := fmt.Fprintf(f.writer, "Error: %s\n", result.Error)
			return err
		}
		_, err := fmt.Fprintln(f.writer, "Command failed")
		return err
	}

	if result.Message != "" {
		_, err := fmt.Fprintln(f.writer, result.Message)
		return err
	}

	for k, v := range result.Data {
		if _, err := fmt.Fprintf(f.writer, "%s: %v\n", k, v); err != nil {
			return err
		}
	}

	return nil
}

// Table is an ordered set of rows. In JSON mode Records is encoded instead,
// so callers can keep their own field names.
type Table struct {
	Headers []string
	Rows    [][]string
	Records interface{}
}

// PrintTable outputs a table as aligned columns (text) or Records (json)
func (f *Formatter) PrintTable(t *Table) error {
	switch f.format {
	case FormatJSON:
		return f.printJSON(t.Records)
	case FormatText:
		tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
		if len(t.Headers) > 0 {
			if err := writeRow(tw, t.Headers); err != nil {
				return err
			}
		}
		for _, row := range t.Rows {
			if err := writeRow(tw, row); err != nil {
				return err
			}
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported output format: %s", f.format)
	}
}

func writeRow(w io.Writer, cells []string) error {
	for i, c := range cells {
		sep := "\t"
		if i == len(cells)-1 {
			sep = "\n"
		}
		if _, err := fmt.Fprint(w, c, sep); err != nil {
			return err
		}
	}
	return nil
}

// ValidationError represents a validation error in structured format
type ValidationError struct {
	Field       string `json:"field"`
	Value       string `json:"value,omitempty"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

// ValidationResult represents validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// PrintValidation outputs validation results
func (f *Formatter) PrintValidation(result *ValidationResult) error {
	switch f.format {
	case FormatJSON:
		return f.printJSON(result)
	case FormatText:
		if result.Valid {
			_, err := fmt.Fprintln(f.writer, "Validation passed")
			return err
		}
		_, err := fmt.Fprintln(f.writer, "Validation failed:")
		if err != nil {
			return err
		}
		for _, e := range result.Errors {
			_, err = fmt.Fprintf(f.writer, "  - %s: %s\n", e.Field, e.Message)
			if err != nil {
				return err
			}
			if e.Remediation != "" {
				_, err = fmt.Fprintf(f.writer, "    Remediation: %s\n", e.Remediation)
				if err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", f.format)
	}
}
