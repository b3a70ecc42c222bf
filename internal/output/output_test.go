package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mfittko/devicectl/internal/validation"
)

func TestNew(t *testing.T) {
	formatter := New(FormatText)
	if formatter == nil {
		t.Fatal("New() returned nil")
	}
	if formatter.Format() != FormatText {
		t.Errorf("New() format = %v, want %v", formatter.Format(), FormatText)
	}
}

func TestFormatter_PrintText(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   string
	}{
		{
			name:   "success with message",
			result: &Result{Success: true, Message: "Credentials set!"},
			want:   "Credentials set!\n",
		},
		{
			name:   "success with data",
			result: &Result{Success: true, Data: map[string]interface{}{"ssid": "home"}},
			want:   "ssid: home\n",
		},
		{
			name:   "failure with error",
			result: &Result{Success: false, Error: "Something went wrong"},
			want:   "Error: Something went wrong\n",
		},
		{
			name:   "failure without error message",
			result: &Result{Success: false},
			want:   "Command failed\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatter := New(FormatText)
			formatter.SetWriter(&buf)

			if err := formatter.Print(tt.result); err != nil {
				t.Fatalf("Print() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Print() output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatter_PrintJSON(t *testing.T) {
	var buf bytes.Buffer
	formatter := New(FormatJSON)
	formatter.SetWriter(&buf)

	result := &Result{Success: false, Error: "set-ssid failed"}
	if err := formatter.Print(result); err != nil {
		t.Fatalf("Print() error = %v", err)
	}

	var decoded Result
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Print() produced invalid JSON: %v", err)
	}
	if decoded.Success != result.Success || decoded.Error != result.Error {
		t.Errorf("JSON round trip = %+v, want %+v", decoded, result)
	}
}

func TestFormatter_PrintTable(t *testing.T) {
	type record struct {
		SSID string `json:"ssid"`
	}
	table := &Table{
		Headers: []string{"SSID", "SIGNAL"},
		Rows:    [][]string{{"office-5g", "90%"}, {"home", "50%"}},
		Records: []record{{SSID: "office-5g"}, {SSID: "home"}},
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		formatter := New(FormatText)
		formatter.SetWriter(&buf)

		if err := formatter.PrintTable(table); err != nil {
			t.Fatalf("PrintTable() error = %v", err)
		}
		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		if len(lines) != 3 {
			t.Fatalf("PrintTable() printed %d lines, want 3: %q", len(lines), buf.String())
		}
		if !strings.HasPrefix(lines[0], "SSID") || !strings.HasPrefix(lines[1], "office-5g") {
			t.Errorf("PrintTable() rows out of order: %q", lines)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		formatter := New(FormatJSON)
		formatter.SetWriter(&buf)

		if err := formatter.PrintTable(table); err != nil {
			t.Fatalf("PrintTable() error = %v", err)
		}
		var decoded []record
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("PrintTable() produced invalid JSON: %v", err)
		}
		if len(decoded) != 2 || decoded[0].SSID != "office-5g" {
			t.Errorf("PrintTable() records = %+v", decoded)
		}
	})
}

func TestFormatter_PrintValidationText(t *testing.T) {
	var buf bytes.Buffer
	formatter := New(FormatText)
	formatter.SetWriter(&buf)

	result := &ValidationResult{
		Valid: false,
		Errors: []ValidationError{
			{Field: "ssid", Message: "field is required but not set", Remediation: "Pass --ssid"},
		},
	}
	if err := formatter.PrintValidation(result); err != nil {
		t.Fatalf("PrintValidation() error = %v", err)
	}

	got := buf.String()
	for _, want := range []string{"Validation failed", "ssid", "field is required", "Remediation: Pass --ssid"} {
		if !strings.Contains(got, want) {
			t.Errorf("PrintValidation() output missing %q, got: %s", want, got)
		}
	}
}

func TestFormatter_UnsupportedFormat(t *testing.T) {
	formatter := &Formatter{
		format: Format("unsupported"),
		writer: &bytes.Buffer{},
	}

	if err := formatter.Print(&Result{Success: true}); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("Print() should return unsupported format error, got: %v", err)
	}
	if err := formatter.PrintTable(&Table{}); err == nil {
		t.Error("PrintTable() should return error for unsupported format")
	}
	if err := formatter.PrintValidation(&ValidationResult{Valid: true}); err == nil {
		t.Error("PrintValidation() should return error for unsupported format")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "text", want: FormatText},
		{input: "json", want: FormatJSON},
		{input: "xml", want: FormatText, wantErr: true},
		{input: "", want: FormatText, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				var errs validation.Errors
				if !errors.As(err, &errs) || !strings.Contains(err.Error(), "Remediation:") {
					t.Errorf("ParseFormat() error = %v, want validation errors with remediation", err)
				}
			}
			if got != tt.want {
				t.Errorf("ParseFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}
