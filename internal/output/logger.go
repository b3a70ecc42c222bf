package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	infoStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	debugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Logger writes line-oriented progress messages. INFO and DEBUG lines go to
// the output stream, ERR lines to the error stream. It never fails and is
// safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	color   bool
	verbose bool
}

// NewLogger creates a logger writing to stdout and stderr
func NewLogger() *Logger {
	return &Logger{
		out:    os.Stdout,
		errOut: os.Stderr,
		color:  true,
	}
}

// SetWriters replaces the output and error streams (useful for testing)
func (l *Logger) SetWriters(out, errOut io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
	l.errOut = errOut
}

// SetColor enables or disables styled prefixes
func (l *Logger) SetColor(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = enabled
}

// SetVerbose enables DEBUG lines
func (l *Logger) SetVerbose(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = enabled
}

// Info logs a progress line
func (l *Logger) Info(args ...interface{}) {
	l.write(false, "INFO", infoStyle, args)
}

// Err logs an error line
func (l *Logger) Err(args ...interface{}) {
	l.write(true, "ERR!", errStyle, args)
}

// Debug logs a line only in verbose mode
func (l *Logger) Debug(args ...interface{}) {
	l.mu.Lock()
	verbose := l.verbose
	l.mu.Unlock()
	if !verbose {
		return
	}
	l.write(false, "DBUG", debugStyle, args)
}

func (l *Logger) write(toErr bool, prefix string, style lipgloss.Style, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.color {
		prefix = style.Render(prefix)
	}
	w := l.out
	if toErr {
		w = l.errOut
	}
	msg := strings.TrimRight(fmt.Sprintln(args...), "\n")
	_, _ = fmt.Fprintf(w, "%s %s\n", prefix, msg)
}
