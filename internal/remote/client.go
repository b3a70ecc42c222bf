package remote

import (
	"context"
	"fmt"
	"io"
)

// State is the lifecycle state of a Connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Connection is the minimal interface the device pipelines need from a
// remote-shell connection. It allows unit tests to provide fakes without
// talking to a real device.
type Connection interface {
	// Exec starts cmd on its own channel over the shared transport and
	// returns immediately. It fails once a close has been initiated.
	Exec(cmd string) (Process, error)

	// Close shuts the connection down. A graceful close waits for open
	// processes to complete; a forced close terminates them.
	Close(graceful bool) error

	State() State
}

// Process is one in-flight remote command.
type Process interface {
	Command() string

	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader

	// Signal asks the remote side to deliver sig (e.g. "KILL"). It does not
	// complete the process; completion still arrives through Done.
	Signal(sig string) error

	// Done is closed exactly once, when the remote side closes the command.
	Done() <-chan struct{}

	// ExitStatus is valid after Done is closed.
	ExitStatus() ExitStatus
}

// Dialer opens connections. Pipelines that own their connection dial
// through it so the transport can be swapped in tests.
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}

// ExitStatus is the completion status of a remote command.
type ExitStatus struct {
	Code   int
	Signal string
	// Missing is set when the channel closed without reporting a status,
	// e.g. because the connection was torn down.
	Missing bool
}

// Success reports whether the command exited cleanly with status 0.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == "" && !s.Missing
}

func (s ExitStatus) String() string {
	switch {
	case s.Missing:
		return "closed without exit status"
	case s.Signal != "":
		return fmt.Sprintf("killed by signal %s", s.Signal)
	default:
		return fmt.Sprintf("exit status %d", s.Code)
	}
}
