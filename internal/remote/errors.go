package remote

import (
	"errors"
	"fmt"
)

// ErrConnectionClosed is returned by Exec once a close has been initiated.
var ErrConnectionClosed = errors.New("connection is closing or closed")

// ConnectionError reports a transport that failed to establish or dropped.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ExecError reports a remote command that could not be started.
type ExecError struct {
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("failed to start %q: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }
