package device

import (
	"errors"
	"fmt"

	"github.com/mfittko/devicectl/internal/remote"
)

// RemoteFailure reports a remote step that exited abnormally or wrote to
// stderr where that is fatal.
type RemoteFailure struct {
	Step    string
	Command string
	Status  remote.ExitStatus
	Stderr  string
}

func (e *RemoteFailure) Error() string {
	msg := fmt.Sprintf("%s: %q failed", e.Step, e.Command)
	if e.Status != (remote.ExitStatus{}) {
		msg += " (" + e.Status.String() + ")"
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// ExitCode is the code a CLI should exit with for this failure.
func (e *RemoteFailure) ExitCode() int {
	if e.Status.Code > 0 {
		return e.Status.Code
	}
	return 1
}

// ProtocolError reports remote output that could not be understood.
type ProtocolError struct {
	Step string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %v", e.Step, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// isStepError reports whether err already names the step it failed in.
func isStepError(err error) bool {
	var rf *RemoteFailure
	var pe *ProtocolError
	return errors.As(err, &rf) || errors.As(err, &pe)
}
