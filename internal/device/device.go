// Package device drives a remote device through ordered, fail-fast
// pipelines over a single connection: deploying a script, scanning and
// configuring wireless networks, and restarting the discovery services.
//
// Every pipeline runs on the caller's goroutine. Remote steps are issued one
// at a time, each only after the previous step's completion. Helper
// goroutines only pump process streams. Any failure leaves through a single
// abort path that signals the active process and force-closes the
// connection exactly once.
package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mfittko/devicectl/internal/bundle"
	"github.com/mfittko/devicectl/internal/remote"
)

// Logger is the line-oriented progress sink the pipelines report to.
// Implementations must not block and never fail.
type Logger interface {
	Info(args ...interface{})
	Err(args ...interface{})
	Debug(args ...interface{})
}

// Options configures a Device. Zero fields take defaults.
type Options struct {
	Packager bundle.Packager
	Logger   Logger
	// Stdout receives the deployed script's output, line by line.
	Stdout io.Writer
	// Stderr receives remote stderr that is relayed verbatim.
	Stderr io.Writer
}

// Device runs pipelines against one remote device. Each pipeline dials its
// own connection and closes it before returning.
type Device struct {
	dialer   remote.Dialer
	packager bundle.Packager
	log      Logger
	stdout   io.Writer
	stderr   io.Writer
	runID    func() string
}

// New creates a Device that connects through dialer.
func New(dialer remote.Dialer, opts Options) *Device {
	d := &Device{
		dialer:   dialer,
		packager: opts.Packager,
		log:      opts.Logger,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		runID:    newRunID,
	}
	if d.packager == nil {
		d.packager = bundle.TarPackager{}
	}
	if d.log == nil {
		d.log = nopLogger{}
	}
	if d.stdout == nil {
		d.stdout = os.Stdout
	}
	if d.stderr == nil {
		d.stderr = os.Stderr
	}
	return d
}

func newRunID() string {
	return uuid.NewString()[:8]
}

type nopLogger struct{}

func (nopLogger) Info(...interface{})  {}
func (nopLogger) Err(...interface{})   {}
func (nopLogger) Debug(...interface{}) {}

// session is one pipeline invocation's hold on a connection.
type session struct {
	d      *Device
	op     string
	runID  string
	conn   remote.Connection
	active remote.Process
	closed bool
}

// open dials a fresh connection for op.
func (d *Device) open(ctx context.Context, op string) (*session, error) {
	s := &session{d: d, op: op, runID: d.runID()}
	s.debug("dialing")

	conn, err := d.dialer.Dial(ctx)
	if err != nil {
		d.log.Err(fmt.Sprintf("%s: %v", op, err))
		return nil, err
	}
	s.conn = conn
	s.debug("connected")
	return s, nil
}

func (s *session) debug(args ...interface{}) {
	s.d.log.Debug(append([]interface{}{"[" + s.runID + "]", s.op + ":"}, args...)...)
}

// exec starts cmd as the session's active process.
func (s *session) exec(step, cmd string) (remote.Process, error) {
	s.debug(step, "exec", cmd)
	proc, err := s.conn.Exec(cmd)
	if err != nil {
		return nil, s.fail(step, err)
	}
	s.active = proc
	return proc, nil
}

// await blocks until proc completes or ctx ends. A context end aborts.
func (s *session) await(ctx context.Context, step string, proc remote.Process) (remote.ExitStatus, error) {
	select {
	case <-proc.Done():
		status := proc.ExitStatus()
		s.debug(step, status)
		if s.active == proc {
			s.active = nil
		}
		return status, nil
	case <-ctx.Done():
		return remote.ExitStatus{}, s.fail(step, ctx.Err())
	}
}

// run executes one step to completion. Stderr is captured for the failure
// report and copied to relay when it is non-nil. A non-zero exit aborts.
func (s *session) run(ctx context.Context, step, cmd string, relay io.Writer) error {
	proc, err := s.exec(step, cmd)
	if err != nil {
		return err
	}

	var errBuf bytes.Buffer
	var stderr io.Writer = &errBuf
	if relay != nil {
		stderr = io.MultiWriter(&errBuf, relay)
	}
	drained := drain(proc, nil, stderr)

	status, err := s.await(ctx, step, proc)
	if err != nil {
		return err
	}
	drained()

	if !status.Success() {
		return s.fail(step, &RemoteFailure{
			Step:    step,
			Command: cmd,
			Status:  status,
			Stderr:  strings.TrimSpace(errBuf.String()),
		})
	}
	return nil
}

// fail is the single abort path. It logs err against step, kills the active
// process and force-closes the connection. Only the first call has effect
// on the remote side.
func (s *session) fail(step string, err error) error {
	if !isStepError(err) {
		err = fmt.Errorf("%s: %w", step, err)
	}
	s.d.log.Err(err)

	if s.closed {
		return err
	}
	s.closed = true

	if s.active != nil {
		if sigErr := s.active.Signal("KILL"); sigErr != nil {
			s.debug(step, "signal:", sigErr)
		}
		s.active = nil
	}
	if closeErr := s.conn.Close(false); closeErr != nil {
		s.debug(step, "close:", closeErr)
	}
	return err
}

// close ends a successful pipeline, letting any still-open process finish.
func (s *session) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.debug("closing")
	return s.conn.Close(true)
}

// drain copies proc's streams concurrently so the remote side never stalls
// on a full window. The returned func blocks until both reach EOF.
func drain(proc remote.Process, stdout, stderr io.Writer) func() {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(stdout, proc.Stdout())
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(stderr, proc.Stderr())
	}()
	return wg.Wait
}

// logWriter relays each chunk written to it as one error log line.
type logWriter struct {
	log Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimRight(string(p), "\r\n"); msg != "" {
		w.log.Err(msg)
	}
	return len(p), nil
}
