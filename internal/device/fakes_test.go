package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mfittko/devicectl/internal/bundle"
	"github.com/mfittko/devicectl/internal/remote"
)

// reply scripts how the fake device answers one command.
type reply struct {
	stdout  string
	stderr  []string
	code    int
	hang    bool
	execErr error
}

type fakeStdin struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (s *fakeStdin) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.buf.Write(p)
}

func (s *fakeStdin) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStdin) snapshot() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String(), s.closed
}

// chunkReader returns one chunk per Read.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

type fakeProcess struct {
	mu      sync.Mutex
	command string
	stdin   *fakeStdin
	stdout  io.Reader
	stderr  io.Reader
	done    chan struct{}
	once    sync.Once
	status  remote.ExitStatus
	signals []string
}

func (p *fakeProcess) finish(status remote.ExitStatus) {
	p.once.Do(func() {
		p.mu.Lock()
		p.status = status
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *fakeProcess) Command() string       { return p.command }
func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *fakeProcess) Stdout() io.Reader     { return p.stdout }
func (p *fakeProcess) Stderr() io.Reader     { return p.stderr }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) ExitStatus() remote.ExitStatus {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakeProcess) Signal(sig string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return nil
}

func (p *fakeProcess) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.signals...)
}

// fakeConnection answers commands from a reply table. Commands it has no
// reply for succeed silently.
type fakeConnection struct {
	mu      sync.Mutex
	replies map[string]reply
	onExec  func(cmd string)
	state   remote.State
	execs   []string
	procs   []*fakeProcess
	closes  []bool
}

func newFakeConnection(replies map[string]reply) *fakeConnection {
	return &fakeConnection{replies: replies, state: remote.StateOpen}
}

func (c *fakeConnection) Exec(cmd string) (remote.Process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != remote.StateOpen {
		return nil, &remote.ExecError{Command: cmd, Err: remote.ErrConnectionClosed}
	}
	c.execs = append(c.execs, cmd)
	if c.onExec != nil {
		c.onExec(cmd)
	}

	r := c.replies[cmd]
	if r.execErr != nil {
		return nil, &remote.ExecError{Command: cmd, Err: r.execErr}
	}

	p := &fakeProcess{
		command: cmd,
		stdin:   &fakeStdin{},
		stdout:  strings.NewReader(r.stdout),
		stderr:  &chunkReader{chunks: append([]string(nil), r.stderr...)},
		done:    make(chan struct{}),
	}
	c.procs = append(c.procs, p)
	if !r.hang {
		p.finish(remote.ExitStatus{Code: r.code})
	}
	return p, nil
}

func (c *fakeConnection) Close(graceful bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes = append(c.closes, graceful)
	c.state = remote.StateClosed
	for _, p := range c.procs {
		p.finish(remote.ExitStatus{Missing: true})
	}
	return nil
}

func (c *fakeConnection) State() remote.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConnection) executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

func (c *fakeConnection) closed() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.closes...)
}

func (c *fakeConnection) process(cmd string) *fakeProcess {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.procs {
		if p.command == cmd {
			return p
		}
	}
	return nil
}

type fakeDialer struct {
	conn  *fakeConnection
	err   error
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context) (remote.Connection, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type fakePackager struct {
	payload *bundle.Payload
	err     error
	calls   int
}

func (p *fakePackager) Package(entryPoint string, opts bundle.Options) (*bundle.Payload, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.payload, nil
}

type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errs   []string
	debugs []string
}

func line(args []interface{}) string {
	return strings.TrimRight(fmt.Sprintln(args...), "\n")
}

func (l *recordingLogger) Info(args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, line(args))
}

func (l *recordingLogger) Err(args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, line(args))
}

func (l *recordingLogger) Debug(args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, line(args))
}

func (l *recordingLogger) errLines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errs...)
}

func (l *recordingLogger) infoLines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.infos...)
}

// testDevice wires a Device to fakes and returns its captured streams.
func testDevice(conn *fakeConnection, pkg bundle.Packager) (*Device, *fakeDialer, *recordingLogger, *bytes.Buffer, *bytes.Buffer) {
	dialer := &fakeDialer{conn: conn}
	log := &recordingLogger{}
	var stdout, stderr bytes.Buffer
	d := New(dialer, Options{
		Packager: pkg,
		Logger:   log,
		Stdout:   &stdout,
		Stderr:   &stderr,
	})
	d.runID = func() string { return "test" }
	return d, dialer, log, &stdout, &stderr
}
