package remote

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConnection is a Connection multiplexing every command as its own
// session over one SSH transport.
type SSHConnection struct {
	addr   string
	client *ssh.Client

	mu    sync.Mutex
	state State
	procs map[*SSHProcess]struct{}

	// pending counts processes that have been started (or are starting)
	// and not yet completed; graceful Close waits on it.
	pending sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Dial opens the transport described by cfg. A failure here is fatal and
// never retried.
func Dial(ctx context.Context, cfg *Config) (*SSHConnection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &SSHConnection{
		addr:  cfg.Addr(),
		state: StateConnecting,
		procs: make(map[*SSHProcess]struct{}),
	}

	clientCfg, err := cfg.clientConfig()
	if err != nil {
		return nil, &ConnectionError{Addr: c.addr, Err: err}
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	nc, err := netDialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, &ConnectionError{Addr: c.addr, Err: err}
	}

	// Bound the handshake by the same deadline as the dial.
	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(nc, c.addr, clientCfg)
	if err != nil {
		nc.Close()
		return nil, &ConnectionError{Addr: c.addr, Err: err}
	}
	_ = nc.SetDeadline(time.Time{})

	c.client = ssh.NewClient(sshConn, chans, reqs)
	c.state = StateOpen
	return c, nil
}

// Exec starts cmd in a new session. It may be called concurrently, but only
// while the connection is open.
func (c *SSHConnection) Exec(cmd string) (Process, error) {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return nil, &ExecError{Command: cmd, Err: ErrConnectionClosed}
	}
	c.pending.Add(1)
	c.mu.Unlock()

	p, err := startProcess(c.client, cmd)
	if err != nil {
		c.pending.Done()
		return nil, &ExecError{Command: cmd, Err: err}
	}

	c.mu.Lock()
	c.procs[p] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-p.Done()
		c.mu.Lock()
		delete(c.procs, p)
		c.mu.Unlock()
		c.pending.Done()
	}()

	return p, nil
}

// Close initiates shutdown; no Exec succeeds afterwards. A graceful close
// blocks until every open process has completed. Close is idempotent, and a
// forced close may cut short a graceful one that is still waiting.
func (c *SSHConnection) Close(graceful bool) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.state = StateClosing
	}
	c.mu.Unlock()

	if graceful {
		c.pending.Wait()
	}

	c.closeOnce.Do(func() {
		if c.client != nil {
			if err := c.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				c.closeErr = &ConnectionError{Addr: c.addr, Err: err}
			}
		}
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
	})
	return c.closeErr
}

// State returns the current lifecycle state
func (c *SSHConnection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OpenProcesses returns the number of processes not yet completed
func (c *SSHConnection) OpenProcesses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.procs)
}

func (c *SSHConnection) String() string {
	return "ssh://" + c.addr
}

// SSHProcess is a Process backed by one SSH session.
type SSHProcess struct {
	command string
	session *ssh.Session

	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	done   chan struct{}
	status ExitStatus
}

func startProcess(client *ssh.Client, cmd string) (*SSHProcess, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}

	p := &SSHProcess{
		command: cmd,
		session: session,
		done:    make(chan struct{}),
	}

	if p.stdin, err = session.StdinPipe(); err != nil {
		session.Close()
		return nil, err
	}
	if p.stdout, err = session.StdoutPipe(); err != nil {
		session.Close()
		return nil, err
	}
	if p.stderr, err = session.StderrPipe(); err != nil {
		session.Close()
		return nil, err
	}

	if err := session.Start(cmd); err != nil {
		session.Close()
		return nil, err
	}

	go p.wait()
	return p, nil
}

// wait is the only writer of status and the only closer of done.
func (p *SSHProcess) wait() {
	p.status = exitStatusFromErr(p.session.Wait())
	_ = p.session.Close()
	close(p.done)
}

func exitStatusFromErr(err error) ExitStatus {
	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		return ExitStatus{}
	case errors.As(err, &exitErr):
		return ExitStatus{Code: exitErr.ExitStatus(), Signal: exitErr.Signal()}
	default:
		// *ssh.ExitMissingError or a transport error
		return ExitStatus{Code: -1, Missing: true}
	}
}

func (p *SSHProcess) Command() string        { return p.command }
func (p *SSHProcess) Stdin() io.WriteCloser  { return p.stdin }
func (p *SSHProcess) Stdout() io.Reader      { return p.stdout }
func (p *SSHProcess) Stderr() io.Reader      { return p.stderr }
func (p *SSHProcess) Done() <-chan struct{}  { return p.done }
func (p *SSHProcess) ExitStatus() ExitStatus { <-p.done; return p.status }

// Signal delivers sig to the remote process. Once the process has completed
// nothing is sent and Signal returns nil.
func (p *SSHProcess) Signal(sig string) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	err := p.session.Signal(ssh.Signal(sig))
	if errors.Is(err, io.EOF) {
		// The channel closed between the check above and the request.
		return nil
	}
	return err
}

// Ensure the SSH types implement the remote interfaces.
var (
	_ Connection = (*SSHConnection)(nil)
	_ Process    = (*SSHProcess)(nil)
)

// SSHDialer dials SSH connections from a fixed Config.
type SSHDialer struct {
	Config *Config
}

// Dial implements Dialer
func (d SSHDialer) Dial(ctx context.Context) (Connection, error) {
	c, err := Dial(ctx, d.Config)
	if err != nil {
		return nil, err
	}
	return c, nil
}
