package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mfittko/devicectl/internal/bundle"
	"github.com/mfittko/devicectl/internal/remote"
	"github.com/mfittko/devicectl/internal/validation"
)

// DeployRequest describes a script to ship and run.
type DeployRequest struct {
	// EntryPoint is the local path of the script to run on the device.
	EntryPoint string
	Verbose    bool
}

type deployState int

const (
	deployIdle deployState = iota
	deployConnecting
	deployPreparingRemote
	deployBundling
	deployUploading
	deployAwaitingUpload
	deployRunning
	deployDone
	deployFailed
)

func (s deployState) String() string {
	switch s {
	case deployIdle:
		return "idle"
	case deployConnecting:
		return "connecting"
	case deployPreparingRemote:
		return "preparing-remote"
	case deployBundling:
		return "bundling"
	case deployUploading:
		return "uploading"
	case deployAwaitingUpload:
		return "awaiting-upload"
	case deployRunning:
		return "running"
	case deployDone:
		return "done"
	case deployFailed:
		return "failed"
	default:
		return fmt.Sprintf("deploy-state(%d)", int(s))
	}
}

// deployRun holds one deploy invocation as it moves through its states.
type deployRun struct {
	d       *Device
	ctx     context.Context
	req     DeployRequest
	state   deployState
	sess    *session
	extract remote.Process
	errBuf  bytes.Buffer
	drained func()
	payload *bundle.Payload
	err     error
}

// Deploy bundles the project around req.EntryPoint, streams it into the
// device's script directory and runs it, relaying its output until it exits.
// Output on the script's stderr is fatal: the script is killed and the
// connection dropped.
func (d *Device) Deploy(ctx context.Context, req DeployRequest) error {
	if err := validation.Required("entry point", req.EntryPoint); err != nil {
		return err
	}

	r := &deployRun{d: d, ctx: ctx, req: req, state: deployIdle}
	for r.state != deployDone && r.state != deployFailed {
		next := r.step()
		if r.sess != nil {
			r.sess.debug(r.state, "->", next)
		}
		r.state = next
	}
	return r.err
}

func (r *deployRun) step() deployState {
	switch r.state {
	case deployIdle:
		return deployConnecting
	case deployConnecting:
		return r.connect()
	case deployPreparingRemote:
		return r.prepareRemote()
	case deployBundling:
		return r.bundle()
	case deployUploading:
		return r.upload()
	case deployAwaitingUpload:
		return r.awaitUpload()
	case deployRunning:
		return r.run()
	default:
		return r.abort(fmt.Errorf("no transition from %s", r.state))
	}
}

// abort is the deploy's only failure exit.
func (r *deployRun) abort(err error) deployState {
	if r.sess == nil {
		r.err = err
		return deployFailed
	}
	r.err = r.sess.fail(r.state.String(), err)
	return deployFailed
}

func (r *deployRun) connect() deployState {
	r.d.log.Info("Connecting to remote device...")
	sess, err := r.d.open(r.ctx, "deploy")
	if err != nil {
		r.err = err
		return deployFailed
	}
	r.sess = sess
	r.d.log.Info("Connected.")
	return deployPreparingRemote
}

func (r *deployRun) prepareRemote() deployState {
	r.d.log.Info("Bundling up code...")
	proc, err := r.sess.exec(r.state.String(), remote.PrepareExtractCommand())
	if err != nil {
		r.err = err
		return deployFailed
	}
	r.extract = proc
	r.drained = drain(proc, nil, &r.errBuf)
	return deployBundling
}

func (r *deployRun) bundle() deployState {
	payload, err := r.d.packager.Package(r.req.EntryPoint, bundle.Options{Runtime: true})
	if err != nil {
		return r.abort(err)
	}
	r.payload = payload
	r.d.log.Info("Bundled.")
	if r.req.Verbose {
		r.d.log.Info("Project root:", payload.Root, "entry:", payload.Entry)
	}
	return deployUploading
}

func (r *deployRun) upload() deployState {
	r.d.log.Info("Deploying code of size", r.payload.Size, "bytes ...")

	written := make(chan error, 1)
	go func() {
		stdin := r.extract.Stdin()
		_, err := stdin.Write(r.payload.Bytes)
		if closeErr := stdin.Close(); err == nil {
			err = closeErr
		}
		written <- err
	}()

	select {
	case err := <-written:
		if err != nil {
			return r.abort(fmt.Errorf("writing payload: %w", err))
		}
		return deployAwaitingUpload
	case <-r.ctx.Done():
		return r.abort(r.ctx.Err())
	}
}

func (r *deployRun) awaitUpload() deployState {
	status, err := r.sess.await(r.ctx, r.state.String(), r.extract)
	if err != nil {
		r.err = err
		return deployFailed
	}
	r.drained()

	if !status.Success() {
		return r.abort(&RemoteFailure{
			Step:    r.state.String(),
			Command: r.extract.Command(),
			Status:  status,
			Stderr:  strings.TrimSpace(r.errBuf.String()),
		})
	}
	r.d.log.Info("Deployed.")
	return deployRunning
}

// run starts the entry point and relays its output until it exits. The
// first stderr chunk ends the run.
func (r *deployRun) run() deployState {
	r.d.log.Info("Running script...")
	cmd := remote.RunScriptCommand(r.payload.Entry)
	proc, err := r.sess.exec(r.state.String(), cmd)
	if err != nil {
		r.err = err
		return deployFailed
	}

	quit := make(chan struct{})
	defer close(quit)
	lines := relayLines(proc.Stdout(), quit)
	chunks := relayChunks(proc.Stderr(), quit)
	done := proc.Done()

	for lines != nil || chunks != nil || done != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			fmt.Fprintln(r.d.stdout, line)
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			msg := strings.TrimSpace(string(chunk))
			return r.abort(&RemoteFailure{Step: r.state.String(), Command: cmd, Stderr: msg})
		case <-done:
			done = nil
		case <-r.ctx.Done():
			return r.abort(r.ctx.Err())
		}
	}

	status := proc.ExitStatus()
	r.sess.debug(r.state, status)
	if err := proc.Signal("KILL"); err != nil {
		r.sess.debug("signal:", err)
	}
	r.sess.active = nil
	if err := r.sess.close(); err != nil {
		r.d.log.Err(err)
	}

	if !status.Success() {
		r.err = &RemoteFailure{Step: r.state.String(), Command: cmd, Status: status}
		r.d.log.Err(r.err)
		return deployFailed
	}
	return deployDone
}

// relayLines delivers r line by line until EOF or quit.
func relayLines(rd io.Reader, quit <-chan struct{}) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		br := bufio.NewReader(rd)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				select {
				case out <- strings.TrimRight(line, "\r\n"):
				case <-quit:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// relayChunks delivers each read from r until EOF or quit.
func relayChunks(rd io.Reader, quit <-chan struct{}) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		buf := make([]byte, 32*1024)
		for {
			n, err := rd.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case out <- chunk:
				case <-quit:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}
