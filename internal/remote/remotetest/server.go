// Package remotetest provides an in-process SSH server that answers exec
// requests from a handler table, for tests that need a real transport.
package remotetest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Handler runs one exec request and returns its exit status. killed is
// closed when the client sends a KILL signal.
type Handler func(stdin io.Reader, stdout, stderr io.Writer, killed <-chan struct{}) uint32

// ExitKilled makes the server report exit-signal KILL instead of a status.
const ExitKilled = 1000

// Server accepts any client without authentication. Commands with no
// handler exit 127 with a "not found" message on stderr.
type Server struct {
	addr     string
	handlers map[string]Handler

	mu      sync.Mutex
	execs   []string
	signals []string
}

// NewServer starts a server on a loopback port. It stops when t ends.
func NewServer(t testing.TB, handlers map[string]Handler) *Server {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}
	serverCfg := &ssh.ServerConfig{NoClientAuth: true}
	serverCfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	s := &Server{addr: ln.Addr().String(), handlers: handlers}
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serveConn(nc, serverCfg)
		}
	}()
	return s
}

// Addr is the server's host:port.
func (s *Server) Addr() string { return s.addr }

// HostPort splits Addr for configs that keep them apart.
func (s *Server) HostPort() (string, int) {
	host, portStr, _ := net.SplitHostPort(s.addr)
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Execs returns the commands received so far, in order.
func (s *Server) Execs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.execs...)
}

// Signals returns the signals received so far, in order.
func (s *Server) Signals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.signals...)
}

func (s *Server) serveConn(nc net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		nc.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for nch := range chans {
		if nch.ChannelType() != "session" {
			_ = nch.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := nch.Accept()
		if err != nil {
			continue
		}
		go s.serveSession(ch, requests)
	}
}

func (s *Server) serveSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	killed := make(chan struct{})
	var killOnce sync.Once

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			s.mu.Lock()
			s.execs = append(s.execs, payload.Command)
			s.mu.Unlock()

			go s.run(ch, payload.Command, killed)
		case "signal":
			var payload struct{ Signal string }
			_ = ssh.Unmarshal(req.Payload, &payload)

			s.mu.Lock()
			s.signals = append(s.signals, payload.Signal)
			s.mu.Unlock()

			if payload.Signal == "KILL" {
				killOnce.Do(func() { close(killed) })
			}
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (s *Server) run(ch ssh.Channel, cmd string, killed <-chan struct{}) {
	handler, ok := s.handlers[cmd]
	var code uint32
	if ok {
		code = handler(ch, ch, ch.Stderr(), killed)
	} else {
		fmt.Fprintf(ch.Stderr(), "sh: %s: not found\n", cmd)
		code = 127
	}

	if code == ExitKilled {
		_, _ = ch.SendRequest("exit-signal", false, ssh.Marshal(struct {
			Signal     string
			CoreDumped bool
			Error      string
			Lang       string
		}{Signal: "KILL"}))
	} else {
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{code}))
	}
	_ = ch.Close()
}
