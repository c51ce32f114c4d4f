///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/sshfront/sshfront.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package sshfront implements the SSH front-end: permissive authentication (any password or
// "none" attempt succeeds), a single interactive session channel, and a byte pump handoff to the
// backend once the client requests a shell.
package sshfront

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"bbsgate/internal/bytepump"
	"bbsgate/internal/consoleui"
	"bbsgate/internal/encoding"
	"bbsgate/internal/geofilter"
	"bbsgate/internal/ipfilter"
	"bbsgate/internal/metrics"
	"bbsgate/internal/session"
	"bbsgate/internal/translog"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// keepAlivePeriod is applied to both the client and backend sockets.
const keepAlivePeriod = 30 * time.Second

///////////////////////////////////////////////////////////////////////////////////////////////////

// Admitter is the subset of the Supervisor's admission surface the front-end needs: a global
// connection-cap gate plus its release, the console administration surface's session listing, and
// the lifetime counters so filter-level denials and exemptions are reflected in the stats snapshot.
type Admitter interface {
	TryAdmit() bool
	Release()
	TrackSession(id, protocol, clientAddr string)
	UntrackSession(id string)
	Counters() *metrics.Counters
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Config configures a Server.
type Config struct {
	ListenAddr  string
	HostKeyPath string
	Ciphers     []string

	BackendHost string
	Ports       encoding.PortConfig

	IdleTimeout time.Duration

	IPFilter     *ipfilter.Filter
	GeoFilter    *geofilter.Filter
	BlockedSet   map[string]bool
	BlockUnknown bool

	Admitter Admitter

	TransLog translog.Config

	// OnSessionEnd, if non-nil, is called once per session with the finished Session.
	OnSessionEnd func(*session.Session)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Server runs the SSH front-end.
type Server struct {
	cfg       Config
	ln        net.Listener
	sshConfig *ssh.ServerConfig
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Listen loads the host key (generating one on first run), binds the listen address, and prepares
// the server-side SSH handshake configuration. Call Serve to begin accepting.
func Listen(cfg Config) (*Server, error) {
	signer, err := loadHostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ServerConfig{
		PasswordCallback: func(ssh.ConnMetadata, []byte) (*ssh.Permissions, error) {
			return &ssh.Permissions{Extensions: map[string]string{"auth-method": "password"}}, nil
		},
		NoClientAuth: true,
		NoClientAuthCallback: func(ssh.ConnMetadata) (*ssh.Permissions, error) {
			return &ssh.Permissions{Extensions: map[string]string{"auth-method": "none"}}, nil
		},
	}
	sshConfig.AddHostKey(signer)

	if len(cfg.Ciphers) > 0 {
		sshConfig.Config.Ciphers = cfg.Ciphers
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("LISTEN %s: %w", cfg.ListenAddr, err)
	}

	return &Server{cfg: cfg, ln: ln, sshConfig: sshConfig}, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// loadHostKey reads a PEM-encoded private key from path. A missing file generates a fresh ed25519
// key and persists it; any other read error, or a file that fails to parse, is fatal.
func loadHostKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err == nil {
		signer, perr := ssh.ParsePrivateKey(data)
		if perr != nil {
			return nil, fmt.Errorf("parse host key %s: %w", path, perr)
		}

		return signer, nil
	}

	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read host key %s: %w", path, err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal host key: %w", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8})

	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("write host key %s: %w", path, err)
	}

	return ssh.ParsePrivateKey(pemBytes)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Addr returns the bound local address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Serve accepts connections until stop is closed or Close is called. Each accepted connection is
// handled in its own goroutine and Serve does not wait for them.
func (s *Server) Serve(stop <-chan struct{}) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return

			default:
			}

			log.Printf("ACCEPT ERROR: %v", err)

			continue
		}

		go s.handle(conn)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (s *Server) handle(rawConn net.Conn) {
	defer func() {
		_ = rawConn.Close()
	}()

	remoteHost, _, err := net.SplitHostPort(rawConn.RemoteAddr().String())
	if err != nil {
		remoteHost = rawConn.RemoteAddr().String()
	}

	res := s.cfg.IPFilter.ShouldAllow(remoteHost)
	if !res.Allowed {
		s.cfg.Admitter.Counters().Rejected.Add(1)

		if strings.Contains(res.Reason, "Rate limit") {
			s.cfg.Admitter.Counters().RateTrips.Add(1)
		}

		log.Printf("%sREJECTED %s (%s)", consoleui.Prefix("reject"), rawConn.RemoteAddr(), res.Reason)

		return
	}

	if res.Whitelisted {
		s.cfg.Admitter.Counters().Exempted.Add(1)
	}

	if !res.Whitelisted && s.cfg.GeoFilter.IsBlocked(remoteHost, s.cfg.BlockedSet, s.cfg.BlockUnknown) {
		s.cfg.Admitter.Counters().Rejected.Add(1)

		log.Printf("%sREJECTED %s (geo-filter)", consoleui.Prefix("reject"), rawConn.RemoteAddr())

		return
	}

	if !s.cfg.Admitter.TryAdmit() {
		log.Printf("%sREJECTED %s (global connection cap)",
			consoleui.Prefix("reject"), rawConn.RemoteAddr())

		return
	}
	defer s.cfg.Admitter.Release()

	tuneTCP(rawConn)

	sshConn, chans, reqs, err := ssh.NewServerConn(rawConn, s.sshConfig)
	if err != nil {
		log.Printf("%sHANDSHAKE FAILED %s: %v", consoleui.Prefix("reject"), rawConn.RemoteAddr(), err)

		return
	}
	defer func() {
		_ = sshConn.Close()
	}()

	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			if err := newCh.Reject(ssh.UnknownChannelType, "only session channels are supported"); err != nil {
				log.Printf("error rejecting channel from %s: %v", rawConn.RemoteAddr(), err)
			}

			continue
		}

		channel, requests, err := newCh.Accept()
		if err != nil {
			continue
		}

		s.handleSessionChannel(sshConn, channel, requests)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// ptyRequest is the RFC 4254 §6.2 pty-req payload.
type ptyRequest struct {
	Term      string
	Width     uint32
	Height    uint32
	PixWidth  uint32
	PixHeight uint32
	Modes     string
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// envRequest is the RFC 4254 §6.4 env payload.
type envRequest struct {
	Name  string
	Value string
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// handleSessionChannel runs the pty-req/env/window-change/shell/exec state machine for a single
// session channel: requests accumulate terminal hints until a shell request arrives, at which
// point the backend is dialed (encoding-aware) and the byte pump takes over. An exec request is
// rejected; this front-end serves interactive shells only.
func (s *Server) handleSessionChannel(sshConn *ssh.ServerConn, channel ssh.Channel, requests <-chan *ssh.Request) {
	defer func() {
		_ = channel.Close()
	}()

	sess := session.New(session.ProtocolSSH, sshConn.RemoteAddr().String())

	log.Printf("%sADMIT [%s] %s", consoleui.Prefix("admit"), sess.ID, sshConn.RemoteAddr())

	s.cfg.Admitter.TrackSession(sess.ID, string(sess.Protocol), sess.ClientAddr)
	defer s.cfg.Admitter.UntrackSession(sess.ID)

	var (
		mu             sync.Mutex
		termType       string
		env            = make(map[string]string)
		shellRequested bool
	)

	proceed := make(chan struct{})

	var proceedOnce sync.Once

	signalProceed := func() {
		proceedOnce.Do(func() { close(proceed) })
	}

	go func() {
		defer signalProceed()

		for req := range requests {
			switch req.Type {
			case "pty-req":
				var p ptyRequest
				if err := ssh.Unmarshal(req.Payload, &p); err == nil {
					mu.Lock()
					termType = p.Term
					mu.Unlock()
				}

				_ = req.Reply(true, nil)

			case "env":
				var p envRequest
				if err := ssh.Unmarshal(req.Payload, &p); err == nil {
					mu.Lock()
					env[p.Name] = p.Value
					mu.Unlock()
				}

				_ = req.Reply(true, nil)

			case "window-change":
				_ = req.Reply(true, nil)

			case "shell":
				_ = req.Reply(true, nil)

				mu.Lock()
				shellRequested = true
				mu.Unlock()

				signalProceed()

			case "exec":
				_ = req.Reply(false, nil)

			default:
				_ = req.Reply(false, nil)
			}
		}
	}()

	<-proceed

	mu.Lock()
	wantShell := shellRequested
	tt := termType
	envSnapshot := make(map[string]string, len(env))

	for k, v := range env {
		envSnapshot[k] = v
	}
	mu.Unlock()

	if !wantShell {
		log.Printf("%sTEARDOWN [%s] %s (no shell requested)",
			consoleui.Prefix("teardown"), sess.ID, sshConn.RemoteAddr())

		return
	}

	sess.TermType = tt
	sess.Encoding = encoding.Detect(envSnapshot, tt)

	port := encoding.BackendPort(sess.Encoding, s.cfg.Ports)
	backendAddr := fmt.Sprintf("%s:%d", s.cfg.BackendHost, port)
	sess.BackendAddr = backendAddr

	backend, err := net.Dial("tcp", backendAddr)
	if err != nil {
		log.Printf("%sBACKEND DIAL FAILED [%s] %s: %v",
			consoleui.Prefix("error"), sess.ID, backendAddr, err)

		return
	}
	defer func() {
		_ = backend.Close()
	}()

	tuneTCP(backend)

	transcript, err := translog.Open(s.cfg.TransLog, sess)
	if err != nil {
		log.Printf("%sTRANSCRIPT OPEN FAILED [%s]: %v", consoleui.Prefix("warn"), sess.ID, err)
	}
	defer transcript.Close()

	res := bytepump.Pump(channel, &tappedBackend{Endpoint: backend, tap: transcript}, s.cfg.IdleTimeout, nil)

	sess.Finish(res)

	log.Printf("%sTEARDOWN [%s] %s (reason=%s, link time %s, in=%d out=%d)",
		consoleui.Prefix("teardown"), sess.ID, sshConn.RemoteAddr(), res.Reason,
		sess.Duration().Round(time.Second), res.ClientToBackendBytes, res.BackendToClientBytes)

	if s.cfg.OnSessionEnd != nil {
		s.cfg.OnSessionEnd(sess)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// tuneTCP disables Nagle's algorithm and enables TCP keepalive on conn, if it is a *net.TCPConn.
func tuneTCP(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}

	_ = tcpConn.SetNoDelay(true)
	_ = tcpConn.SetKeepAlive(true)
	_ = tcpConn.SetKeepAlivePeriod(keepAlivePeriod)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// tappedBackend wraps the backend bytepump.Endpoint so every byte read from it is also written to
// a passive transcript tap.
type tappedBackend struct {
	bytepump.Endpoint
	tap *translog.Transcript
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (t *tappedBackend) Read(p []byte) (int, error) {
	n, err := t.Endpoint.Read(p)
	if n > 0 {
		_, _ = t.tap.Write(p[:n])
	}

	return n, err
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
