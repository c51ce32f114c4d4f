///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/tcpfront/tcpfront.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package tcpfront implements the plain TCP front-end listener: accept, admission, backend dial,
// byte pump handoff.
package tcpfront

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"bbsgate/internal/bytepump"
	"bbsgate/internal/consoleui"
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

// Config configures a Listener.
type Config struct {
	ListenAddr  string
	BackendHost string
	BackendPort int
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

// Listener runs the plain TCP front-end.
type Listener struct {
	cfg Config
	ln  net.Listener
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Listen binds the front-end's listen address. Call Serve to begin accepting.
func Listen(cfg Config) (*Listener, error) {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("LISTEN %s: %w", cfg.ListenAddr, err)
	}

	return &Listener{cfg: cfg, ln: ln}, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Serve accepts connections until stop is closed or Close is called. Each accepted connection is
// handled in its own goroutine and Serve does not wait for them.
func (l *Listener) Serve(stop <-chan struct{}) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return

			default:
			}

			log.Printf("ACCEPT ERROR: %v", err)

			continue
		}

		go l.handle(conn)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (l *Listener) handle(client net.Conn) {
	defer func() {
		_ = client.Close()
	}()

	tuneTCP(client)

	remoteHost, _, err := net.SplitHostPort(client.RemoteAddr().String())
	if err != nil {
		remoteHost = client.RemoteAddr().String()
	}

	res := l.cfg.IPFilter.ShouldAllow(remoteHost)
	if !res.Allowed {
		l.cfg.Admitter.Counters().Rejected.Add(1)

		if strings.Contains(res.Reason, "Rate limit") {
			l.cfg.Admitter.Counters().RateTrips.Add(1)
		}

		log.Printf("%sREJECTED %s (%s)", consoleui.Prefix("reject"), client.RemoteAddr(), res.Reason)

		return
	}

	if res.Whitelisted {
		l.cfg.Admitter.Counters().Exempted.Add(1)
	}

	if !res.Whitelisted && l.cfg.GeoFilter.IsBlocked(remoteHost, l.cfg.BlockedSet, l.cfg.BlockUnknown) {
		l.cfg.Admitter.Counters().Rejected.Add(1)

		log.Printf("%sREJECTED %s (geo-filter)", consoleui.Prefix("reject"), client.RemoteAddr())

		return
	}

	if !l.cfg.Admitter.TryAdmit() {
		log.Printf("%sREJECTED %s (global connection cap)",
			consoleui.Prefix("reject"), client.RemoteAddr())

		return
	}
	defer l.cfg.Admitter.Release()

	sess := session.New(session.ProtocolTCP, client.RemoteAddr().String())

	log.Printf("%sADMIT [%s] %s", consoleui.Prefix("admit"), sess.ID, client.RemoteAddr())

	l.cfg.Admitter.TrackSession(sess.ID, string(sess.Protocol), sess.ClientAddr)
	defer l.cfg.Admitter.UntrackSession(sess.ID)

	backendAddr := fmt.Sprintf("%s:%d", l.cfg.BackendHost, l.cfg.BackendPort)
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

	transcript, err := translog.Open(l.cfg.TransLog, sess)
	if err != nil {
		log.Printf("%sTRANSCRIPT OPEN FAILED [%s]: %v", consoleui.Prefix("warn"), sess.ID, err)
	}
	defer transcript.Close()

	res2 := bytepump.Pump(client, &tappedEndpoint{Endpoint: backend, tap: transcript}, l.cfg.IdleTimeout, nil)

	sess.Finish(res2)

	log.Printf("%sTEARDOWN [%s] %s (reason=%s, link time %s, in=%d out=%d)",
		consoleui.Prefix("teardown"), sess.ID, client.RemoteAddr(), res2.Reason,
		sess.Duration().Round(time.Second), res2.ClientToBackendBytes, res2.BackendToClientBytes)

	if l.cfg.OnSessionEnd != nil {
		l.cfg.OnSessionEnd(sess)
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

// tappedEndpoint wraps a bytepump.Endpoint so every byte read from it is also written to a passive
// transcript tap.
type tappedEndpoint struct {
	bytepump.Endpoint
	tap *translog.Transcript
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (t *tappedEndpoint) Read(p []byte) (int, error) {
	n, err := t.Endpoint.Read(p)
	if n > 0 {
		_, _ = t.tap.Write(p[:n])
	}

	return n, err
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
