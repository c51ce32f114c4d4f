///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/tcpfront/tcpfront_test.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

package tcpfront

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"net"
	"strconv"
	"testing"
	"time"

	"bbsgate/internal/ipfilter"
	"bbsgate/internal/metrics"
	"bbsgate/internal/session"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

type alwaysAdmit struct{}

func (alwaysAdmit) TryAdmit() bool                               { return true }
func (alwaysAdmit) Release()                                     {}
func (alwaysAdmit) TrackSession(id, protocol, clientAddr string) {}
func (alwaysAdmit) UntrackSession(id string)                     {}
func (alwaysAdmit) Counters() *metrics.Counters                  { return &metrics.Counters{} }

///////////////////////////////////////////////////////////////////////////////////////////////////

type neverAdmit struct{}

func (neverAdmit) TryAdmit() bool                               { return false }
func (neverAdmit) Release()                                     {}
func (neverAdmit) TrackSession(id, protocol, clientAddr string) {}
func (neverAdmit) UntrackSession(id string)                     {}
func (neverAdmit) Counters() *metrics.Counters                  { return &metrics.Counters{} }

///////////////////////////////////////////////////////////////////////////////////////////////////

func startEchoBackend(t *testing.T) (addr string, stop func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen backend: %v", err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go func() {
				defer func() { _ = conn.Close() }()

				buf := make([]byte, 256)

				for {
					n, err := conn.Read(buf)
					if n > 0 {
						if _, werr := conn.Write(buf[:n]); werr != nil {
							return
						}
					}

					if err != nil {
						return
					}
				}
			}()
		}
	}()

	return ln.Addr().String(), func() { _ = ln.Close() }
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func splitHostPortT(t *testing.T, addr string) (string, int) {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %s: %v", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port %s: %v", portStr, err)
	}

	return host, port
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestServeAdmitsAndForwards(t *testing.T) {
	backendAddr, stopBackend := startEchoBackend(t)
	defer stopBackend()

	host, port := splitHostPortT(t, backendAddr)

	filter := ipfilter.New(ipfilter.Config{}, nil, nil)

	var ended *session.Session

	l, err := Listen(Config{
		ListenAddr:  "127.0.0.1:0",
		BackendHost: host,
		BackendPort: port,
		IPFilter:    filter,
		Admitter:    alwaysAdmit{},
		OnSessionEnd: func(s *session.Session) {
			ended = s
		},
	})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	stop := make(chan struct{})
	go l.Serve(stop)
	defer func() {
		close(stop)
		_ = l.Close()
	}()

	client, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial front-end: %v", err)
	}
	defer func() { _ = client.Close() }()

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 16)

	if err := client.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}

	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read echoed reply: %v", err)
	}

	if string(buf[:n]) != "ping" {
		t.Fatalf("expected echoed ping, got %q", buf[:n])
	}

	_ = client.Close()

	time.Sleep(50 * time.Millisecond)

	if ended == nil {
		t.Fatalf("expected OnSessionEnd to be called")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestServeRejectsWhenAdmitterDenies(t *testing.T) {
	filter := ipfilter.New(ipfilter.Config{}, nil, nil)

	l, err := Listen(Config{
		ListenAddr:  "127.0.0.1:0",
		BackendHost: "127.0.0.1",
		BackendPort: 1,
		IPFilter:    filter,
		Admitter:    neverAdmit{},
	})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	stop := make(chan struct{})
	go l.Serve(stop)
	defer func() {
		close(stop)
		_ = l.Close()
	}()

	client, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial front-end: %v", err)
	}
	defer func() { _ = client.Close() }()

	buf := make([]byte, 16)

	if err := client.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}

	if _, err := client.Read(buf); err == nil {
		t.Fatalf("expected the connection to be closed by the front-end when denied admission")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
