///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/sshfront/sshfront_test.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

package sshfront

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/crypto/ssh"

	"bbsgate/internal/encoding"
	"bbsgate/internal/ipfilter"
	"bbsgate/internal/metrics"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

type alwaysAdmit struct{}

func (alwaysAdmit) TryAdmit() bool                               { return true }
func (alwaysAdmit) Release()                                     {}
func (alwaysAdmit) TrackSession(id, protocol, clientAddr string) {}
func (alwaysAdmit) UntrackSession(id string)                     {}
func (alwaysAdmit) Counters() *metrics.Counters                  { return &metrics.Counters{} }

///////////////////////////////////////////////////////////////////////////////////////////////////

func startEchoBackend(t *testing.T) (host string, port int, stop func()) {
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

	h, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split backend addr: %v", err)
	}

	p, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse backend port %s: %v", portStr, err)
	}

	return h, p, func() { _ = ln.Close() }
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func startTestServer(t *testing.T, backendHost string, backendPort int) *Server {
	t.Helper()

	hostKeyPath := filepath.Join(t.TempDir(), "host_key")

	srv, err := Listen(Config{
		ListenAddr:  "127.0.0.1:0",
		HostKeyPath: hostKeyPath,
		BackendHost: backendHost,
		Ports: encoding.PortConfig{
			DetectionEnabled: false,
			DefaultPort:      backendPort,
		},
		IPFilter: ipfilter.New(ipfilter.Config{}, nil, nil),
		Admitter: alwaysAdmit{},
	})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	stop := make(chan struct{})

	go srv.Serve(stop)
	t.Cleanup(func() {
		close(stop)
		_ = srv.Close()
	})

	return srv
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func dialTestClient(t *testing.T, addr string) *ssh.Client {
	t.Helper()

	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "tester",
		Auth:            []ssh.AuthMethod{ssh.Password("anything")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         2 * time.Second,
	})
	if err != nil {
		t.Fatalf("dial ssh front-end: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })

	return client
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestHostKeyGeneratedOnFirstUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host_key")

	first, err := loadHostKey(path)
	if err != nil {
		t.Fatalf("loadHostKey (generate): %v", err)
	}

	second, err := loadHostKey(path)
	if err != nil {
		t.Fatalf("loadHostKey (reload): %v", err)
	}

	if string(first.PublicKey().Marshal()) != string(second.PublicKey().Marshal()) {
		t.Fatalf("expected the generated key to be reloaded unchanged, got a different key")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestHostKeyRejectsUnparsableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host_key")

	if err := os.WriteFile(path, []byte("not a valid private key"), 0o600); err != nil {
		t.Fatalf("seed unparsable host key: %v", err)
	}

	if _, err := loadHostKey(path); err == nil {
		t.Fatalf("expected an error loading an unparsable host key file")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestShellSessionDialsBackendAndForwards(t *testing.T) {
	// Registered before the server and client cleanups so it runs after both have shut down.
	t.Cleanup(func() {
		goleak.VerifyNone(t, goleak.IgnoreTopFunction("golang.org/x/crypto/ssh.(*handshakeTransport).readLoop"))
	})

	backendHost, backendPort, stopBackend := startEchoBackend(t)
	defer stopBackend()

	srv := startTestServer(t, backendHost, backendPort)
	client := dialTestClient(t, srv.Addr().String())

	session, err := client.NewSession()
	if err != nil {
		t.Fatalf("new ssh session: %v", err)
	}
	defer func() { _ = session.Close() }()

	stdin, err := session.StdinPipe()
	if err != nil {
		t.Fatalf("stdin pipe: %v", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}

	if err := session.Shell(); err != nil {
		t.Fatalf("shell request: %v", err)
	}

	if _, err := stdin.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 4)

	if _, err := stdout.Read(buf); err != nil {
		t.Fatalf("read echoed reply: %v", err)
	}

	if string(buf) != "ping" {
		t.Fatalf("expected echoed ping, got %q", buf)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestExecRequestIsRejected(t *testing.T) {
	backendHost, backendPort, stopBackend := startEchoBackend(t)
	defer stopBackend()

	srv := startTestServer(t, backendHost, backendPort)
	client := dialTestClient(t, srv.Addr().String())

	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("new ssh session: %v", err)
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Run("ls"); err == nil {
		t.Fatalf("expected the exec request to be rejected")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
