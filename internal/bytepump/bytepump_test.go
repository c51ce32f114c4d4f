///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/bytepump/bytepump_test.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

package bytepump

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestPumpForwardsBothDirectionsAndReportsClientClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	clientLocal, clientRemote := net.Pipe()
	backendLocal, backendRemote := net.Pipe()

	done := make(chan Result, 1)

	go func() {
		done <- Pump(clientLocal, backendLocal, 0, nil)
	}()

	if _, err := clientRemote.Write([]byte("hello backend")); err != nil {
		t.Fatalf("write to clientRemote: %v", err)
	}

	buf := make([]byte, 32)

	n, err := backendRemote.Read(buf)
	if err != nil {
		t.Fatalf("backendRemote read: %v", err)
	}

	if string(buf[:n]) != "hello backend" {
		t.Fatalf("unexpected forwarded payload: %q", buf[:n])
	}

	if _, err := backendRemote.Write([]byte("hi client")); err != nil {
		t.Fatalf("write to backendRemote: %v", err)
	}

	n, err = clientRemote.Read(buf)
	if err != nil {
		t.Fatalf("clientRemote read: %v", err)
	}

	if string(buf[:n]) != "hi client" {
		t.Fatalf("unexpected reply payload: %q", buf[:n])
	}

	if err := clientRemote.Close(); err != nil {
		t.Fatalf("close clientRemote: %v", err)
	}

	res := <-done

	if res.Reason != ReasonClientClosed {
		t.Fatalf("expected client-close reason, got %s (err=%v)", res.Reason, res.Err)
	}

	if res.ClientToBackendBytes == 0 || res.BackendToClientBytes == 0 {
		t.Fatalf("expected nonzero byte counts in both directions, got %+v", res)
	}

	_ = backendRemote.Close()
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestPumpIdleTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	clientLocal, clientRemote := net.Pipe()
	backendLocal, backendRemote := net.Pipe()

	defer func() {
		_ = clientRemote.Close()
		_ = backendRemote.Close()
	}()

	res := Pump(clientLocal, backendLocal, 50*time.Millisecond, nil)

	if res.Reason != ReasonIdleTimeout {
		t.Fatalf("expected idle timeout reason, got %s (err=%v)", res.Reason, res.Err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestPumpInvokesOnActivity(t *testing.T) {
	defer goleak.VerifyNone(t)

	clientLocal, clientRemote := net.Pipe()
	backendLocal, backendRemote := net.Pipe()

	var activityCount atomic.Int64

	done := make(chan Result, 1)

	go func() {
		done <- Pump(clientLocal, backendLocal, 0, func() { activityCount.Add(1) })
	}()

	if _, err := clientRemote.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 1)
	if _, err := backendRemote.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}

	if err := clientRemote.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	<-done
	_ = backendRemote.Close()

	if activityCount.Load() == 0 {
		t.Fatalf("expected onActivity to be invoked at least once")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
