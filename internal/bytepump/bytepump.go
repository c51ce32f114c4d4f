///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/bytepump/bytepump.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package bytepump shuttles bytes bidirectionally between a client endpoint and a backend
// endpoint until either side closes or the link goes idle too long. The idle watchdog exists
// because ssh.Channel, unlike net.Conn, exposes no SetDeadline.
package bytepump

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// Endpoint is the minimal surface Pump needs from either side of a session. Both net.Conn and
// ssh.Channel satisfy it.
type Endpoint interface {
	io.Reader
	io.Writer
	Close() error
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Reason identifies why a Pump stopped.
type Reason string

///////////////////////////////////////////////////////////////////////////////////////////////////

const (
	ReasonClientClosed  Reason = "client-close"
	ReasonBackendClosed Reason = "backend-close"
	ReasonClientError   Reason = "client-error"
	ReasonBackendError  Reason = "backend-error"
	ReasonIdleTimeout   Reason = "timeout"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// Result summarizes a finished Pump.
type Result struct {
	Reason               Reason
	ClientToBackendBytes uint64
	BackendToClientBytes uint64
	Err                  error
}

///////////////////////////////////////////////////////////////////////////////////////////////////

const copyBufferSize = 4096

///////////////////////////////////////////////////////////////////////////////////////////////////

// Pump copies bytes in both directions between client and backend until one side closes, a copy
// error occurs, or idleTimeout elapses with no traffic in either direction. idleTimeout <= 0
// disables the watchdog. onActivity, if non-nil, is invoked after every successful read on either
// side, for session idle-time reporting.
func Pump(client, backend Endpoint, idleTimeout time.Duration, onActivity func()) Result {
	var (
		clientToBackend uint64
		backendToClient uint64

		lastActivity atomic.Int64
		once         sync.Once
		reason       Reason
		pumpErr      error
		wg           sync.WaitGroup
	)

	lastActivity.Store(time.Now().UnixNano())

	finish := func(r Reason, err error) {
		once.Do(func() {
			reason = r
			pumpErr = err

			_ = client.Close()
			_ = backend.Close()
		})
	}

	touch := func() {
		lastActivity.Store(time.Now().UnixNano())

		if onActivity != nil {
			onActivity()
		}
	}

	stopWatchdog := make(chan struct{})

	if idleTimeout > 0 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ticker := time.NewTicker(idleTimeout / 4)
			defer ticker.Stop()

			for {
				select {
				case <-stopWatchdog:
					return

				case <-ticker.C:
					last := time.Unix(0, lastActivity.Load())
					if time.Since(last) >= idleTimeout {
						finish(ReasonIdleTimeout, nil)

						return
					}
				}
			}
		}()
	}

	var copyWg sync.WaitGroup
	copyWg.Add(2)

	go func() {
		defer copyWg.Done()

		_, err := copyCounting(backend, client, &clientToBackend, touch)

		switch {
		case err == nil || err == io.EOF:
			finish(ReasonClientClosed, nil)

		default:
			finish(ReasonClientError, err)
		}
	}()

	go func() {
		defer copyWg.Done()

		_, err := copyCounting(client, backend, &backendToClient, touch)

		switch {
		case err == nil || err == io.EOF:
			finish(ReasonBackendClosed, nil)

		default:
			finish(ReasonBackendError, err)
		}
	}()

	copyWg.Wait()
	close(stopWatchdog)
	wg.Wait()

	return Result{
		Reason:               reason,
		ClientToBackendBytes: atomic.LoadUint64(&clientToBackend),
		BackendToClientBytes: atomic.LoadUint64(&backendToClient),
		Err:                  pumpErr,
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// copyCounting is io.Copy generalized to call touch after every successful read.
func copyCounting(dst io.Writer, src io.Reader, counter *uint64, touch func()) (int64, error) {
	buf := make([]byte, copyBufferSize)

	var total int64

	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			touch()

			nw, werr := dst.Write(buf[:nr])
			atomic.AddUint64(counter, uint64(nw))
			total += int64(nw)

			if werr != nil {
				return total, werr
			}

			if nw != nr {
				return total, io.ErrShortWrite
			}
		}

		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}

			return total, rerr
		}
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
