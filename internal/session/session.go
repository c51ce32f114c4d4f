///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/session/session.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package session describes a single admitted connection as it moves through admission,
// encoding detection, backend dial, and the byte pump.
package session

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bbsgate/internal/bytepump"
	"bbsgate/internal/encoding"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// Protocol identifies which front-end admitted a Session.
type Protocol string

///////////////////////////////////////////////////////////////////////////////////////////////////

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolSSH Protocol = "ssh"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// Session is the generalized unit of connection state, owned exclusively by the goroutine running
// its byte pump once the pump starts.
type Session struct {
	ID       string
	Protocol Protocol

	ClientAddr  string
	BackendAddr string

	TermType     string
	Encoding     encoding.Encoding
	ShareableKey string // not set by the front-ends; translog names directories via SanitizeAddr(ClientAddr).

	StartTime time.Time
	EndTime   time.Time
	EndReason bytepump.Reason

	ClientToBackendBytes uint64
	BackendToClientBytes uint64
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// registry tracks in-flight session IDs so NewID can avoid collisions.
type registry struct {
	mu      sync.Mutex
	ids     map[string]bool
	counter atomic.Uint64
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Registry is the process-wide session-ID allocator.
var Registry = &registry{ids: make(map[string]bool)} //nolint:gochecknoglobals

///////////////////////////////////////////////////////////////////////////////////////////////////

// NewID allocates a fresh, collision-free session ID: a monotonically increasing sequence number
// followed by a random 2-byte hex suffix, so IDs sort roughly by admission order but remain
// unguessable.
func (r *registry) NewID() string {
	seq := r.counter.Add(1)

	for {
		b := make([]byte, 2)
		if _, err := rand.Read(b); err != nil {
			// crypto/rand failures are unrecoverable on any supported platform; fall back to a
			// degraded but still unique ID rather than blocking forever.
			return fmt.Sprintf("%x-err%d", seq, time.Now().UnixNano())
		}

		id := fmt.Sprintf("%x-%s", seq, hex.EncodeToString(b))

		r.mu.Lock()

		if r.ids[id] {
			r.mu.Unlock()

			continue
		}

		r.ids[id] = true

		r.mu.Unlock()

		return id
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Release frees id for reuse once its Session has ended.
func (r *registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.ids, id)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// New allocates a Session with a fresh ID and recorded start time.
func New(proto Protocol, clientAddr string) *Session {
	return &Session{
		ID:         Registry.NewID(),
		Protocol:   proto,
		ClientAddr: clientAddr,
		StartTime:  time.Now(),
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Finish records the pump result and releases the session ID back to the registry.
func (s *Session) Finish(res bytepump.Result) {
	s.EndTime = time.Now()
	s.EndReason = res.Reason
	s.ClientToBackendBytes = res.ClientToBackendBytes
	s.BackendToClientBytes = res.BackendToClientBytes

	Registry.Release(s.ID)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Duration returns the session's link time.
func (s *Session) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}

	return s.EndTime.Sub(s.StartTime)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// SanitizeAddr replaces characters unsafe for use in a filename.
func SanitizeAddr(addr string) string {
	return strings.NewReplacer(":", "_", ".", "_").Replace(addr)
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
