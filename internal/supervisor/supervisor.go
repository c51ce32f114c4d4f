///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/supervisor/supervisor.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package supervisor owns the global connection cap, signal-triggered shutdown/reload, and an
// observability snapshot shared by the front-ends and the console administration surface.
package supervisor

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"bbsgate/internal/ipfilter"
	"bbsgate/internal/metrics"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// hardExitGrace is how long a graceful shutdown waits for active sessions to drain before the
// process exits unconditionally.
const hardExitGrace = 10 * time.Second

///////////////////////////////////////////////////////////////////////////////////////////////////

// Stats is a point-in-time observability snapshot.
type Stats struct {
	ActiveConnections int
	MaxConnections    int
	Uptime            time.Duration
	ShuttingDown      bool
	IPFilter          ipfilter.Stats
	Counters          metrics.Snapshot
	Sessions          []SessionInfo
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// SessionInfo is the subset of a live session the console administration surface can list.
type SessionInfo struct {
	ID         string
	Protocol   string
	ClientAddr string
	Started    time.Time
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Supervisor admits connections against a global cap, tracks lifetime counters, and reacts to
// process signals. The zero value is not usable; construct with New.
type Supervisor struct {
	maxConnections int
	startTime      time.Time

	ipFilter *ipfilter.Filter
	metrics  *metrics.Store
	counters metrics.Counters

	mu       sync.Mutex
	active   int
	sessions map[string]SessionInfo

	shuttingDown atomic.Bool
	shutdownOnce sync.Once
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// New constructs a Supervisor. store may be an inert (empty-path) Store; ipf may be nil.
func New(maxConnections int, ipf *ipfilter.Filter, store *metrics.Store) *Supervisor {
	s := &Supervisor{
		maxConnections: maxConnections,
		startTime:      time.Now(),
		ipFilter:       ipf,
		metrics:        store,
		sessions:       make(map[string]SessionInfo),
	}

	if store != nil {
		if err := store.Load(&s.counters); err != nil {
			log.Printf("supervisor: error loading persisted counters: %v", err)
		}

		if !store.PersistedStartTime().IsZero() {
			s.startTime = store.PersistedStartTime()
		}
	}

	return s
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// TryAdmit reports whether a new connection may proceed: false once a graceful shutdown has
// begun, or once the active count has reached maxConnections (0 means unlimited).
func (s *Supervisor) TryAdmit() bool {
	if s.shuttingDown.Load() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxConnections > 0 && s.active >= s.maxConnections {
		s.counters.Rejected.Add(1)

		return false
	}

	s.active++
	s.counters.Admitted.Add(1)

	return true
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Release decrements the active connection count. Call exactly once per session that TryAdmit
// allowed.
func (s *Supervisor) Release() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Counters exposes the lifetime counters for front-ends to increment directly.
func (s *Supervisor) Counters() *metrics.Counters {
	return &s.counters
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// TrackSession records a newly admitted session for the console administration surface's session
// listing. Call UntrackSession exactly once per tracked session.
func (s *Supervisor) TrackSession(id, protocol, clientAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = SessionInfo{ID: id, Protocol: protocol, ClientAddr: clientAddr, Started: time.Now()}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// UntrackSession removes a session from the console administration surface's session listing.
func (s *Supervisor) UntrackSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Snapshot returns the current observability state.
func (s *Supervisor) Snapshot() Stats {
	s.mu.Lock()
	active := s.active
	sessions := make([]SessionInfo, 0, len(s.sessions))

	for _, info := range s.sessions {
		sessions = append(sessions, info)
	}
	s.mu.Unlock()

	stats := Stats{
		ActiveConnections: active,
		MaxConnections:    s.maxConnections,
		Uptime:            time.Since(s.startTime).Round(time.Second),
		ShuttingDown:      s.shuttingDown.Load(),
		Counters:          s.counters.Snapshot(),
		Sessions:          sessions,
	}

	if s.ipFilter != nil {
		stats.IPFilter = s.ipFilter.GetStats()
	}

	return stats
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// PersistCounters writes the current lifetime counters to the metrics store, if one is wired.
func (s *Supervisor) PersistCounters() {
	if s.metrics == nil {
		return
	}

	if err := s.metrics.Save(&s.counters); err != nil {
		log.Printf("supervisor: error persisting counters: %v", err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// RunSignalHandler installs handlers for SIGHUP (reload), SIGINT/SIGTERM/SIGQUIT (graceful
// shutdown), blocking until the process exits. closers are closed immediately on shutdown to stop
// accepting new connections; a hard exit follows hardExitGrace regardless of drain state.
func (s *Supervisor) RunSignalHandler(reload func(), closers ...io.Closer) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	for sig := range sigChan {
		switch sig {
		case syscall.SIGHUP:
			log.Println("SIGHUP received: reloading lists.")

			if reload != nil {
				reload()
			}

		case syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
			s.shutdown(closers)

			return
		}
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (s *Supervisor) shutdown(closers []io.Closer) {
	s.shutdownOnce.Do(func() {
		log.Println("shutdown requested: no longer accepting new connections.")
		s.shuttingDown.Store(true)

		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Printf("supervisor: error closing listener: %v", err)
			}
		}

		deadline := time.Now().Add(hardExitGrace)
		timedOut := true

		for time.Now().Before(deadline) {
			s.mu.Lock()
			remaining := s.active
			s.mu.Unlock()

			if remaining == 0 {
				timedOut = false

				break
			}

			time.Sleep(100 * time.Millisecond)
		}

		s.PersistCounters()

		if s.metrics != nil {
			if err := s.metrics.Close(); err != nil {
				log.Printf("supervisor: error closing metrics store: %v", err)
			}
		}

		if timedOut {
			log.Println("shutdown timeout expired with sessions still active; exiting.")
			os.Exit(1)
		}

		log.Println("exiting.")
		os.Exit(0)
	})
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
