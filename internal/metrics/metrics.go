///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/metrics/metrics.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package metrics persists lifetime connection counters across restarts using bbolt. This store
// holds only cumulative lifetime totals; the per-window rate-limit state stays exclusively in
// internal/ipfilter's memory and is never persisted here.
package metrics

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	metaBucketName      = []byte("meta")
	countersBucketName  = []byte("counters")
	shutdownMarkerKey   = []byte("shutdown-marker")
	initialStartTimeKey = []byte("initial-start-time")
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// Counters holds the lifetime totals the Supervisor exposes in its stats snapshot. All fields are
// safe for concurrent use.
type Counters struct {
	Admitted    atomic.Uint64
	Rejected    atomic.Uint64
	Exempted    atomic.Uint64
	RateTrips   atomic.Uint64
	SSHSessions atomic.Uint64
	TCPSessions atomic.Uint64
	BytesIn     atomic.Uint64
	BytesOut    atomic.Uint64
}

///////////////////////////////////////////////////////////////////////////////////////////////////

var counterKeys = []string{ //nolint:gochecknoglobals
	"admitted", "rejected", "exempted", "rateTrips",
	"sshSessions", "tcpSessions", "bytesIn", "bytesOut",
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (c *Counters) fields() map[string]*atomic.Uint64 {
	return map[string]*atomic.Uint64{
		"admitted":    &c.Admitted,
		"rejected":    &c.Rejected,
		"exempted":    &c.Exempted,
		"rateTrips":   &c.RateTrips,
		"sshSessions": &c.SSHSessions,
		"tcpSessions": &c.TCPSessions,
		"bytesIn":     &c.BytesIn,
		"bytesOut":    &c.BytesOut,
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Snapshot is a plain-value copy of Counters, safe to pass around or embed in a larger struct.
type Snapshot struct {
	Admitted    uint64
	Rejected    uint64
	Exempted    uint64
	RateTrips   uint64
	SSHSessions uint64
	TCPSessions uint64
	BytesIn     uint64
	BytesOut    uint64
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Snapshot reads c's current values into a plain struct.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Admitted:    c.Admitted.Load(),
		Rejected:    c.Rejected.Load(),
		Exempted:    c.Exempted.Load(),
		RateTrips:   c.RateTrips.Load(),
		SSHSessions: c.SSHSessions.Load(),
		TCPSessions: c.TCPSessions.Load(),
		BytesIn:     c.BytesIn.Load(),
		BytesOut:    c.BytesOut.Load(),
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Store is a bbolt-backed persisted counters database. An empty path disables persistence; all Store
// methods are then no-ops.
type Store struct {
	db                 *bbolt.DB
	persistedStartTime time.Time
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Open opens (creating if necessary) the database at path. An empty path disables persistence and
// returns a usable, inert Store.
func Open(path string, perm os.FileMode) (*Store, error) {
	if path == "" {
		return &Store{}, nil
	}

	options := &bbolt.Options{
		Timeout:      time.Second,
		FreelistType: bbolt.FreelistMapType,
	}

	db, err := bbolt.Open(path, perm, options)
	if err != nil {
		return nil, fmt.Errorf("open metrics database %s: %w", path, err)
	}

	s := &Store{db: db}

	now := time.Now()

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(metaBucketName)
		if err != nil {
			return err
		}

		val := bucket.Get(shutdownMarkerKey)
		if bytes.Equal(val, []byte("0")) {
			log.Printf("metrics: unclean database shutdown detected")
		}

		startVal := bucket.Get(initialStartTimeKey)
		if startVal == nil {
			s.persistedStartTime = now

			if err := bucket.Put(initialStartTimeKey, []byte(now.Format(time.RFC3339))); err != nil {
				return err
			}
		} else if t, err := time.Parse(time.RFC3339, string(startVal)); err == nil {
			s.persistedStartTime = t
		} else {
			s.persistedStartTime = now
		}

		return bucket.Put(shutdownMarkerKey, []byte("0"))
	})
	if err != nil {
		return nil, fmt.Errorf("initialize metrics database metadata: %w", err)
	}

	return s, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// PersistedStartTime is the first time this database was ever opened, surviving restarts.
func (s *Store) PersistedStartTime() time.Time {
	return s.persistedStartTime
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Load populates c's fields from the database.
func (s *Store) Load(c *Counters) error {
	if s.db == nil {
		return nil
	}

	return s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(countersBucketName)
		if bucket == nil {
			return nil
		}

		fields := c.fields()

		for _, key := range counterKeys {
			data := bucket.Get([]byte(key))
			if len(data) == 8 {
				fields[key].Store(binary.BigEndian.Uint64(data))
			}
		}

		return nil
	})
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Save writes c's current values to the database.
func (s *Store) Save(c *Counters) error {
	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(countersBucketName)
		if err != nil {
			return err
		}

		fields := c.fields()

		for _, key := range counterKeys {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, fields[key].Load())

			if err := bucket.Put([]byte(key), buf); err != nil {
				return err
			}
		}

		return nil
	})
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Close marks a clean shutdown and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(metaBucketName)
		if err != nil {
			return err
		}

		return bucket.Put(shutdownMarkerKey, []byte(time.Now().Format(time.RFC3339)))
	})
	if err != nil {
		log.Printf("metrics: error recording clean shutdown marker: %v", err)
	}

	return s.db.Close()
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
