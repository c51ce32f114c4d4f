///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/geofilter/geofilter.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package geofilter adapts a country-lookup database into a geo-filter admission check. The
// database itself is an external collaborator; this package only defines and consumes its lookup
// contract.
package geofilter

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"log"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// Record is the subset of a GeoIP lookup this gateway cares about.
type Record struct {
	IP          string
	CountryCode string // ISO-3166-1 alpha-2, upper-case; empty if undetermined.
	CountryName string
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// CountryLookup resolves an IP to a country. Implementations must be safe for concurrent use.
type CountryLookup interface {
	Country(ip net.IP) (iso, name string, err error)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// maxMindLookup adapts github.com/oschwald/geoip2-golang's Reader to CountryLookup.
type maxMindLookup struct {
	reader *geoip2.Reader
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (m *maxMindLookup) Country(ip net.IP) (string, string, error) {
	rec, err := m.reader.Country(ip)
	if err != nil {
		return "", "", err
	}

	name := rec.Country.Names["en"]

	return strings.ToUpper(rec.Country.IsoCode), name, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Filter is the geo-filter admission component. A nil *Filter, or one whose lookup is nil (the
// database failed to load), is permissive by construction: it never blocks.
type Filter struct {
	lookup CountryLookup
	closer func() error
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Load opens the MaxMind-format database at path. A load failure degrades the filter to
// permissive; logging that failure is the caller's responsibility.
func Load(path string) (*Filter, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return &Filter{}, err
	}

	return &Filter{
		lookup: &maxMindLookup{reader: reader},
		closer: reader.Close,
	}, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// NewWithLookup builds a Filter around an arbitrary CountryLookup, primarily for tests.
func NewWithLookup(lookup CountryLookup) *Filter {
	return &Filter{lookup: lookup}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Close releases the underlying database, if any.
func (f *Filter) Close() {
	if f == nil || f.closer == nil {
		return
	}

	if err := f.closer(); err != nil {
		log.Printf("geofilter: error closing database: %v", err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Lookup resolves ip to a Record, or nil if the database is unloaded or the lookup failed.
// Per-lookup errors are swallowed and treated as "unknown country".
func (f *Filter) Lookup(ip string) *Record {
	if f == nil || f.lookup == nil {
		return nil
	}

	parsed := net.ParseIP(stripMappedPrefix(ip))
	if parsed == nil {
		return nil
	}

	iso, name, err := f.lookup.Country(parsed)
	if err != nil {
		return nil
	}

	return &Record{IP: ip, CountryCode: iso, CountryName: name}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// IsBlocked fails open when unloaded, applies blockUnknown when the country can't be determined,
// and otherwise tests set membership against blockedSet (compared upper-case).
func (f *Filter) IsBlocked(ip string, blockedSet map[string]bool, blockUnknown bool) bool {
	if f == nil || f.lookup == nil {
		return false
	}

	rec := f.Lookup(ip)
	if rec == nil || rec.CountryCode == "" {
		return blockUnknown
	}

	return blockedSet[strings.ToUpper(rec.CountryCode)]
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func stripMappedPrefix(ip string) string {
	if len(ip) > 7 && strings.EqualFold(ip[:7], "::ffff:") {
		return ip[7:]
	}

	return ip
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
