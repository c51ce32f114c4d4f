///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/geofilter/geofilter_test.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

package geofilter

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"fmt"
	"net"
	"testing"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

type fakeLookup struct {
	countries map[string]string
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (f *fakeLookup) Country(ip net.IP) (string, string, error) {
	iso, ok := f.countries[ip.String()]
	if !ok {
		return "", "", fmt.Errorf("no record for %s", ip)
	}

	return iso, iso, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestUnloadedFilterFailsOpen(t *testing.T) {
	var f *Filter

	if f.IsBlocked("192.0.2.1", map[string]bool{"CN": true}, true) {
		t.Fatalf("nil filter must fail open")
	}

	empty := &Filter{}
	if empty.IsBlocked("192.0.2.1", map[string]bool{"CN": true}, true) {
		t.Fatalf("unloaded filter must fail open")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestBlockedCountry(t *testing.T) {
	f := NewWithLookup(&fakeLookup{countries: map[string]string{"10.1.2.3": "CN"}})

	if !f.IsBlocked("10.1.2.3", map[string]bool{"CN": true}, false) {
		t.Fatalf("expected CN to be blocked")
	}

	if f.IsBlocked("10.1.2.3", map[string]bool{"RU": true}, false) {
		t.Fatalf("CN must not be blocked when only RU is listed")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestUnknownCountryPolicy(t *testing.T) {
	f := NewWithLookup(&fakeLookup{countries: map[string]string{}})

	if !f.IsBlocked("192.0.2.1", map[string]bool{"CN": true}, true) {
		t.Fatalf("expected unknown country blocked when blockUnknown=true")
	}

	if f.IsBlocked("192.0.2.1", map[string]bool{"CN": true}, false) {
		t.Fatalf("expected unknown country admitted when blockUnknown=false")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
