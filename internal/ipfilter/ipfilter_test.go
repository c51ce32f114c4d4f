///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/ipfilter/ipfilter_test.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

package ipfilter

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"strings"
	"testing"
	"time"

	"bbsgate/internal/netaddr"

	"go.uber.org/goleak"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

func rateCfg() Config {
	return Config{
		RateLimitEnabled:        true,
		MaxConnectionsPerWindow: 3,
		Window:                  60 * time.Second,
		BlockDuration:           10 * time.Second,
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestWhitelistBypassesEverythingAndDoesNotRecordState(t *testing.T) {
	wl := []netaddr.Entry{netaddr.ParseEntry("10.0.0.0/8")}
	bl := []netaddr.Entry{netaddr.ParseEntry("10.1.2.3")}
	f := New(rateCfg(), wl, bl)

	base := time.Now()
	for i := 0; i < 10; i++ {
		res := f.shouldAllowAt("10.1.2.3", base.Add(time.Duration(i)*time.Millisecond))
		if !res.Allowed || !res.Whitelisted {
			t.Fatalf("expected whitelisted admission, got %+v", res)
		}
	}

	f.mu.Lock()
	n := len(f.rateState)
	f.mu.Unlock()

	if n != 0 {
		t.Fatalf("expected no rate state for whitelisted IP, got %d entries", n)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestBlocklistCIDR(t *testing.T) {
	f := New(rateCfg(), nil, []netaddr.Entry{netaddr.ParseEntry("10.0.0.0/24")})

	res := f.ShouldAllow("10.0.0.50")
	if res.Allowed || res.Reason != "IP in blocklist" {
		t.Fatalf("expected blocklist denial, got %+v", res)
	}

	res = f.ShouldAllow("10.0.1.1")
	if !res.Allowed {
		t.Fatalf("expected 10.0.1.1 to be admitted, got %+v", res)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestRateLimitTripAndRecovery(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := New(rateCfg(), nil, nil)
	start := time.Now()

	for i := 0; i < 3; i++ {
		res := f.shouldAllowAt("198.51.100.9", start.Add(time.Duration(i)*time.Second))
		if !res.Allowed {
			t.Fatalf("attempt %d should have been admitted, got %+v", i, res)
		}
	}

	fourth := f.shouldAllowAt("198.51.100.9", start.Add(3*time.Second))
	if fourth.Allowed || !strings.HasPrefix(fourth.Reason, "Rate limit exceeded") {
		t.Fatalf("expected 4th attempt denied with rate-limit reason, got %+v", fourth)
	}

	fifth := f.shouldAllowAt("198.51.100.9", start.Add(4*time.Second))
	if fifth.Allowed || !strings.Contains(fifth.Reason, "Rate limit exceeded") {
		t.Fatalf("expected 5th attempt denied while temp-blocked, got %+v", fifth)
	}

	later := f.shouldAllowAt("198.51.100.9", start.Add(15*time.Second))
	if !later.Allowed {
		t.Fatalf("expected admission after temp block expires, got %+v", later)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestExactlyMaxIsAllowed(t *testing.T) {
	f := New(rateCfg(), nil, nil)
	start := time.Now()

	for i := 0; i < 3; i++ {
		res := f.shouldAllowAt("203.0.113.1", start.Add(time.Duration(i)*time.Millisecond))
		if !res.Allowed {
			t.Fatalf("attempt %d at exactly max should be allowed", i)
		}
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestTemporaryBlockExpiryInvariant(t *testing.T) {
	f := New(rateCfg(), nil, nil)
	now := time.Now()

	f.mu.Lock()
	f.blockLocked("192.0.2.5", 5*time.Second, "Rate limit exceeded: 4 in 60000ms", now)
	f.mu.Unlock()

	mid := f.shouldAllowAt("192.0.2.5", now.Add(2*time.Second))
	if mid.Allowed {
		t.Fatalf("expected still-blocked at t0+2s")
	}

	after := f.shouldAllowAt("192.0.2.5", now.Add(6*time.Second))
	if !after.Allowed {
		t.Fatalf("expected admission after block duration elapses")
	}

	f.mu.Lock()
	_, stillPresent := f.tempBlocks["192.0.2.5"]
	f.mu.Unlock()

	if stillPresent {
		t.Fatalf("expired temp block entry must be purged on access")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestJanitorPrunesExpiredState(t *testing.T) {
	f := New(rateCfg(), nil, nil)
	now := time.Now()

	f.shouldAllowAt("203.0.113.9", now.Add(-2*time.Minute))
	f.mu.Lock()
	f.blockLocked("203.0.113.10", time.Second, "x", now.Add(-2*time.Second))
	f.mu.Unlock()

	f.janitorPass(now)

	f.mu.Lock()
	_, rateLeft := f.rateState["203.0.113.9"]
	_, blockLeft := f.tempBlocks["203.0.113.10"]
	f.mu.Unlock()

	if rateLeft {
		t.Fatalf("janitor should have pruned stale rate state")
	}

	if blockLeft {
		t.Fatalf("janitor should have pruned expired temp block")
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func TestInvalidIPDenied(t *testing.T) {
	f := New(rateCfg(), nil, nil)

	res := f.ShouldAllow("")
	if res.Allowed || res.Reason != "Invalid IP address" {
		t.Fatalf("expected invalid-IP denial, got %+v", res)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
