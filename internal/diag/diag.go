///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/diag/diag.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package diag starts and stops the gops remote-diagnostics agent.
package diag

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"fmt"

	"github.com/google/gops/agent"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// Start launches the gops agent if enabled. Close, even on a disabled agent, is always safe to
// call and is a no-op.
func Start(enabled bool) (func(), error) {
	if !enabled {
		return func() {}, nil
	}

	if err := agent.Listen(agent.Options{}); err != nil {
		return func() {}, fmt.Errorf("start gops agent: %w", err)
	}

	return agent.Close, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
