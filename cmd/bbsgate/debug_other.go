//go:build !debug

///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - cmd/bbsgate/debug_other.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import "bbsgate/internal/supervisor"

///////////////////////////////////////////////////////////////////////////////////////////////////

// startDebugServer is a no-op in a production build; see debug.go for the -tags debug variant.
func startDebugServer(*supervisor.Supervisor) {}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
