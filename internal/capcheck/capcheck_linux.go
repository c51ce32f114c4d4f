//go:build linux || android

///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/capcheck/capcheck_linux.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package capcheck warns when the gateway is about to bind a privileged port without
// CAP_NET_BIND_SERVICE.
package capcheck

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"log"
	"os"
	"path/filepath"

	"kernel.org/pub/linux/libs/security/libcap/cap"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

const privilegedPortCeiling = 1024

///////////////////////////////////////////////////////////////////////////////////////////////////

// WarnIfMissing logs a setcap remediation hint if port is privileged and the process has neither
// root nor CAP_NET_BIND_SERVICE.
func WarnIfMissing(port int) {
	if port >= privilegedPortCeiling || os.Getuid() == 0 {
		return
	}

	hasBindCap := false

	if cv, err := cap.FromName("cap_net_bind_service"); err == nil {
		hasBindCap, _ = cap.GetProc().GetFlag(cap.Effective, cv)
	}

	if hasBindCap {
		return
	}

	exePath := resolveExePath()
	log.Printf("CAP_NET_BIND_SERVICE is required to bind privileged port %d", port)
	log.Printf("Fix: sudo setcap 'cap_net_bind_service+ep' %q", exePath)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func resolveExePath() string {
	exe, err := os.Executable()

	if err != nil {
		if realPath, err2 := os.Readlink("/proc/self/exe"); err2 == nil {
			exe = realPath
			err = nil
		}
	}

	if err != nil || exe == "" {
		if len(os.Args) > 0 && os.Args[0] != "" {
			exe = os.Args[0]
		} else {
			exe = "bbsgate"
		}
	}

	if realPath, err := filepath.EvalSymlinks(exe); err == nil {
		exe = realPath
	}

	if abs, err := filepath.Abs(exe); err == nil {
		exe = abs
	}

	return exe
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
