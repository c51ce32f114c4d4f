///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/encoding/encoding.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package encoding implements the client character-encoding detector and backend-port selection
// policy: it classifies a client's reported locale environment and terminal type as UTF-8 or
// CP437 capable, and maps that to a backend listen port.
package encoding

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"regexp"
	"strings"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// Encoding is the detected client character encoding.
type Encoding string

///////////////////////////////////////////////////////////////////////////////////////////////////

const (
	UTF8  Encoding = "utf8"
	CP437 Encoding = "cp437"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var utf8Pattern = regexp.MustCompile(`UTF-?8`)

///////////////////////////////////////////////////////////////////////////////////////////////////

var utf8TermTypes = map[string]bool{
	"xterm": true, "xterm-color": true, "xterm-256color": true,
	"screen": true, "screen-256color": true, "rxvt-unicode": true,
	"konsole": true, "gnome": true, "linux": true, "vt220": true, "vt100": true,
}

///////////////////////////////////////////////////////////////////////////////////////////////////

var cp437TermTypes = []string{"ansi", "ansi-bbs", "ansi-mono", "ansi-color", "pcansi", "scoansi"}

///////////////////////////////////////////////////////////////////////////////////////////////////

// envKeys is the ordered list of environment variables the detector scans; first match wins.
var envKeys = []string{"LANG", "LC_ALL", "LC_CTYPE"}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Detect returns utf8 or cp437: env wins over termType; within either source, the first match
// wins. env is the SSH environment-request payload keyed by variable name.
func Detect(env map[string]string, termType string) Encoding {
	for _, key := range envKeys {
		val, ok := env[key]
		if !ok || val == "" {
			continue
		}

		if utf8Pattern.MatchString(strings.ToUpper(val)) {
			return UTF8
		}
	}

	term := strings.ToLower(termType)
	if term == "" {
		return CP437
	}

	for known := range utf8TermTypes {
		if strings.Contains(term, known) {
			return UTF8
		}
	}

	for _, known := range cp437TermTypes {
		if strings.Contains(term, known) {
			return CP437
		}
	}

	return CP437
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// PortConfig carries the three backend ports the detector chooses between.
type PortConfig struct {
	DetectionEnabled bool
	DefaultPort      int
	UTF8Port         int
	CP437Port        int
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// BackendPort selects the backend port for a detected encoding. If encoding detection is disabled
// altogether, the default port is always used regardless of enc.
func BackendPort(enc Encoding, cfg PortConfig) int {
	if !cfg.DetectionEnabled {
		return cfg.DefaultPort
	}

	if enc == UTF8 {
		return cfg.UTF8Port
	}

	return cfg.CP437Port
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
