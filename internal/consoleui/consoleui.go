///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/consoleui/consoleui.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package consoleui decides whether the operator console supports UTF-8 emoji-prefixed log lines
// and, if so, supplies those prefixes.
package consoleui

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"os"
	"regexp"
	"sync"

	"golang.org/x/term"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	utf8SupportOnce sync.Once //nolint:gochecknoglobals
	utf8Support     bool      //nolint:gochecknoglobals
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var envUTF8Pattern = regexp.MustCompile(`(?i)utf.?8`)

///////////////////////////////////////////////////////////////////////////////////////////////////

// HaveUTF8Console reports whether stdout is an interactive terminal that can render UTF-8.
func HaveUTF8Console() bool {
	utf8SupportOnce.Do(func() {
		switch {
		case os.Getenv("BBSGATE_FORCE_UTF8") == "1":
			utf8Support = true

		case os.Getenv("BBSGATE_FORCE_NO_UTF8") == "1":
			utf8Support = false

		case !term.IsTerminal(int(os.Stdout.Fd())):
			utf8Support = false

		default:
			utf8Support = isUTF8Env()
		}
	})

	return utf8Support
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// isUTF8Env scans the operator's own console environment.
func isUTF8Env() bool {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG", "TERM"} {
		val := os.Getenv(key)
		if val != "" && envUTF8Pattern.MatchString(val) {
			return true
		}
	}

	return false
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Prefix returns the emoji prefix for the given log-line category when the console supports UTF-8,
// or an empty string otherwise.
func Prefix(category string) string {
	if !HaveUTF8Console() {
		return ""
	}

	p, ok := prefixes[category]
	if !ok {
		return ""
	}

	return p
}

///////////////////////////////////////////////////////////////////////////////////////////////////

var prefixes = map[string]string{ //nolint:gochecknoglobals
	"admit":    "\U0001F7E2 ", // green circle
	"reject":   "\U0001F534 ", // red circle
	"teardown": "\U0001F7E1 ", // yellow circle
	"exempt":   "\U0001F49A ", // green heart
	"validate": "\U0001F535 ", // blue circle
	"warn":     "⚠️ ",
	"error":    "❌ ",
	"tool":     "\U0001F527 ",
	"bell":     "\U0001F514 ",
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
