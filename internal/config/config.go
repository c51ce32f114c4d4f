///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/config/config.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package config loads the gateway's environment-variable contract. A dozen scalar settings don't
// warrant a third-party config loader; each variable is read with os.Getenv and parsed with
// strconv, with small helpers for the shapes that need more than a plain string.
package config

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// Config is the fully-resolved, validated process configuration.
type Config struct {
	ListenPort  int
	BackendHost string
	BackendPort int

	EncodingDetectionEnabled bool
	BackendPortUTF8          int
	BackendPortCP437         int

	MaxConnections    int
	ConnectionTimeout time.Duration

	BlockedCountries      map[string]bool
	BlockUnknownCountries bool
	GeoIPDBPath           string

	BlocklistPath string
	WhitelistPath string

	RateLimitEnabled        bool
	MaxConnectionsPerWindow int
	RateLimitWindow         time.Duration
	RateLimitBlockDuration  time.Duration

	SSHEnabled    bool
	SSHListenPort int
	SSHHostKey    string
	SSHCiphers    []string

	SessionLogDir         string
	SessionLogCompression string
	LogDirPerm            os.FileMode
	LogPerm               os.FileMode

	MetricsDBPath string
	GopsEnabled   bool

	LogLevel string
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// defaultSSHCiphers is a legacy-friendly cipher list: it has to interoperate with decades-old BBS
// terminal clients, not just modern OpenSSH.
var defaultSSHCiphers = []string{ //nolint:gochecknoglobals
	"aes128-ctr", "aes192-ctr", "aes256-ctr",
	"aes128-gcm@openssh.com", "chacha20-poly1305@openssh.com",
	"3des-cbc", "aes128-cbc",
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Load reads and validates the full environment-variable contract. logLevelOverride, if non-empty,
// is the --log-level CLI flag value and takes precedence over LOG_LEVEL.
func Load(logLevelOverride string) (*Config, error) {
	cfg := &Config{}

	var err error

	if cfg.ListenPort, err = getIntRange("LISTEN_PORT", 23, 1, 65535); err != nil {
		return nil, err
	}

	cfg.BackendHost = getString("BACKEND_HOST", "127.0.0.1")
	if cfg.BackendHost == "" {
		return nil, fmt.Errorf("BACKEND_HOST must not be empty")
	}

	if cfg.BackendPort, err = getIntRange("BACKEND_PORT", 2323, 1, 65535); err != nil {
		return nil, err
	}

	cfg.EncodingDetectionEnabled = getBool("ENCODING_DETECTION_ENABLED", true)

	if cfg.BackendPortUTF8, err = getIntRange("BACKEND_PORT_UTF8", cfg.BackendPort, 1, 65535); err != nil {
		return nil, err
	}

	if cfg.BackendPortCP437, err = getIntRange("BACKEND_PORT_CP437", cfg.BackendPort, 1, 65535); err != nil {
		return nil, err
	}

	if cfg.MaxConnections, err = getIntMin("MAX_CONNECTIONS", 100, 1); err != nil {
		return nil, err
	}

	timeoutMS, err := getIntMin("CONNECTION_TIMEOUT", 300000, 0)
	if err != nil {
		return nil, err
	}
	cfg.ConnectionTimeout = time.Duration(timeoutMS) * time.Millisecond

	cfg.BlockedCountries = parseCountrySet(getString("BLOCKED_COUNTRIES", ""))
	cfg.BlockUnknownCountries = getBool("BLOCK_UNKNOWN_COUNTRIES", false)
	cfg.GeoIPDBPath = getString("GEOIP_DB_PATH", "./GeoLite2-Country.mmdb")

	cfg.BlocklistPath = getString("BLOCKLIST_PATH", "")
	cfg.WhitelistPath = getString("WHITELIST_PATH", "")

	cfg.RateLimitEnabled = getBool("RATE_LIMIT_ENABLED", true)

	if cfg.MaxConnectionsPerWindow, err = getIntMin("MAX_CONNECTIONS_PER_WINDOW", 10, 1); err != nil {
		return nil, err
	}

	windowMS, err := getIntMin("RATE_LIMIT_WINDOW_MS", 60000, 1000)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitWindow = time.Duration(windowMS) * time.Millisecond

	blockMS, err := getIntMin("RATE_LIMIT_BLOCK_DURATION_MS", 300000, 0)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitBlockDuration = time.Duration(blockMS) * time.Millisecond

	cfg.SSHEnabled = getBool("SSH_ENABLED", false)

	if cfg.SSHListenPort, err = getIntRange("SSH_LISTEN_PORT", 2222, 1, 65535); err != nil {
		return nil, err
	}

	cfg.SSHHostKey = getString("SSH_HOST_KEY", "./ssh_host_key")
	cfg.SSHCiphers = parseCipherList(getString("SSH_CIPHERS", ""))

	cfg.SessionLogDir = getString("SESSION_LOG_DIR", "")
	cfg.SessionLogCompression = getString("SESSION_LOG_COMPRESSION", "gzip")

	switch cfg.SessionLogCompression {
	case "gzip", "zstd", "none":
	default:
		return nil, fmt.Errorf(
			"SESSION_LOG_COMPRESSION must be one of gzip|zstd|none, got %q", cfg.SessionLogCompression)
	}

	if cfg.LogDirPerm, err = getOctalPerm("LOG_DIR_PERM", 0o750); err != nil {
		return nil, err
	}

	if cfg.LogPerm, err = getOctalPerm("LOG_PERM", 0o600); err != nil {
		return nil, err
	}

	cfg.MetricsDBPath = getString("METRICS_DB_PATH", "./bbsgate-stats.db")
	cfg.GopsEnabled = getBool("GOPS_ENABLED", true)

	cfg.LogLevel = getString("LOG_LEVEL", "info")
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("LOG_LEVEL must be one of debug|info|warn|error, got %q", cfg.LogLevel)
	}

	return cfg, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return def
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func getBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}

	return b
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func getIntMin(key string, def, min int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}

	if n < min {
		return 0, fmt.Errorf("%s: %d is below the minimum of %d", key, n, min)
	}

	return n, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func getIntRange(key string, def, min, max int) (int, error) {
	n, err := getIntMin(key, def, min)
	if err != nil {
		return 0, err
	}

	if n > max {
		return 0, fmt.Errorf("%s: %d is above the maximum of %d", key, n, max)
	}

	return n, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// getOctalPerm parses an octal permission string such as "0750".
func getOctalPerm(key string, def os.FileMode) (os.FileMode, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}

	n, err := strconv.ParseUint(v, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid octal permission %q: %w", key, v, err)
	}

	return os.FileMode(n), nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func parseCountrySet(csv string) map[string]bool {
	set := make(map[string]bool)

	for _, code := range strings.Split(csv, ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			set[code] = true
		}
	}

	return set
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func parseCipherList(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return defaultSSHCiphers
	}

	var out []string

	for _, c := range strings.Split(csv, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}

	return out
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
