///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - internal/translog/translog.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Package translog implements the optional per-session transcript log: a passive byte-stream tap
// written to a dated, per-client directory and compressed on close.
package translog

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"bbsgate/internal/session"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// Compression identifies the codec applied to a finished transcript.
type Compression string

///////////////////////////////////////////////////////////////////////////////////////////////////

const (
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionNone Compression = "none"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

// Config controls where and how transcripts are written. An empty Dir disables logging entirely.
type Config struct {
	Dir         string
	Compression Compression
	DirPerm     os.FileMode
	FilePerm    os.FileMode
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Transcript is an open per-session log file. A nil *Transcript is valid and absorbs writes
// silently, so callers don't need to branch on whether logging is enabled.
type Transcript struct {
	file     *os.File
	basePath string
	compress Compression
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Open creates a new dated transcript file for sess, under a
// year/month/day/sanitized-client-addr/timestamp_id_seq.log directory layout. A disabled Config
// (empty Dir) returns a usable nil-like Transcript that discards everything.
func Open(cfg Config, sess *session.Session) (*Transcript, error) {
	if cfg.Dir == "" {
		return nil, nil //nolint:nilnil
	}

	now := time.Now()
	clientDir := session.SanitizeAddr(sess.ClientAddr)

	dir := filepath.Join(cfg.Dir,
		fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", now.Month()), fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dir, cfg.DirPerm); err != nil {
		return nil, fmt.Errorf("create transcript date directory: %w", err)
	}

	dir = filepath.Join(dir, clientDir)

	if err := os.MkdirAll(dir, cfg.DirPerm); err != nil {
		return nil, fmt.Errorf("create transcript client directory: %w", err)
	}

	ts := now.Format("150405")
	prefix := ts + "_" + sess.ID + "_"

	entries, _ := os.ReadDir(dir)

	maxSeq := 0

	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), prefix) {
			continue
		}

		rest := strings.SplitN(e.Name()[len(prefix):], ".", 2)
		if n, err := strconv.Atoi(rest[0]); err == nil && n > maxSeq {
			maxSeq = n
		}
	}

	base := fmt.Sprintf("%s_%s_%d", ts, sess.ID, maxSeq+1)
	basePath := filepath.Join(dir, base)

	f, err := os.OpenFile(basePath+".log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, cfg.FilePerm)
	if err != nil {
		return nil, fmt.Errorf("open transcript file: %w", err)
	}

	return &Transcript{file: f, basePath: basePath, compress: cfg.Compression}, nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Write implements io.Writer so a Transcript can sit as a passive tap alongside a byte pump
// endpoint. A nil *Transcript discards everything.
func (t *Transcript) Write(p []byte) (int, error) {
	if t == nil || t.file == nil {
		return len(p), nil
	}

	return t.file.Write(p)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// Close closes the underlying file and, unless compression is disabled, compresses it in place.
func (t *Transcript) Close() {
	if t == nil || t.file == nil {
		return
	}

	logPath := t.basePath + ".log"

	if err := t.file.Close(); err != nil {
		log.Printf("translog: error closing %s: %v", logPath, err)

		return
	}

	if t.compress == "" || t.compress == CompressionNone {
		return
	}

	if err := compressFile(logPath, t.compress); err != nil {
		log.Printf("translog: error compressing %s: %v", logPath, err)
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func compressFile(path string, algo Compression) error {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	perm := info.Mode().Perm()

	var (
		outPath string
		writer  io.WriteCloser
		out     *os.File
	)

	switch algo {
	case CompressionGzip:
		outPath = path + ".gz"

		out, err = os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) //nolint:gosec
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}

		writer = gzip.NewWriter(out)

	case CompressionZstd:
		outPath = path + ".zst"

		out, err = os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) //nolint:gosec
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}

		writer, err = zstd.NewWriter(out)
		if err != nil {
			_ = out.Close()

			return fmt.Errorf("create zstd writer: %w", err)
		}

	default:
		return fmt.Errorf("unknown compression algorithm %q", algo)
	}

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		_ = out.Close()

		return fmt.Errorf("write compressed data: %w", err)
	}

	if err := writer.Close(); err != nil {
		_ = out.Close()

		return fmt.Errorf("close compressed writer: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close compressed file: %w", err)
	}

	return os.Remove(path)
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
