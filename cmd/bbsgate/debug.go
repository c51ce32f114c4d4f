//go:build debug

///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - cmd/bbsgate/debug.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" //nolint:gosec
	"time"

	"github.com/arl/statsviz"

	"bbsgate/internal/supervisor"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

const debugPort = 6060

///////////////////////////////////////////////////////////////////////////////////////////////////

var activeConnectionsVar = expvar.NewInt("bbsgate_active_connections") //nolint:gochecknoglobals

///////////////////////////////////////////////////////////////////////////////////////////////////

// startDebugServer exposes statsviz, pprof, and an expvar of the live connection count on a
// separate HTTP listener. Only built with -tags debug; never started in a production build.
func startDebugServer(super *supervisor.Supervisor) {
	mux := http.NewServeMux()

	statsviz.Register(mux)

	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	mux.Handle("/debug/vars", http.DefaultServeMux)

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>bbsgate debug</title></head><body>`+
			`<ul><li><a href="/debug/vars">expvar</a></li>`+
			`<li><a href="/debug/pprof/">pprof</a></li>`+
			`<li><a href="/debug/statsviz/">statsviz</a></li></ul></body></html>`)
	})

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for range ticker.C {
			activeConnectionsVar.Set(int64(super.Snapshot().ActiveConnections))
		}
	}()

	go func() {
		log.Printf("debug HTTP server listening on :%d", debugPort)
		log.Print(http.ListenAndServe(fmt.Sprintf(":%d", debugPort), mux)) //nolint:gosec
	}()
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
