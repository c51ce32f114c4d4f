///////////////////////////////////////////////////////////////////////////////////////////////////
// bbsgate - cmd/bbsgate/main.go
// Copyright (c) 2026 The bbsgate Authors
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"bbsgate/internal/capcheck"
	"bbsgate/internal/config"
	"bbsgate/internal/consoleui"
	"bbsgate/internal/diag"
	"bbsgate/internal/encoding"
	"bbsgate/internal/geofilter"
	"bbsgate/internal/ipfilter"
	"bbsgate/internal/metrics"
	"bbsgate/internal/session"
	"bbsgate/internal/sshfront"
	"bbsgate/internal/supervisor"
	"bbsgate/internal/tcpfront"
	"bbsgate/internal/translog"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

const janitorInterval = time.Minute

///////////////////////////////////////////////////////////////////////////////////////////////////

var ( //nolint:gochecknoglobals
	showVersion bool
	checkConfig bool
	logLevel    string
)

///////////////////////////////////////////////////////////////////////////////////////////////////

func init() {
	pflag.CommandLine.SortFlags = false

	pflag.BoolVarP(&showVersion, "version", "v", false, "Show version information and exit")
	pflag.BoolVar(&checkConfig, "check-config", false, "Validate the environment and exit")
	pflag.StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL [debug|info|warn|error]")
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func printVersion() {
	versionString := "bbsgate"

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		versionString += " " + info.Main.Version
	}

	fmt.Println(versionString)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func main() {
	pflag.Parse()

	if showVersion {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(logLevel)
	if err != nil {
		log.Fatalf("ERROR: invalid configuration: %v", err)
	}

	if checkConfig {
		fmt.Println("configuration OK")
		os.Exit(0)
	}

	ipFilter, err := buildIPFilter(cfg)
	if err != nil {
		log.Fatalf("ERROR: loading IP filter lists: %v", err)
	}

	geoFilter := loadGeoFilter(cfg)
	defer geoFilter.Close()

	metricsStore, err := metrics.Open(cfg.MetricsDBPath, cfg.LogPerm)
	if err != nil {
		log.Fatalf("ERROR: opening metrics store: %v", err)
	}

	stopDiag, err := diag.Start(cfg.GopsEnabled)
	if err != nil {
		log.Printf("%swarning: could not start diagnostics agent: %v", consoleui.Prefix("warn"), err)
	}
	defer stopDiag()

	capcheck.WarnIfMissing(cfg.ListenPort)

	if cfg.SSHEnabled {
		capcheck.WarnIfMissing(cfg.SSHListenPort)
	}

	super := supervisor.New(cfg.MaxConnections, ipFilter, metricsStore)

	janitorStop := make(chan struct{})
	go ipFilter.RunJanitor(janitorInterval, janitorStop)

	transLogCfg := translog.Config{
		Dir:         cfg.SessionLogDir,
		Compression: translog.Compression(cfg.SessionLogCompression),
		DirPerm:     cfg.LogDirPerm,
		FilePerm:    cfg.LogPerm,
	}

	onSessionEnd := func(sess *session.Session) {
		switch sess.Protocol {
		case session.ProtocolSSH:
			super.Counters().SSHSessions.Add(1)
		case session.ProtocolTCP:
			super.Counters().TCPSessions.Add(1)
		}

		super.Counters().BytesIn.Add(sess.ClientToBackendBytes)
		super.Counters().BytesOut.Add(sess.BackendToClientBytes)
	}

	tcpListener, err := tcpfront.Listen(tcpfront.Config{
		ListenAddr:   fmt.Sprintf(":%d", cfg.ListenPort),
		BackendHost:  cfg.BackendHost,
		BackendPort:  cfg.BackendPort,
		IdleTimeout:  cfg.ConnectionTimeout,
		IPFilter:     ipFilter,
		GeoFilter:    geoFilter,
		BlockedSet:   cfg.BlockedCountries,
		BlockUnknown: cfg.BlockUnknownCountries,
		Admitter:     super,
		TransLog:     transLogCfg,
		OnSessionEnd: onSessionEnd,
	})
	if err != nil {
		log.Fatalf("ERROR: starting TCP front-end: %v", err)
	}

	log.Printf("TCP listener on %s", tcpListener.Addr())

	closers := []io.Closer{tcpListener}

	var sshServer *sshfront.Server

	if cfg.SSHEnabled {
		sshServer, err = sshfront.Listen(sshfront.Config{
			ListenAddr:  fmt.Sprintf(":%d", cfg.SSHListenPort),
			HostKeyPath: cfg.SSHHostKey,
			Ciphers:     cfg.SSHCiphers,
			BackendHost: cfg.BackendHost,
			Ports: encoding.PortConfig{
				DetectionEnabled: cfg.EncodingDetectionEnabled,
				DefaultPort:      cfg.BackendPort,
				UTF8Port:         cfg.BackendPortUTF8,
				CP437Port:        cfg.BackendPortCP437,
			},
			IdleTimeout:  cfg.ConnectionTimeout,
			IPFilter:     ipFilter,
			GeoFilter:    geoFilter,
			BlockedSet:   cfg.BlockedCountries,
			BlockUnknown: cfg.BlockUnknownCountries,
			Admitter:     super,
			TransLog:     transLogCfg,
			OnSessionEnd: onSessionEnd,
		})
		if err != nil {
			log.Fatalf("ERROR: starting SSH front-end: %v", err)
		}

		log.Printf("SSH listener on %s", sshServer.Addr())

		closers = append(closers, sshServer)
	}

	tcpStop := make(chan struct{})
	go tcpListener.Serve(tcpStop)

	if sshServer != nil {
		sshStop := make(chan struct{})
		go sshServer.Serve(sshStop)
	}

	go consoleAdminLoop(super)

	startDebugServer(super)

	log.Printf("bbsgate is running [PID %d] - type '?' for console commands", os.Getpid())

	super.RunSignalHandler(func() { reloadLists(cfg, ipFilter) }, closers...)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// buildIPFilter loads the configured whitelist/blocklist files and constructs the rate-limit
// filter around them.
func buildIPFilter(cfg *config.Config) (*ipfilter.Filter, error) {
	whitelist, err := ipfilter.LoadList(cfg.WhitelistPath)
	if err != nil {
		return nil, fmt.Errorf("load whitelist: %w", err)
	}

	blocklist, err := ipfilter.LoadList(cfg.BlocklistPath)
	if err != nil {
		return nil, fmt.Errorf("load blocklist: %w", err)
	}

	return ipfilter.New(ipfilter.Config{
		RateLimitEnabled:        cfg.RateLimitEnabled,
		MaxConnectionsPerWindow: cfg.MaxConnectionsPerWindow,
		Window:                  cfg.RateLimitWindow,
		BlockDuration:           cfg.RateLimitBlockDuration,
	}, whitelist, blocklist), nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// reloadLists re-reads the whitelist/blocklist files and swaps them into the live filter. Any
// read error leaves the currently-loaded lists in place and is only logged.
func reloadLists(cfg *config.Config, ipFilter *ipfilter.Filter) {
	whitelist, err := ipfilter.LoadList(cfg.WhitelistPath)
	if err != nil {
		log.Printf("%sreload: error re-reading whitelist: %v", consoleui.Prefix("warn"), err)

		return
	}

	blocklist, err := ipfilter.LoadList(cfg.BlocklistPath)
	if err != nil {
		log.Printf("%sreload: error re-reading blocklist: %v", consoleui.Prefix("warn"), err)

		return
	}

	ipFilter.SetLists(whitelist, blocklist)

	log.Printf("reload: whitelist (%d) and blocklist (%d) entries reloaded",
		len(whitelist), len(blocklist))
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// loadGeoFilter opens the GeoIP database, degrading to a permissive filter and logging a warning
// on failure rather than refusing to start.
func loadGeoFilter(cfg *config.Config) *geofilter.Filter {
	filter, err := geofilter.Load(cfg.GeoIPDBPath)
	if err != nil {
		log.Printf("%swarning: GeoIP database unavailable (%v); country filtering disabled",
			consoleui.Prefix("warn"), err)
	}

	return filter
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// consoleAdminLoop reads single-character commands from stdin: '?' for help, 's' for a stats
// snapshot, 'q' to request a graceful shutdown identical to SIGTERM.
func consoleAdminLoop(super *supervisor.Supervisor) {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "?":
			fmt.Println("commands: ? (help)  s (stats)  l (list sessions)  q (graceful shutdown)")

		case "s":
			printStats(super)

		case "l":
			printSessions(super)

		case "q":
			log.Println("console shutdown requested.")

			if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
				log.Printf("console: error signaling shutdown: %v", err)
			}

		case "":
			// ignore blank lines

		default:
			fmt.Println("unrecognized command, type '?' for help")
		}
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func printStats(super *supervisor.Supervisor) {
	snap := super.Snapshot()

	fmt.Printf("uptime=%s active=%d/%d admitted=%d rejected=%d exempted=%d rate-trips=%d "+
		"ssh-sessions=%d tcp-sessions=%d bytes-in=%d bytes-out=%d\n",
		snap.Uptime, snap.ActiveConnections, snap.MaxConnections,
		snap.Counters.Admitted, snap.Counters.Rejected, snap.Counters.Exempted, snap.Counters.RateTrips,
		snap.Counters.SSHSessions, snap.Counters.TCPSessions, snap.Counters.BytesIn, snap.Counters.BytesOut)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func printSessions(super *supervisor.Supervisor) {
	snap := super.Snapshot()

	if len(snap.Sessions) == 0 {
		fmt.Println("no active sessions")

		return
	}

	for _, s := range snap.Sessions {
		fmt.Printf("[%s] %s %s (up %s)\n",
			s.ID, s.Protocol, s.ClientAddr, time.Since(s.Started).Round(time.Second))
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
