package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"claj/server/internal/config"
	"claj/server/internal/httpapi"
	"claj/server/internal/relay"
	"claj/server/internal/store"
	"claj/server/internal/transport"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

// protocolVersion is the control protocol generation this relay speaks.
// Clients with a different one are rejected on room creation.
const protocolVersion int32 = 3

func main() {
	port := flag.Int("port", 7060, "Relay TCP/UDP port")
	apiAddr := flag.String("api", ":8080", "Admin API listen address")
	dbPath := flag.String("db", "claj.db", "SQLite database path")
	noConsole := flag.Bool("no-console", false, "Disable the interactive console")
	debug := flag.Bool("debug", false, "Enable debug logging (auto-enabled for dev builds)")
	flag.Parse()

	// Auto-enable debug logging for dev builds; override with -debug flag.
	level := new(slog.LevelVar)
	if *debug || strings.Contains(Version, "dev") {
		level.Set(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("starting relay", "version", Version, "protocol", protocolVersion,
		"port", *port, "api", *apiAddr, "db", *dbPath)

	sqliteStore, err := store.Open(*dbPath)
	if err != nil {
		slog.Error("open sqlite store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			slog.Error("close sqlite store", "err", closeErr)
		}
	}()

	cfg, err := config.Load(sqliteStore)
	if err != nil {
		slog.Error("load settings", "err", err)
		os.Exit(1)
	}

	loop := relay.NewLoop()
	go loop.Run()

	rel := relay.New(cfg, loop, protocolVersion, relay.Hooks{})

	ts := transport.NewServer(rel, rel.DiscoveryPayload(), transport.DefaultIdleInterval)
	if err := ts.Bind(*port); err != nil {
		slog.Error("bind relay port", "err", err)
		os.Exit(1)
	}
	transportDone := make(chan struct{})
	go func() {
		ts.Run()
		close(transportDone)
	}()

	apiCtx, stopAPI := context.WithCancel(context.Background())
	apiDone := make(chan struct{})
	go func() {
		httpapi.NewServer(rel, cfg).Run(apiCtx, *apiAddr)
		close(apiDone)
	}()

	quit := make(chan struct{}, 1)
	if !*noConsole {
		go newConsole(rel, cfg, level, quit).run(os.Stdin, os.Stdout)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("received signal, shutting down")
	case <-quit:
		slog.Info("console requested shutdown")
	}

	// Warn rooms and wait the grace period, then tear everything down.
	rel.Stop()
	ts.Stop()
	<-transportDone
	loop.Stop()
	stopAPI()
	<-apiDone
	slog.Info("relay stopped")
}
