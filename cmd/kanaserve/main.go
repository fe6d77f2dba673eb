// Copyright 2025 The KanaServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main runs the kanaserve prediction server and its interactive CLI.

KanaServe predicts what a Japanese input method user is about to type. It
learns every committed phrase into an encrypted, fixed capacity history and
merges those predictions with a reranked system dictionary. It runs as a
MessagePack IPC server for input method frontends, or as a CLI for trying
things out by hand.

# Usage

Start the server with default settings:

	kanaserve

Use a custom dictionary directory and enable debug logs:

	kanaserve -data /path/to/chunks -d

Run the interactive prompt without touching the saved history:

	kanaserve -c -no-persist

The data directory holds the chunked dictionary files dict_0001.bin,
dict_0002.bin and so on, built with `histctl build-dict`. Optional
matrix.def and pos.toml files next to them provide connection costs and POS
ids. Without any chunks the server still runs and predicts from history only.

# Configuration

config.toml is created with defaults on first start:

	[server]
	mode = "desktop"
	max_limit = 100
	max_key_len = 64
	metrics_addr = ""

	[history]
	store_capacity = 10000
	entry_lifetime_days = 62
	max_prediction_candidates = 3

	[prediction]
	suggestion_size = 3
	max_candidates = 100

	[dict]
	data_dir = "data"
	max_words = 200000

Edits to the file are picked up while the server runs. History limits,
reranker settings, request limits and the user dictionary suppression lists
apply at once; the mode and the dictionary data need a restart.

The history is sealed with the passphrase in $KANASERVE_PASSPHRASE (see
history.passphrase_env) and lives in the per-user state directory.

# IPC Protocol

See package server. A prediction request:

	{"id": "req1", "op": "predict", "type": "suggestion", "k": "わた"}

and its response:

	{"id": "req1", "s": [{"k": "わたしの", "v": "私の", "c": 0}], "n": 1, "t": 210}

# Command Line Flags

	-config string
	    Path to config.toml (default: user config dir)
	-data string
	    Directory containing binary chunk files (default from config)
	-d  Enable debug mode with detailed logging
	-c  Run in CLI mode instead of server mode
	-limit int
	    Number of suggestions to show in CLI mode
	-no-persist
	    Keep the history in memory only
	-metrics string
	    Serve Prometheus metrics on this address (default from config)
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bastiangx/kanaserve/internal/cli"
	"github.com/bastiangx/kanaserve/internal/engine"
	"github.com/bastiangx/kanaserve/internal/logger"
	"github.com/bastiangx/kanaserve/internal/segment"
	"github.com/bastiangx/kanaserve/internal/utils"
	"github.com/bastiangx/kanaserve/pkg/config"
	"github.com/bastiangx/kanaserve/pkg/server"
	"github.com/bastiangx/kanaserve/pkg/storage"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const (
	Version = "0.3.0-beta"
	AppName = "kanaserve"
	gh      = "https://github.com/bastiangx/kanaserve"
)

// main wires the packages together and only manages the flow.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	showVersion := flag.Bool("version", false, "Show current version")
	configPath := flag.String("config", "", "Path to config.toml")
	dataDir := flag.String("data", "", "Directory containing the binary chunk files")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	limit := flag.Int("limit", 10, "Number of suggestions to show in CLI mode")
	noPersist := flag.Bool("no-persist", false, "Keep the history in memory only")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	pathResolver, err := utils.NewPathResolver()
	if err != nil {
		log.Error("Either env is not set or system is not supported")
		log.Fatalf("Failed to initialize path resolver: %v", err)
	}

	cfg, activeConfigPath, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataDir != "" {
		cfg.Dict.DataDir = *dataDir
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	log.Debugf("Using config file: (%s)", activeConfigPath)

	paths := engine.ResolvePaths(cfg, pathResolver)
	log.Debugf("Using data dir at: %s", paths.DataDir)

	var opts []engine.Option
	if *noPersist {
		log.Warn("History is kept in memory only")
		opts = append(opts, engine.WithStorage(storage.NewMemory()))
	}
	eng, err := engine.New(cfg, paths, opts...)
	if err != nil {
		log.Fatalf("Failed to init engine: %v", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Errorf("Failed to save history: %v", err)
		}
	}()

	var seg server.Segmenter
	if s, err := segment.Default(); err != nil {
		log.Warnf("Sentence learning disabled: %v", err)
	} else {
		seg = s
	}

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.Server.MetricsAddr, eng)
	}

	// CLI would be mainly used for testing and dbg purposes.
	if *cliMode {
		log.SetReportTimestamp(false)
		handler := cli.NewInputHandler(eng.Predictor, seg, cfg.Server.MaxKeyLen, *limit, logger.Default(""))
		if err := runUntilDone(ctx, func() error { return handler.Start(ctx, os.Stdin) }); err != nil {
			log.Errorf("CLI error: %v", err)
		}
		return
	}

	log.Debug("spawning IPC")
	srv := server.NewServer(eng.Predictor, seg, serverOptions(cfg))

	if activeConfigPath != "" {
		watcher, err := config.NewWatcher(activeConfigPath, func(c *config.Config) {
			eng.ApplyConfig(c)
			srv.SetOptions(serverOptions(c))
		})
		if err == nil {
			err = watcher.Start(ctx)
		}
		if err != nil {
			log.Warnf("Config hot reload disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	showStartupInfo(paths, eng)

	if err := runUntilDone(ctx, func() error { return srv.Start(ctx) }); err != nil {
		log.Errorf("Server stopped: %v", err)
	}
}

func serverOptions(cfg *config.Config) server.Options {
	return server.Options{
		MaxLimit:              cfg.Server.MaxLimit,
		MaxKeyLen:             cfg.Server.MaxKeyLen,
		AutoPartialSuggestion: cfg.Prediction.AutoPartialSuggestion,
	}
}

// runUntilDone runs fn until it returns or ctx is canceled. A blocked stdin
// read cannot be interrupted, so on cancel fn is left behind and the process
// exits through the deferred cleanup.
func runUntilDone(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		return nil
	}
}

func serveMetrics(ctx context.Context, addr string, eng *engine.Engine) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", eng.Metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Debugf("Serving metrics on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("Metrics listener: %v", err)
	}
}

func printVersion() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	logger.SetStyles(styles)

	logger.Print("")
	logger.Print("[ KanaServe ] Learns what you type, predicts what comes next")
	logger.Print("", "version", Version)
	logger.Print("")
	logger.Print("use -h or --help to see available options")
	logger.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(paths engine.Paths, eng *engine.Engine) {
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	stats := eng.History.Stats()
	println("===========")
	println(" KanaServe ")
	println("===========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", os.Getpid())
	log.Infof("mode: %s", eng.Predictor.Mode())
	log.Infof("data dir: ( %s )", paths.DataDir)
	log.Infof("history: ( %s ) %d/%d entries", paths.HistoryFile, stats.Entries, stats.Capacity)
	log.Info("status: ready")
	println("===========")
	println("Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}
