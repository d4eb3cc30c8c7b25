package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"retail-cli/internal/config"
	"retail-cli/internal/database"
	"retail-cli/internal/logger"
	"retail-cli/internal/runner"
)

func main() {
	var exitCode int
	defer func() {
		os.Exit(exitCode)
	}()

	configPath := flag.String("config", "", "path to the YAML config (default $RETAIL_CONFIG or config.yaml)")
	backend := flag.String("backend", "", "store backend override (supabase, postgres, mysql, mongo or memory)")
	verbose := flag.Bool("v", false, "log at debug level")
	timings := flag.Bool("timings", false, "print store call latencies to stderr")
	flag.Usage = func() {
		runner.Usage(os.Stderr)
		fmt.Fprintln(os.Stderr, "\nglobal flags:")
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		exitCode = 1
		return
	}
	if *backend != "" {
		cfg.Store.Backend = config.NormalizeBackend(*backend)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid config: %v", err)
		exitCode = 1
		return
	}

	level := cfg.Log.Level
	if *verbose {
		level = "debug"
	}
	zlog, err := logger.New(level, cfg.Log.Format)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		exitCode = 1
		return
	}
	defer zlog.Sync()
	zlog, _ = logger.WithInvocation(zlog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inner, err := database.Open(ctx, cfg.Store)
	if err != nil {
		zlog.Error("failed to open store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
		exitCode = 1
		return
	}
	store := database.NewInstrumentedStore(inner)
	defer func() {
		if err := store.Close(); err != nil {
			zlog.Warn("failed to close store", zap.Error(err))
		}
	}()

	err = runner.New(store, cfg, zlog, os.Stdout, os.Stderr).Run(ctx, flag.Args())
	switch {
	case errors.Is(err, runner.ErrUsage):
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		exitCode = 2
	case err != nil:
		zlog.Error("failed to write output", zap.Error(err))
		exitCode = 1
	}

	if *timings {
		if err := runner.PrintTimings(os.Stderr, store.Stats()); err != nil {
			zlog.Warn("failed to print timings", zap.Error(err))
		}
	}
}
