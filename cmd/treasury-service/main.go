// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arcana-engine/treasury/lib/builtin"
	"github.com/arcana-engine/treasury/lib/clock"
	"github.com/arcana-engine/treasury/lib/service"
	"github.com/arcana-engine/treasury/lib/treasury"
	"github.com/arcana-engine/treasury/lib/version"
)

// settings are the process settings read from the environment.
type settings struct {
	Base        string `env:"TREASURY_BASE"`
	Socket      string `env:"TREASURY_SOCKET"`
	LogLevel    string `env:"TREASURY_LOG_LEVEL" envDefault:"info"`
	MetricsAddr string `env:"TREASURY_METRICS_ADDR"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("treasury-service %s\n", version.Info())
		return nil
	}

	var cfg settings
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	level, err := service.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := service.NewLogger(level)

	if cfg.Base == "" {
		if cfg.Base, err = os.Getwd(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	instance, err := treasury.FindFrom(ctx, cfg.Base, treasury.Options{
		Logger:    logger,
		Importers: builtin.Importers(),
	})
	if err != nil {
		return fmt.Errorf("opening treasury: %w", err)
	}
	defer func() {
		if err := instance.Close(); err != nil {
			logger.Error("closing treasury", "error", err)
		}
	}()

	socketPath := cfg.Socket
	if socketPath == "" {
		socketPath = filepath.Join(instance.Config().Temp, "treasury.sock")
	}

	if cfg.MetricsAddr != "" {
		metrics := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer metrics.Close()
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	treasuryService := newTreasuryService(instance, clock.Real(), logger)
	server := service.NewSocketServer(socketPath, logger)
	treasuryService.register(server)

	logger.Info("treasury service running",
		"base", instance.BaseDir(),
		"socket", socketPath,
		"assets", len(instance.Assets()),
		"version", version.Info(),
	)

	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
