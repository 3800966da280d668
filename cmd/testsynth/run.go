// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/testsynth/pkg/logging"
	"github.com/AleutianAI/testsynth/pkg/ux"
	"github.com/AleutianAI/testsynth/services/config"
	"github.com/AleutianAI/testsynth/services/engine"
	"github.com/AleutianAI/testsynth/services/pytools"
	"github.com/AleutianAI/testsynth/services/stats"
	"github.com/AleutianAI/testsynth/services/status"
	"github.com/AleutianAI/testsynth/services/telemetry"
)

// runSession executes one session from the loaded configuration and flags.
//
// The exit status reflects whether the session ran to completion, not how
// many tests were accepted.
func runSession(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		ux.Error(os.Stderr, err.Error())
		return err
	}
	if err := applyFlags(&cfg, flags); err != nil {
		ux.Error(os.Stderr, err.Error())
		return err
	}
	if err := cfg.Validate(); err != nil {
		ux.Error(os.Stderr, err.Error())
		return err
	}

	interactive := ux.GetPersonality() != ux.PersonalityMachine && ux.IsTerminal(os.Stdout)
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "testsynth",
		JSON:    cfg.Logging.JSON,
		// The progress bar owns the terminal; logs still go to the file.
		Quiet: interactive && cfg.Logging.Dir != "",
	})
	defer logger.Close()
	slogger := logger.Slog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telCfg := telemetry.DefaultConfig()
	telCfg.TraceExporter = cfg.Telemetry.Traces
	telCfg.MetricExporter = cfg.Telemetry.Metrics
	if cfg.Telemetry.OTLPEndpoint != "" {
		telCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	shutdown, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		ux.Error(os.Stderr, err.Error())
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slogger.Warn("telemetry shutdown", "error", err)
		}
	}()
	metrics, err := telemetry.NewMetrics(otel.Meter("testsynth"))
	if err != nil {
		return err
	}

	gateway, transcript, err := newOracle(cfg, slogger)
	if err != nil {
		ux.Error(os.Stderr, err.Error())
		return err
	}

	runner := pytools.NewRunner(pytools.Config{
		Python:          cfg.Python.Interpreter,
		Root:            cfg.Project.Root,
		TestTimeout:     cfg.Python.TestTimeout,
		LintTimeout:     cfg.Python.LintTimeout,
		CoverageTimeout: cfg.Python.CoverageTimeout,
	}, pytools.WithLogger(slogger))
	for tool, ok := range runner.DetectTools(ctx) {
		if !ok {
			ux.Warning(os.Stderr, fmt.Sprintf("%s is not available to %s; its checks will count as failures", tool, cfg.Python.Interpreter))
		}
	}

	benchmark := benchmarkModules(cfg, slogger)

	rs := newRetrieval(ctx, cfg, slogger)
	defer func() {
		if err := closeAll(rs, transcript); err != nil {
			slogger.Warn("close resources", "error", err)
		}
	}()

	opts := []engine.Option{
		engine.WithObserver(ux.NewProgress(os.Stdout)),
		engine.WithObserver(metrics),
		engine.WithPublishers(append([]stats.Publisher{metrics}, newSinks(ctx, cfg, slogger)...)...),
		engine.WithLogger(slogger),
	}
	if rs.embedder != nil {
		opts = append(opts, engine.WithRetrieval(rs.embedder, rs.index))
	}
	eng, err := engine.New(engineConfig(cfg, benchmark), gateway, runner, opts...)
	if err != nil {
		ux.Error(os.Stderr, err.Error())
		return err
	}

	if cfg.Status.Enabled {
		srv := status.NewServer(eng, telemetry.MetricsHandler(), slogger)
		if err := srv.Start(cfg.Status.Addr); err != nil {
			ux.Warning(os.Stderr, err.Error())
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
		}
	}

	ux.Title(os.Stdout, fmt.Sprintf("testsynth %s", eng.RunID()))
	ux.Info(os.Stdout, fmt.Sprintf("project %s, source %s, %d rounds", cfg.Project.Root, cfg.Project.SourceDir, cfg.Project.Rounds))

	res, err := eng.Run(ctx)
	if err != nil {
		ux.Error(os.Stderr, fmt.Sprintf("run failed: %v", err))
		return err
	}
	answered, declined := gateway.Counts()
	slogger.Info("oracle traffic", "answered", answered, "declined", declined)
	ux.RunSummary(os.Stdout, res.Summary, res.Path)
	return nil
}
