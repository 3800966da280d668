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
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/testsynth/pkg/ux"
)

// runFlags holds the flags of the run command.
type runFlags struct {
	configPath   string
	projectPath  string
	sourcePath   string
	rounds       int
	runBenchmark bool
	includeTypes bool
	workers      int
	logLevel     string
	statusAddr   string
}

var (
	flags            runFlags
	personalityLevel string

	rootCmd = &cobra.Command{
		Use:   "testsynth",
		Short: "Generate and repair pytest suites for a Python project",
		Long: `testsynth analyzes a Python project, asks a language model for pytest
test cases function by function, checks and repairs them, and iterates with
coverage feedback until the rounds are spent or every function is covered.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if personalityLevel != "" {
				ux.SetPersonality(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality(os.Getenv)
			}
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a test synthesis session",
		Example: `  testsynth run --project-path ./myproj --source-path myproj
  testsynth run --project-path ./myproj --source-path myproj --num 5 --type`,
		Args: cobra.NoArgs,
		RunE: runSession, // Defined in run.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full, minimal or machine (default: detect)")

	f := runCmd.Flags()
	f.StringVar(&flags.configPath, "config", "testsynth.yaml", "Configuration file")
	f.StringVar(&flags.projectPath, "project-path", "", "Root of the Python project")
	f.StringVar(&flags.sourcePath, "source-path", "", "Directory under test, relative to the project root")
	f.IntVar(&flags.rounds, "num", 0, "Number of generation rounds (default from config: 3)")
	f.BoolVar(&flags.runBenchmark, "run-benchmark", false, "Record per-round coverage of the benchmark modules")
	f.BoolVar(&flags.includeTypes, "type", false, "Write extracted parameter types to the run summary")
	f.IntVar(&flags.workers, "workers", 0, "Concurrent generations (default from config: 16)")
	f.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&flags.statusAddr, "status-addr", "", "Serve live status on this address")
	_ = runCmd.MarkFlagRequired("project-path")
	_ = runCmd.MarkFlagRequired("source-path")

	rootCmd.AddCommand(runCmd)
}
