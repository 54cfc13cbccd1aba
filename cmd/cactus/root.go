// Copyright 2025 cactus-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd implements the cactus CLI: run, chat, and bench, each
// loading a model directory into a fresh generate.Session. Structured
// after inference-sim-inference-sim/cmd/root.go's package-level flag
// vars and per-subcommand cobra.Command, logging through logrus instead
// of the teacher's own silent kernel library (which returns no errors and
// logs nothing by contract).
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	modelDir    string
	contextSize int
	maxSeq      int
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "cactus",
	Short: "On-device transformer inference engine",
}

// Execute runs the root command; main only calls this.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modelDir, "model", "", "path to a model directory (required)")
	rootCmd.PersistentFlags().IntVar(&contextSize, "context", 4096, "context size in tokens, bounds the KV cache window")
	rootCmd.PersistentFlags().IntVar(&maxSeq, "max-seq", 8192, "upper bound on the KV cache window")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(benchCmd)
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

func requireModelDir() {
	if modelDir == "" {
		logrus.Fatal("--model is required")
	}
}
