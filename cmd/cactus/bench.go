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

package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cactus-engine/cactus-go/internal/tokenizer"
)

var (
	benchPrompt string
	benchTokens int
	benchRounds int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Generate a fixed number of tokens repeatedly and report a running tps average",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		requireModelDir()
		if benchPrompt == "" {
			logrus.Fatal("--prompt is required")
		}

		session, dir, err := openSession()
		if err != nil {
			logrus.Fatalf("open session: %v", err)
		}

		messages := []tokenizer.ChatMessage{{Role: "user", Content: benchPrompt}}
		opts := defaultOptions(dir, benchTokens)

		var totalTokens int
		var totalMillis float64
		for round := 1; round <= benchRounds; round++ {
			session.Reset()
			result, err := session.Generate(messages, opts, "", nil)
			if err != nil {
				logrus.Fatalf("generate (round %d): %v", round, err)
			}
			totalTokens += result.CompletionTokens
			totalMillis += result.TotalMillis

			runningTPS := float64(totalTokens) / (totalMillis / 1000)
			logrus.Infof("round %d/%d: %d tokens, %.1f tok/s this round, %.1f tok/s running avg",
				round, benchRounds, result.CompletionTokens, result.TokensPerSecond, runningTPS)
		}
	},
}

func init() {
	benchCmd.Flags().StringVar(&benchPrompt, "prompt", "Once upon a time", "fixed prompt to generate from")
	benchCmd.Flags().IntVar(&benchTokens, "tokens", 128, "tokens to generate per round")
	benchCmd.Flags().IntVar(&benchRounds, "rounds", 5, "number of generation rounds to average over")
}
