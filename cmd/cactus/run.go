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
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cactus-engine/cactus-go/internal/tokenizer"
)

var (
	runPrompt    string
	runMaxTokens int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one-shot generation from a prompt",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		requireModelDir()
		if runPrompt == "" {
			logrus.Fatal("--prompt is required")
		}

		session, dir, err := openSession()
		if err != nil {
			logrus.Fatalf("open session: %v", err)
		}

		messages := []tokenizer.ChatMessage{{Role: "user", Content: runPrompt}}
		result, err := session.Generate(messages, defaultOptions(dir, runMaxTokens), "", nil)
		if err != nil {
			logrus.Fatalf("generate: %v", err)
		}

		fmt.Println(result.Text)
		logrus.Infof("prompt_tokens=%d completion_tokens=%d ttft_ms=%.1f tps=%.1f",
			result.PromptTokens, result.CompletionTokens, result.TTFTMillis, result.TokensPerSecond)
	},
}

func init() {
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "prompt text (required)")
	runCmd.Flags().IntVar(&runMaxTokens, "max-tokens", 256, "maximum tokens to generate")
}
