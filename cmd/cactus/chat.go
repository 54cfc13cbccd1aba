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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cactus-engine/cactus-go/internal/tokenizer"
)

var chatMaxTokens int

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive REPL, reusing one session's KV cache across turns",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		requireModelDir()

		session, dir, err := openSession()
		if err != nil {
			logrus.Fatalf("open session: %v", err)
		}

		// One growing transcript per process: the whole point of chat mode
		// is that the KV cache is never Reset between turns, so the prefix
		// shared with the previous turn is never recomputed.
		var history []tokenizer.ChatMessage

		opts := defaultOptions(dir, chatMaxTokens)
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Println("cactus chat — blank line or Ctrl-D to exit")
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				break
			}

			history = append(history, tokenizer.ChatMessage{Role: "user", Content: line})
			result, err := session.Generate(history, opts, "", func(text string, id uint32) {
				fmt.Print(text)
			})
			fmt.Println()
			if err != nil {
				logrus.Errorf("generate: %v", err)
				continue
			}
			history = append(history, tokenizer.ChatMessage{Role: "assistant", Content: result.Text})
		}
	},
}

func init() {
	chatCmd.Flags().IntVar(&chatMaxTokens, "max-tokens", 256, "maximum tokens to generate per turn")
}
