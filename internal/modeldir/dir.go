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

package modeldir

import (
	"os"

	"github.com/cactus-engine/cactus-go/internal/cactuserr"
	"github.com/cactus-engine/cactus-go/internal/tokenizer"
)

// Dir is a validated on-disk model directory.
type Dir struct {
	path   string
	Config Config
}

// Open validates model_folder/config.txt and the required tokenizer files
// exist, parses config.txt, and returns a Dir ready to resolve weight and
// tokenizer paths. Ported from Model::init's directory layout checks.
func Open(path string) (*Dir, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "%s is not a directory", path)
	}

	cfg, err := loadConfig(joinPath(path, "config.txt"))
	if err != nil {
		return nil, err
	}

	for _, required := range []string{"vocab.txt", "merges.txt", "token_embeddings.weights"} {
		if _, err := os.Stat(joinPath(path, required)); err != nil {
			return nil, cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "missing required file %q", required)
		}
	}

	return &Dir{path: path, Config: cfg}, nil
}

// Path returns the model directory's filesystem path.
func (d *Dir) Path() string { return d.path }

// EmbeddingsPath is the token embedding table's weight file.
func (d *Dir) EmbeddingsPath() string { return joinPath(d.path, "token_embeddings.weights") }

// OutputWeightPath is the final projection (logits) weight file.
func (d *Dir) OutputWeightPath() string { return joinPath(d.path, "output.weights") }

// OutputNormPath is the final RMSNorm applied to the last layer's hidden
// state before the output projection.
func (d *Dir) OutputNormPath() string { return joinPath(d.path, "output_norm.weights") }

// LayerWeightPath builds the path to a named weight tensor within
// transformer block `layer` (e.g. "attn_q", "attn_k", "ffn_gate").
func (d *Dir) LayerWeightPath(layer int, name string) string {
	return joinPath(d.path, weightFileName(layer, name))
}

// KVWindowAndSink resolves the sliding-window cache's window and sink
// sizes for a session with the given context length.
func (d *Dir) KVWindowAndSink(contextSize int) (window, sink int) {
	return kvWindowAndSink(contextSize)
}

// TokenizerConfig builds the tokenizer.Config this directory implies,
// including optional sidecars (special_tokens.json, chat_template.jinja2,
// tokenizer_config.txt) when present on disk.
func (d *Dir) TokenizerConfig() tokenizer.Config {
	cfg := tokenizer.Config{
		VocabPath:  joinPath(d.path, "vocab.txt"),
		MergesPath: joinPath(d.path, "merges.txt"),
		BOSTokenID: d.Config.BOSTokenID,
		EOSTokenID: d.Config.EOSTokenID,
		UnkTokenID: d.Config.UnkTokenID,
	}
	if _, err := os.Stat(joinPath(d.path, "special_tokens.json")); err == nil {
		cfg.SpecialTokensPath = joinPath(d.path, "special_tokens.json")
	}
	if _, err := os.Stat(joinPath(d.path, "chat_template.jinja2")); err == nil {
		cfg.ChatTemplatePath = joinPath(d.path, "chat_template.jinja2")
	}
	applyTokenizerConfigOverrides(joinPath(d.path, "tokenizer_config.txt"), &cfg)
	return cfg
}
