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

// Package modeldir resolves an on-disk model directory: config.txt,
// tokenizer files, and per-layer weight files, into the typed inputs the
// graph builder and tokenizer need. Grounded on
// original_source/cactus/engine/engine_model.cpp's Model::init, which
// reads model_folder/config.txt and model_folder/{vocab,merges,
// tokenizer_config}.txt before building the graph.
package modeldir

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/cactus-engine/cactus-go/internal/cactuserr"
	"github.com/cactus-engine/cactus-go/internal/tensor"
)

// Config is config.txt parsed into typed fields.
type Config struct {
	ModelType string
	Precision tensor.Precision

	NumLayers          int
	AttentionHeadDim   int
	AttentionQHeads    int
	AttentionKVHeads   int
	HiddenSize         int
	FFNIntermediateDim int
	VocabSize          int

	DefaultTemperature float32
	DefaultTopP        float32
	DefaultTopK        int

	RopeTheta         float64
	RMSNormEps        float32
	TieWordEmbeddings bool

	BOSTokenID uint32
	EOSTokenID uint32
	UnkTokenID uint32
}

func loadConfig(path string) (Config, error) {
	kv, err := parseKV(path)
	if err != nil {
		return Config{}, cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "read config.txt: %v", err)
	}

	cfg := Config{
		ModelType:          kv["model_type"],
		DefaultTemperature: 1.0,
		DefaultTopP:        1.0,
		DefaultTopK:        0,
		RopeTheta:          10000.0,
		RMSNormEps:         1e-5,
	}
	cfg.TieWordEmbeddings = kv["tie_word_embeddings"] == "true" || kv["tie_word_embeddings"] == "1"

	precTag, ok := kv["precision"]
	if !ok {
		return Config{}, cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "config.txt missing required key %q", "precision")
	}
	prec, err := tensor.ParsePrecision(precTag)
	if err != nil {
		return Config{}, cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "config.txt: %v", err)
	}
	cfg.Precision = prec

	intFields := map[string]*int{
		"num_layers":           &cfg.NumLayers,
		"attention_head_dim":   &cfg.AttentionHeadDim,
		"attention_heads":      &cfg.AttentionQHeads,
		"attention_kv_heads":   &cfg.AttentionKVHeads,
		"hidden_dim":           &cfg.HiddenSize,
		"ffn_intermediate_dim": &cfg.FFNIntermediateDim,
		"vocab_size":           &cfg.VocabSize,
		"default_top_k":        &cfg.DefaultTopK,
	}
	for key, dst := range intFields {
		v, ok := kv[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "config.txt: %s: %v", key, err)
		}
		*dst = n
	}
	for _, required := range []string{"num_layers", "attention_head_dim", "attention_heads", "attention_kv_heads"} {
		if _, ok := kv[required]; !ok {
			return Config{}, cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "config.txt missing required key %q", required)
		}
	}

	floatFields := map[string]*float32{
		"default_temperature": &cfg.DefaultTemperature,
		"default_top_p":       &cfg.DefaultTopP,
		"layer_norm_eps":      &cfg.RMSNormEps,
	}
	for key, dst := range floatFields {
		v, ok := kv[key]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return Config{}, cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "config.txt: %s: %v", key, err)
		}
		*dst = float32(f)
	}
	if v, ok := kv["rope_theta"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "config.txt: rope_theta: %v", err)
		}
		cfg.RopeTheta = f
	}

	cfg.BOSTokenID = parseTokenID(kv, "bos_token_id", 1)
	cfg.EOSTokenID = parseTokenID(kv, "eos_token_id", 2)
	cfg.UnkTokenID = parseTokenID(kv, "unk_token_id", 0)
	if _, hasUnk := kv["unk_token_id"]; !hasUnk {
		// Ported from load_vocabulary_with_config: pad_token_id backstops
		// unk_token_id only when neither has been seen yet.
		cfg.UnkTokenID = parseTokenID(kv, "pad_token_id", 0)
	}

	return cfg, nil
}

func parseTokenID(kv map[string]string, key string, fallback uint32) uint32 {
	v, ok := kv[key]
	if !ok || v == "null" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(n)
}

// kvWindowAndSink computes the sliding-window cache's window and sink
// sizes, ported from Model::init: default window is
// min(contextSize, 1024), default sink is 4, both overridable via the
// CACTUS_KV_WINDOW_SIZE / CACTUS_KV_SINK_SIZE environment variables.
func kvWindowAndSink(contextSize int) (window, sink int) {
	window = contextSize
	if window > 1024 {
		window = 1024
	}
	sink = 4

	if v := os.Getenv("CACTUS_KV_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			window = n
		}
	}
	if v := os.Getenv("CACTUS_KV_SINK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			sink = n
		}
	}
	return window, sink
}

// weightFileName builds the per-layer weight file name for a named tensor
// within a transformer block, e.g. "blk.3.attn_q.weights".
func weightFileName(layer int, name string) string {
	return "blk." + strconv.Itoa(layer) + "." + name + ".weights"
}

func joinPath(dir, name string) string {
	return filepath.Join(dir, name)
}
