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

	"github.com/cactus-engine/cactus-go/internal/generate"
	"github.com/cactus-engine/cactus-go/internal/graph"
	"github.com/cactus-engine/cactus-go/internal/kernel/workerpool"
	"github.com/cactus-engine/cactus-go/internal/kvcache"
	"github.com/cactus-engine/cactus-go/internal/modeldir"
	"github.com/cactus-engine/cactus-go/internal/refmodel"
	"github.com/cactus-engine/cactus-go/internal/tokenizer"
)

// openSession loads a model directory and wires it into a fresh
// generate.Session, shared by run/chat/bench. The KV cache's window and
// sink are sized from contextSize per modeldir.Dir.KVWindowAndSink;
// maxSeq only caps that window (kvcache.New lowers the window to maxSeq
// when it is larger). The ring holds window+sink tokens per layer and
// starts evicting the oldest non-sink tokens once that many are cached.
func openSession() (*generate.Session, *modeldir.Dir, error) {
	dir, err := modeldir.Open(modelDir)
	if err != nil {
		return nil, nil, err
	}
	logrus.WithFields(logrus.Fields{
		"model_type": dir.Config.ModelType,
		"num_layers": dir.Config.NumLayers,
		"vocab_size": dir.Config.VocabSize,
	}).Info("loaded model directory")

	tok, err := tokenizer.Load(dir.TokenizerConfig())
	if err != nil {
		return nil, nil, err
	}

	window, sink := dir.KVWindowAndSink(contextSize)
	kv := kvcache.New(dir.Config.NumLayers, maxSeq, dir.Config.AttentionKVHeads, dir.Config.AttentionHeadDim, window, sink, dir.Config.Precision)

	pool := workerpool.New(0)
	g := graph.New(pool)
	model := refmodel.New(dir)

	return generate.NewSession(g, kv, tok, model), dir, nil
}

func defaultOptions(dir *modeldir.Dir, maxTokens int) generate.Options {
	return generate.Options{
		Temperature: dir.Config.DefaultTemperature,
		TopP:        dir.Config.DefaultTopP,
		TopK:        dir.Config.DefaultTopK,
		MaxTokens:   maxTokens,
	}
}
