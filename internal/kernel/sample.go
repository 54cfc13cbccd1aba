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

package kernel

import (
	stdmath "math"
	"math/rand/v2"
	"sort"
)

// SampleParams configures SampleF32 (spec.md §4.A).
type SampleParams struct {
	Temperature float32 // 0 degenerates to argmax
	TopP        float32 // >= 1 disables nucleus sampling
	TopK        int     // 0 disables top-k
	Seed        uint64
}

// SampleF32 samples one token id from logits over the vocabulary.
// Semantics (spec.md §4.A): divide by temperature, retain the top-k
// logits, softmax, retain the smallest prefix of the sorted distribution
// whose cumulative mass >= top_p (nucleus), sample from the renormalized
// distribution. temperature == 0 is deterministic argmax.
func SampleF32(logits []float32, p SampleParams) uint32 {
	if p.Temperature == 0 {
		return uint32(argmax(logits))
	}

	type cand struct {
		id     int
		logit  float64
	}
	cands := make([]cand, len(logits))
	for i, l := range logits {
		cands[i] = cand{id: i, logit: float64(l) / float64(p.Temperature)}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].logit > cands[j].logit })

	if p.TopK > 0 && p.TopK < len(cands) {
		cands = cands[:p.TopK]
	}

	maxLogit := cands[0].logit
	probs := make([]float64, len(cands))
	var sum float64
	for i, c := range cands {
		e := stdmath.Exp(c.logit - maxLogit)
		probs[i] = e
		sum += e
	}
	for i := range probs {
		probs[i] /= sum
	}

	if p.TopP < 1 {
		var cum float64
		cut := len(probs)
		for i, pr := range probs {
			cum += pr
			if cum >= float64(p.TopP) {
				cut = i + 1
				break
			}
		}
		cands = cands[:cut]
		probs = probs[:cut]
		var renorm float64
		for _, pr := range probs {
			renorm += pr
		}
		for i := range probs {
			probs[i] /= renorm
		}
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9E3779B97F4A7C15))
	r := rng.Float64()
	var cum float64
	for i, pr := range probs {
		cum += pr
		if r <= cum {
			return uint32(cands[i].id)
		}
	}
	return uint32(cands[len(cands)-1].id)
}

func argmax(logits []float32) int {
	best := 0
	for i := 1; i < len(logits); i++ {
		if logits[i] > logits[best] {
			best = i
		}
	}
	return best
}
