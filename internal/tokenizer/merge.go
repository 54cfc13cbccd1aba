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

package tokenizer

import "math"

// mergePair is the merge-priority map key; a native composite key instead
// of the C++'s NUL-joined string.
type mergePair struct {
	a, b string
}

// findBestMerge scans every adjacent pair and returns the leftmost
// occurrence of the lowest-priority registered merge, or -1 if none of the
// adjacent pairs has one. Ported from BPETokenizer::find_best_merge_fast.
func (t *Tokenizer) findBestMerge(tokens []string) (pos int, priority uint32) {
	pos = -1
	priority = math.MaxUint32
	for i := 0; i < len(tokens)-1; i++ {
		p, ok := t.mergePriority[mergePair{tokens[i], tokens[i+1]}]
		if ok && p < priority {
			priority = p
			pos = i
		}
	}
	return pos, priority
}

// applyBPE repeatedly collapses the lowest-priority adjacent pair until no
// adjacent pair has a registered merge. Ported from BPETokenizer::apply_bpe.
func (t *Tokenizer) applyBPE(tokens []string) []string {
	if len(tokens) <= 1 {
		return tokens
	}
	current := tokens
	for {
		pos, _ := t.findBestMerge(current)
		if pos == -1 {
			break
		}
		next := make([]string, 0, len(current)-1)
		for i := 0; i < len(current); i++ {
			if i == pos {
				next = append(next, current[i]+current[i+1])
				i++
			} else {
				next = append(next, current[i])
			}
		}
		current = next
	}
	return current
}
