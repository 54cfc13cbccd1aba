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

package generate

// compileStopSequences builds the stop-token-id sequences for one call:
// the EOS token always first, then each caller string tokenized in
// isolation. A string that tokenizes to nothing is ignored (spec.md
// §4.E: "empty sequences are ignored"), matching how encode's own
// ErrTokenization on empty-result is treated here as "no sequence",
// not a call failure.
func (s *Session) compileStopSequences(stopStrings []string) [][]uint32 {
	seqs := make([][]uint32, 0, 1+len(stopStrings))
	seqs = append(seqs, []uint32{s.tok.EOSTokenID()})
	for _, str := range stopStrings {
		ids, err := s.tok.Encode(str, false)
		if err != nil || len(ids) == 0 {
			continue
		}
		seqs = append(seqs, ids)
	}
	return seqs
}

// matchesStopSequence reports whether any compiled stop sequence equals
// the trailing |seq| ids of generated (spec.md §4.E stop-sequence
// semantics: trailing equality, not substring search).
func matchesStopSequence(generated []uint32, stopSeqs [][]uint32) bool {
	for _, seq := range stopSeqs {
		if len(seq) == 0 || len(seq) > len(generated) {
			continue
		}
		if equalTail(generated, seq) {
			return true
		}
	}
	return false
}

func equalTail(generated, seq []uint32) bool {
	offset := len(generated) - len(seq)
	for i, v := range seq {
		if generated[offset+i] != v {
			return false
		}
	}
	return true
}
