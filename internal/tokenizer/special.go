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

import (
	"encoding/json"
	"os"
	"strconv"
)

// specialTokensFile is the sidecar shape: {"special_tokens": {"<id>":
// "<literal>", ...}}, id keyed by its decimal string id. The C++ parses
// this same shape by hand-scanning braces and quotes; Go has a real JSON
// decoder, so use it.
type specialTokensFile struct {
	SpecialTokens map[string]string `json:"special_tokens"`
}

// loadSpecialTokens is a no-op (not an error) if the sidecar is missing,
// matching BPETokenizer::load_special_tokens's silent-skip behavior.
func (t *Tokenizer) loadSpecialTokens(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var parsed specialTokensFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil
	}
	for idStr, literal := range parsed.SpecialTokens {
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			continue
		}
		t.specialTokens[literal] = uint32(id)
	}
	return nil
}
