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
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/cactus-engine/cactus-go/internal/tokenizer"
)

// applyTokenizerConfigOverrides reads model_folder/tokenizer_config.txt, if
// present, and overrides cfg's special-token ids in file line order. Ported
// from BPETokenizer::load_vocabulary_with_config: a missing file is not an
// error (config.txt's own bos/eos/unk ids stand as-is); eos_token_id always
// overrides; bos_token_id and unk_token_id override unless the value is the
// literal "null"; pad_token_id only backstops unk_token_id if nothing has
// set it non-zero yet at that point in the file. vocab_size, which the
// original only compares against the loaded vocabulary for diagnostics, has
// no case here: like every other unrecognized key it is skipped.
func applyTokenizerConfigOverrides(path string, cfg *tokenizer.Config) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])

		switch key {
		case "eos_token_id":
			if id, err := strconv.ParseUint(value, 10, 32); err == nil {
				cfg.EOSTokenID = uint32(id)
			}
		case "bos_token_id":
			if value != "null" {
				if id, err := strconv.ParseUint(value, 10, 32); err == nil {
					cfg.BOSTokenID = uint32(id)
				}
			}
		case "unk_token_id":
			if value != "null" {
				if id, err := strconv.ParseUint(value, 10, 32); err == nil {
					cfg.UnkTokenID = uint32(id)
				}
			}
		case "pad_token_id":
			if cfg.UnkTokenID == 0 {
				if id, err := strconv.ParseUint(value, 10, 32); err == nil {
					cfg.UnkTokenID = uint32(id)
				}
			}
		}
	}
}
