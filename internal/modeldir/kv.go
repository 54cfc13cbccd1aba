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
	"strings"
)

// parseKV reads a `key = value` line-oriented file: blank lines and lines
// starting with '#' are skipped, everything else splits on the first '='
// with both sides trimmed. Ported from the config-file parsing loop shared
// by Config::from_json and BPETokenizer::load_vocabulary_with_config; used
// here for config.txt. tokenizer_config.txt shares the same line format but
// is parsed by applyTokenizerConfigOverrides instead, since its pad/unk
// override order-dependence needs the raw line sequence rather than a map.
func parseKV(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
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
		out[key] = value
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
