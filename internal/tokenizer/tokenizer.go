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

// Package tokenizer implements byte-level BPE encode/decode and chat
// template rendering, ported from
// original_source/cactus/engine/engine_tokenizer.cpp's BPETokenizer. The
// teacher has no tokenizer of its own (it is a numeric kernel library), so
// this package's structure follows the original one-to-one, in Go idiom:
// maps and slices instead of hand-rolled NUL-joined string keys, a real
// encoding/json parse for the special-tokens sidecar instead of manual
// brace-scanning.
package tokenizer

import (
	"bufio"
	"os"
	"strings"

	"github.com/cactus-engine/cactus-go/internal/cactuserr"
)

// Config names the files a Tokenizer is built from. VocabPath and
// MergesPath are required; the rest are optional sidecars.
type Config struct {
	VocabPath         string
	MergesPath        string
	SpecialTokensPath string
	ChatTemplatePath  string

	BOSTokenID uint32
	EOSTokenID uint32
	UnkTokenID uint32
}

// Tokenizer holds a loaded vocabulary, merge table, and optional chat
// template. All fields are read-only after Load; safe for concurrent use.
type Tokenizer struct {
	idToToken []string
	tokenToID map[string]uint32

	mergePriority map[mergePair]uint32

	specialTokens   map[string]uint32 // literal -> id
	bosID, eosID    uint32
	unkID           uint32
	chatTemplate    string
	hasChatTemplate bool
}

// EOSTokenID, BOSTokenID, UnkTokenID report the special ids resolved at load.
func (t *Tokenizer) EOSTokenID() uint32 { return t.eosID }
func (t *Tokenizer) BOSTokenID() uint32 { return t.bosID }
func (t *Tokenizer) UnkTokenID() uint32 { return t.unkID }

// VocabSize reports the number of loaded vocabulary entries.
func (t *Tokenizer) VocabSize() int { return len(t.idToToken) }

// Load reads the vocabulary and merges files (required) plus any present
// sidecars (special tokens, chat template). Ported from
// BPETokenizer::load_vocabulary_with_config.
func Load(cfg Config) (*Tokenizer, error) {
	t := &Tokenizer{
		tokenToID:     make(map[string]uint32),
		mergePriority: make(map[mergePair]uint32),
		specialTokens: make(map[string]uint32),
		bosID:         cfg.BOSTokenID,
		eosID:         cfg.EOSTokenID,
		unkID:         cfg.UnkTokenID,
	}

	if err := t.loadVocab(cfg.VocabPath); err != nil {
		return nil, err
	}
	if err := t.loadMerges(cfg.MergesPath); err != nil {
		return nil, err
	}
	if cfg.SpecialTokensPath != "" {
		if err := t.loadSpecialTokens(cfg.SpecialTokensPath); err != nil {
			return nil, err
		}
	}
	if cfg.ChatTemplatePath != "" {
		t.loadChatTemplate(cfg.ChatTemplatePath)
	}

	return t, nil
}

func (t *Tokenizer) loadVocab(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "open vocab file %s: %v", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var id uint32
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		t.tokenToID[line] = id
		t.idToToken = append(t.idToToken, line)
		id++
	}
	if err := sc.Err(); err != nil {
		return cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "read vocab file %s: %v", path, err)
	}
	return nil
}

func (t *Tokenizer) loadMerges(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "open merges file %s: %v", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var priority uint32
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		key := mergePair{fields[0], fields[1]}
		if existing, ok := t.mergePriority[key]; !ok || priority < existing {
			t.mergePriority[key] = priority
		}
		priority++
	}
	if err := sc.Err(); err != nil {
		return cactuserr.Wrap(cactuserr.ErrInvalidModelDirectory, "read merges file %s: %v", path, err)
	}
	return nil
}

// Encode tokenizes text into a sequence of vocabulary ids. addSpecial
// prepends BOSTokenID. An empty text (with addSpecial false) is a
// TokenizationError per spec.md §8 boundary 9. Ported from
// BPETokenizer::encode.
func (t *Tokenizer) Encode(text string, addSpecial bool) ([]uint32, error) {
	if text == "" && !addSpecial {
		return nil, cactuserr.Wrap(cactuserr.ErrTokenization, "empty input")
	}

	var ids []uint32
	if addSpecial {
		ids = append(ids, t.bosID)
	}
	if text == "" {
		return ids, nil
	}

	for _, segment := range t.splitWithSpecialTokens(text) {
		if id, ok := t.specialTokens[segment]; ok {
			ids = append(ids, id)
			continue
		}
		chars := byteLevelSplit([]byte(segment))
		merged := t.applyBPE(chars)
		for _, tok := range merged {
			if id, ok := t.tokenToID[tok]; ok {
				ids = append(ids, id)
			} else {
				ids = append(ids, t.unkID)
			}
		}
	}
	if len(ids) == 0 {
		return nil, cactuserr.Wrap(cactuserr.ErrTokenization, "no tokens produced")
	}
	return ids, nil
}

// Decode concatenates the literal for each id and inverts the byte
// placeholder mapping. Ids past the vocabulary are skipped. Ported from
// BPETokenizer::decode.
func (t *Tokenizer) Decode(ids []uint32) string {
	var sb strings.Builder
	for _, id := range ids {
		if int(id) < len(t.idToToken) {
			sb.WriteString(t.idToToken[id])
		}
	}
	return string(unicodeToBytes(sb.String()))
}

// splitWithSpecialTokens splits text at the leftmost-earliest occurrence of
// any registered special-token literal, repeatedly, leaving everything
// between as plain substrings. Ported from
// BPETokenizer::split_with_special_tokens.
func (t *Tokenizer) splitWithSpecialTokens(text string) []string {
	var out []string
	start := 0
	for start < len(text) {
		bestPos := len(text)
		bestLit := ""
		for lit := range t.specialTokens {
			if idx := strings.Index(text[start:], lit); idx >= 0 {
				pos := start + idx
				if pos < bestPos {
					bestPos = pos
					bestLit = lit
				}
			}
		}
		if bestPos >= len(text) {
			out = append(out, text[start:])
			break
		}
		if bestPos > start {
			out = append(out, text[start:bestPos])
		}
		out = append(out, bestLit)
		start = bestPos + len(bestLit)
	}
	return out
}

func (t *Tokenizer) loadChatTemplate(path string) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		t.hasChatTemplate = false
		return
	}
	t.chatTemplate = string(data)
	t.hasChatTemplate = true
}
