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

// byteToUnicode and unicodeToByte implement the reversible byte<->unicode
// placeholder mapping ported from BPETokenizer::init_byte_mappings:
// printable ASCII (33-126) and Latin-1 (161-255) bytes map to the code
// point of the same numeric value; every other byte gets a fresh code
// point starting at 256, assigned in byte-value order. Go's rune<->string
// conversion already does the UTF-8 encode/decode the C++ does by hand.
var byteToUnicode [256]rune
var unicodeToByte map[rune]byte

func init() {
	var assigned [256]bool
	for b := 33; b <= 126; b++ {
		byteToUnicode[b] = rune(b)
		assigned[b] = true
	}
	for b := 161; b <= 255; b++ {
		byteToUnicode[b] = rune(b)
		assigned[b] = true
	}

	next := rune(256)
	for b := 0; b < 256; b++ {
		if assigned[b] {
			continue
		}
		byteToUnicode[b] = next
		next++
	}

	unicodeToByte = make(map[rune]byte, 256)
	for b := 0; b < 256; b++ {
		unicodeToByte[byteToUnicode[b]] = byte(b)
	}
}

// bytesToUnicode maps each input byte to its placeholder rune and returns
// the concatenated UTF-8 string. Ported from BPETokenizer::bytes_to_unicode.
func bytesToUnicode(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = byteToUnicode[b]
	}
	return string(runes)
}

// unicodeToBytes inverts bytesToUnicode; unmapped runes emit '?'. Ported
// from BPETokenizer::unicode_to_bytes.
func unicodeToBytes(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := unicodeToByte[r]; ok {
			out = append(out, b)
		} else {
			out = append(out, '?')
		}
	}
	return out
}

// byteLevelSplit maps text to placeholder runes and splits it into one
// string per rune, the unit BPE merges operate on. Ported from
// BPETokenizer::byte_level_split.
func byteLevelSplit(data []byte) []string {
	placeholder := bytesToUnicode(data)
	chars := make([]string, 0, len(placeholder))
	for _, r := range placeholder {
		chars = append(chars, string(r))
	}
	return chars
}
