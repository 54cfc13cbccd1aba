// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeFixture builds a tiny byte-level BPE vocab covering "low", "lower",
// "newest" style merges, enough to exercise multi-step merging and an
// unknown-token fallback.
func writeFixture(t *testing.T) (vocabPath, mergesPath string) {
	t.Helper()
	dir := t.TempDir()

	vocab := []byte("l\no\nw\ne\nr\nn\ns\nt\nlo\nlow\nlowe\nlower\nnewest\n<|im_start|>\n<|im_end|>\n<unk>\n")
	merges := []byte("l o\nlo w\nlow e\nlowe r\nn e\nne w\nnew e\nnewe s\nnewes t\n")

	vocabPath = filepath.Join(dir, "vocab.txt")
	mergesPath = filepath.Join(dir, "merges.txt")
	if err := os.WriteFile(vocabPath, vocab, 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	if err := os.WriteFile(mergesPath, merges, 0o644); err != nil {
		t.Fatalf("write merges: %v", err)
	}
	return vocabPath, mergesPath
}

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	vocabPath, mergesPath := writeFixture(t)
	tok, err := Load(Config{
		VocabPath:  vocabPath,
		MergesPath: mergesPath,
		BOSTokenID: 100,
		EOSTokenID: 101,
		UnkTokenID: 15, // <unk>
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tok
}

func TestEncodeMergesToLongestTokens(t *testing.T) {
	tok := newTestTokenizer(t)
	ids, err := tok.Encode("low", false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wantID, ok := tok.tokenToID["low"]
	if !ok {
		t.Fatalf("fixture missing expected token 'low'")
	}
	if len(ids) != 1 || ids[0] != wantID {
		t.Errorf("Encode(%q) = %v, want single token %d", "low", ids, wantID)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	tok := newTestTokenizer(t)
	for _, s := range []string{"low", "lower", "newest", "lowe"} {
		ids, err := tok.Encode(s, false)
		if err != nil {
			t.Fatalf("Encode(%q): %v", s, err)
		}
		got := tok.Decode(ids)
		if got != s {
			t.Errorf("round trip %q: decode(encode) = %q", s, got)
		}
	}
}

func TestEncodeEmptyIsTokenizationError(t *testing.T) {
	tok := newTestTokenizer(t)
	if _, err := tok.Encode("", false); err == nil {
		t.Fatal("Encode(\"\") should fail")
	}
}

func TestEncodeAddSpecialPrependsBOS(t *testing.T) {
	tok := newTestTokenizer(t)
	ids, err := tok.Encode("low", true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) < 2 || ids[0] != tok.BOSTokenID() {
		t.Errorf("Encode with addSpecial: ids[0] = %v, want BOS %d", ids, tok.BOSTokenID())
	}
}

func TestUnknownByteFallsBackToUnk(t *testing.T) {
	tok := newTestTokenizer(t)
	ids, err := tok.Encode("z", false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) != 1 || ids[0] != tok.UnkTokenID() {
		t.Errorf("Encode(%q) = %v, want single unk token %d", "z", ids, tok.UnkTokenID())
	}
}

func TestSpecialTokenSplitIsAtomic(t *testing.T) {
	vocabPath, mergesPath := writeFixture(t)
	dir := filepath.Dir(vocabPath)
	specialPath := filepath.Join(dir, "special_tokens.json")
	if err := os.WriteFile(specialPath, []byte(`{"special_tokens":{"16":"<|im_start|>","17":"<|im_end|>"}}`), 0o644); err != nil {
		t.Fatalf("write special tokens: %v", err)
	}

	tok, err := Load(Config{
		VocabPath:         vocabPath,
		MergesPath:        mergesPath,
		SpecialTokensPath: specialPath,
		UnkTokenID:        15,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ids, err := tok.Encode("<|im_start|>low<|im_end|>", false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []uint32{16, tok.tokenToID["low"], 17}
	if len(ids) != len(want) {
		t.Fatalf("Encode = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestFormatChatPromptDefault(t *testing.T) {
	tok := newTestTokenizer(t)
	got := tok.FormatChatPrompt([]ChatMessage{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}, true, "")
	want := "<|im_start|>system\nbe terse<|im_end|>\n<|im_start|>user\nhi<|im_end|>\n<|im_start|>assistant\n"
	if got != want {
		t.Errorf("FormatChatPrompt = %q, want %q", got, want)
	}
}

func TestFormatChatPromptWithTools(t *testing.T) {
	tok := newTestTokenizer(t)
	got := tok.FormatChatPrompt([]ChatMessage{
		{Role: "user", Content: "what's the weather"},
	}, true, `{"name":"get_weather"}`)
	if got == "" {
		t.Fatal("FormatChatPrompt with tools returned empty string")
	}
	if want := "tool_calls"; !strings.Contains(got, want) {
		t.Errorf("FormatChatPrompt with tools missing %q in:\n%s", want, got)
	}
	if want := `{"name":"get_weather"}`; !strings.Contains(got, want) {
		t.Errorf("FormatChatPrompt with tools missing schema %q in:\n%s", want, got)
	}
}
