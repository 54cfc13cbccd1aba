// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

package generate

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cactus-engine/cactus-go/internal/cactuserr"
	"github.com/cactus-engine/cactus-go/internal/graph"
	"github.com/cactus-engine/cactus-go/internal/kvcache"
	"github.com/cactus-engine/cactus-go/internal/tensor"
	"github.com/cactus-engine/cactus-go/internal/tokenizer"
)

// scriptedBuilder is a minimal BlockBuilder: it has no attention or FFN
// math at all, it just samples whatever token the test script says is
// next (via a one-hot logits vector, so temperature=0 argmax picks it
// deterministically) and feeds zeroed K/V into the cache. This exercises
// Session's orchestration — prefix reuse, stop sequences, soft-reset
// between steps — independent of any real transformer wiring, which is
// the whole point of the BlockBuilder seam.
type scriptedBuilder struct {
	vocabSize int
	script    []uint32
	calls     int
}

func (b *scriptedBuilder) Build(g *graph.Graph, tokenIDs []uint32, positionOffset int, kv *kvcache.KVCache, sample graph.SampleParams) (Build, error) {
	if b.calls >= len(b.script) {
		b.calls++
		return Build{}, errors.New("scriptedBuilder: script exhausted")
	}
	forced := b.script[b.calls]
	b.calls++

	logitsID, err := g.AddExternalInput(tensor.BufferDesc{Shape: tensor.Shape{b.vocabSize}, Precision: tensor.F32})
	if err != nil {
		return Build{}, err
	}
	logits := make([]byte, b.vocabSize*4)
	binary.NativeEndian.PutUint32(logits[forced*4:], math.Float32bits(1.0))
	if err := g.SetExternalInput(logitsID, logits); err != nil {
		return Build{}, err
	}
	sampleID, err := g.AddSample(logitsID, sample)
	if err != nil {
		return Build{}, err
	}

	n := len(tokenIDs)
	kID, err := g.AddExternalInput(tensor.BufferDesc{Shape: tensor.Shape{n, 1, 1}, Precision: tensor.F32})
	if err != nil {
		return Build{}, err
	}
	if err := g.SetExternalInput(kID, make([]byte, n*4)); err != nil {
		return Build{}, err
	}
	vID, err := g.AddExternalInput(tensor.BufferDesc{Shape: tensor.Shape{n, 1, 1}, Precision: tensor.F32})
	if err != nil {
		return Build{}, err
	}
	if err := g.SetExternalInput(vID, make([]byte, n*4)); err != nil {
		return Build{}, err
	}

	return Build{SampleNodeID: sampleID, KeyNodeIDs: []int64{kID}, ValueNodeIDs: []int64{vID}}, nil
}

// vocabSize, fixture ids: 0 h, 1 i, 2 o, 3 k, 4 ok, 5 <eos>, 6 <|im_start|>, 7 <|im_end|>, 8 <unk>
const fixtureVocabSize = 9
const fixtureEOSID = 5

func newFixtureTokenizer(t *testing.T) *tokenizer.Tokenizer {
	t.Helper()
	dir := t.TempDir()
	vocab := "h\ni\no\nk\nok\n<eos>\n<|im_start|>\n<|im_end|>\n<unk>\n"
	merges := "o k\n"
	vocabPath := filepath.Join(dir, "vocab.txt")
	mergesPath := filepath.Join(dir, "merges.txt")
	if err := os.WriteFile(vocabPath, []byte(vocab), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	if err := os.WriteFile(mergesPath, []byte(merges), 0o644); err != nil {
		t.Fatalf("write merges: %v", err)
	}
	tok, err := tokenizer.Load(tokenizer.Config{
		VocabPath:  vocabPath,
		MergesPath: mergesPath,
		BOSTokenID: 100,
		EOSTokenID: fixtureEOSID,
		UnkTokenID: 8,
	})
	if err != nil {
		t.Fatalf("tokenizer.Load: %v", err)
	}
	return tok
}

func newTestSession(t *testing.T, script []uint32) (*Session, *scriptedBuilder) {
	t.Helper()
	tok := newFixtureTokenizer(t)
	g := graph.New(nil)
	kv := kvcache.New(1, 64, 1, 1, 16, 2, tensor.F32)
	builder := &scriptedBuilder{vocabSize: fixtureVocabSize, script: script}
	return NewSession(g, kv, tok, builder), builder
}

func TestGenerateEmptyMessagesIsTokenizationError(t *testing.T) {
	s, _ := newTestSession(t, nil)
	_, err := s.Generate(nil, Options{MaxTokens: 5}, "", nil)
	if !errors.Is(err, cactuserr.ErrTokenization) {
		t.Fatalf("Generate(no messages) error = %v, want ErrTokenization", err)
	}
}

func TestGenerateMaxTokensZero(t *testing.T) {
	s, _ := newTestSession(t, nil)
	result, err := s.Generate([]tokenizer.ChatMessage{{Role: "user", Content: "hi"}}, Options{MaxTokens: 0}, "", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.CompletionTokens != 0 {
		t.Errorf("CompletionTokens = %d, want 0", result.CompletionTokens)
	}
	if result.TTFTMillis != 0 {
		t.Errorf("TTFTMillis = %v, want 0", result.TTFTMillis)
	}
	if result.PromptTokens == 0 {
		t.Errorf("PromptTokens = 0, want > 0 (whole rendered prompt)")
	}
}

func TestGenerateStopsAfterFirstTokenWhenItMatchesStop(t *testing.T) {
	// boundary #11: a stop sequence equal to the first generated token
	// terminates the loop after exactly one emission, and (per the FFI
	// original) the triggering token is never streamed.
	s, _ := newTestSession(t, []uint32{fixtureEOSID})
	streamCount := 0
	result, err := s.Generate([]tokenizer.ChatMessage{{Role: "user", Content: "hi"}}, Options{MaxTokens: 5}, "",
		func(text string, id uint32) { streamCount++ })
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.CompletionTokens != 1 {
		t.Errorf("CompletionTokens = %d, want 1", result.CompletionTokens)
	}
	if streamCount != 0 {
		t.Errorf("streamCount = %d, want 0 (first token matched stop, never streamed)", streamCount)
	}
}

func TestGenerateStopSequenceMatchesTrailingTokens(t *testing.T) {
	// S3: forced generation spells "h","i","ok"; stop_sequences=["ok"]
	// should end the loop right after the third token even though
	// max_tokens allows more.
	s, _ := newTestSession(t, []uint32{0, 1, 4})
	result, err := s.Generate([]tokenizer.ChatMessage{{Role: "user", Content: "hi"}},
		Options{MaxTokens: 10, StopSequences: []string{"ok"}}, "", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.CompletionTokens != 3 {
		t.Errorf("CompletionTokens = %d, want 3 (stopped at the stop sequence)", result.CompletionTokens)
	}
	if result.Text != "hiok" {
		t.Errorf("Text = %q, want %q", result.Text, "hiok")
	}
}

func TestGeneratePrefixReuseAvoidsFullReencode(t *testing.T) {
	s, _ := newTestSession(t, []uint32{0, 1})

	resultA, err := s.Generate([]tokenizer.ChatMessage{{Role: "user", Content: "hi"}}, Options{MaxTokens: 1}, "", nil)
	if err != nil {
		t.Fatalf("Generate A: %v", err)
	}
	totalAfterA := s.kv.TotalLen()

	messagesB := []tokenizer.ChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: resultA.Text},
		{Role: "user", Content: "ok"},
	}
	fullPromptB, err := s.tok.ApplyChatTemplate(messagesB, true, "")
	if err != nil {
		t.Fatalf("ApplyChatTemplate: %v", err)
	}

	resultB, err := s.Generate(messagesB, Options{MaxTokens: 1}, "", nil)
	if err != nil {
		t.Fatalf("Generate B: %v", err)
	}

	if resultB.PromptTokens >= len(fullPromptB) {
		t.Errorf("PromptTokens = %d, want less than the full re-encoded prompt (%d): prefix should have been reused", resultB.PromptTokens, len(fullPromptB))
	}
	// Each decoding call feeds the prompt delta once (addedLen = len(delta))
	// and then one further token per extra loop iteration; a token's own
	// key/value only enters the cache on the call that feeds it forward as
	// input, so a call producing C completion tokens grows the cache by
	// len(delta) + (C-1), not len(delta)+C.
	wantTotal := totalAfterA + resultB.PromptTokens + resultB.CompletionTokens - 1
	if got := s.kv.TotalLen(); got != wantTotal {
		t.Errorf("kv.TotalLen() after B = %d, want %d (delta-only reuse, no reset)", got, wantTotal)
	}
}

func TestGenerateResetsCacheWhenNotAPrefix(t *testing.T) {
	s, _ := newTestSession(t, []uint32{0, 1})

	if _, err := s.Generate([]tokenizer.ChatMessage{{Role: "user", Content: "hi"}}, Options{MaxTokens: 1}, "", nil); err != nil {
		t.Fatalf("Generate A: %v", err)
	}

	messagesB := []tokenizer.ChatMessage{
		{Role: "system", Content: "ok"},
		{Role: "user", Content: "hi"},
	}
	fullPromptB, err := s.tok.ApplyChatTemplate(messagesB, true, "")
	if err != nil {
		t.Fatalf("ApplyChatTemplate: %v", err)
	}

	resultB, err := s.Generate(messagesB, Options{MaxTokens: 1}, "", nil)
	if err != nil {
		t.Fatalf("Generate B: %v", err)
	}
	if resultB.PromptTokens != len(fullPromptB) {
		t.Errorf("PromptTokens = %d, want %d (full prompt re-submitted after reset)", resultB.PromptTokens, len(fullPromptB))
	}
}

func TestSessionStopSetsExternalStopError(t *testing.T) {
	s, _ := newTestSession(t, []uint32{0, 1, 2, 3})
	first := true
	_, err := s.Generate([]tokenizer.ChatMessage{{Role: "user", Content: "hi"}}, Options{MaxTokens: 10}, "",
		func(text string, id uint32) {
			if first {
				s.Stop()
				first = false
			}
		})
	if !errors.Is(err, cactuserr.ErrStopped) {
		t.Fatalf("Generate error = %v, want ErrStopped", err)
	}
}

func TestSessionStatsMatchesLastResult(t *testing.T) {
	s, _ := newTestSession(t, []uint32{0})
	result, err := s.Generate([]tokenizer.ChatMessage{{Role: "user", Content: "hi"}}, Options{MaxTokens: 1}, "", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	stats := s.Stats()
	if stats.CompletionTokens != result.CompletionTokens || stats.PromptTokens != result.PromptTokens {
		t.Errorf("Stats() = %+v, want to match result %+v", stats, result)
	}
}

func TestSessionResetClearsProcessedTokens(t *testing.T) {
	s, _ := newTestSession(t, []uint32{0})
	if _, err := s.Generate([]tokenizer.ChatMessage{{Role: "user", Content: "hi"}}, Options{MaxTokens: 1}, "", nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	s.Reset()
	if len(s.processedTokens) != 0 {
		t.Errorf("processedTokens after Reset = %v, want empty", s.processedTokens)
	}
	if s.kv.TotalLen() != 0 {
		t.Errorf("kv.TotalLen() after Reset = %d, want 0", s.kv.TotalLen())
	}
}
