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

// Package cactuserr defines the typed error kinds of spec.md §7. Each kind
// is a sentinel that wraps a message; callers use errors.Is against the
// sentinel to classify a failure, and errors.As to recover the detail.
//
// The teacher carries no error package of its own (its kernels never
// return errors — "no error returns" is part of their contract). No
// third-party error library (pkg/errors, multierr, ...) appears anywhere
// in the retrieval pack, so this stays on stdlib errors, matching the
// pack's unanimous choice.
package cactuserr

import (
	"errors"
	"fmt"
)

// Sentinel errors classify a failure per spec.md §7. Wrap one with fmt.Errorf
// and %w, or construct a *Error directly.
var (
	// ErrInvalidModelDirectory: missing config or required weight file.
	// Surfaced to the caller; the session is never created.
	ErrInvalidModelDirectory = errors.New("cactus: invalid model directory")

	// ErrShapeMismatch: raised during graph build, before execution.
	ErrShapeMismatch = errors.New("cactus: shape mismatch")

	// ErrRankMismatch: raised during graph build, before execution.
	ErrRankMismatch = errors.New("cactus: rank mismatch")

	// ErrUnsupportedPrecisionCombo: raised during execution dispatch when an
	// operator receives operand precisions outside its fast paths.
	ErrUnsupportedPrecisionCombo = errors.New("cactus: unsupported precision combination")

	// ErrIndexOutOfRange: raised during execution of embedding/gather.
	ErrIndexOutOfRange = errors.New("cactus: index out of range")

	// ErrBufferTooSmall: FFI-boundary response buffer too small to hold the
	// result; caller may retry with a larger buffer.
	ErrBufferTooSmall = errors.New("cactus: buffer too small")

	// ErrTokenization: zero-length encoding of a non-empty prompt. The
	// session remains usable after this error.
	ErrTokenization = errors.New("cactus: tokenization produced no tokens")

	// ErrStopped is not a failure: it reports that external stop() cut a
	// generation call short. The partial result is still valid.
	ErrStopped = errors.New("cactus: generation stopped")
)

// Error pairs a sentinel kind with context, preserving errors.Is/As against
// the sentinel via Unwrap.
type Error struct {
	Kind    error
	Context string
}

func (e *Error) Error() string {
	if e.Context == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Context)
}

func (e *Error) Unwrap() error { return e.Kind }

// Wrap builds an *Error from a sentinel kind and a context string.
func Wrap(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Context: fmt.Sprintf(format, args...)}
}
