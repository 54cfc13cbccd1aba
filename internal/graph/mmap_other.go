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

//go:build !linux

package graph

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/cactus-engine/cactus-go/internal/tensor"
)

// mmapRegion falls back to a plain read on platforms without the Linux
// mmap syscall path (mmap_linux.go). The weight still lands in ordinary
// process memory; only the zero-copy mapping is lost.
type mmapRegion struct {
	raw  []byte
	data []byte
	desc tensor.BufferDesc
}

func mapWeightFile(path string) (*mmapRegion, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	desc, headerSize, err := parseWeightHeader(raw)
	if err != nil {
		return nil, err
	}
	if desc.Precision == tensor.I8 {
		if scale, serr := readScaleSibling(path); serr == nil {
			desc.Scale = scale
		}
	}
	return &mmapRegion{
		raw:  raw,
		data: raw[headerSize : headerSize+desc.ByteSize()],
		desc: desc,
	}, nil
}

func (r *mmapRegion) unmap() error { return nil }

func readScaleSibling(path string) (float64, error) {
	b, err := os.ReadFile(path + ".scale")
	if err != nil {
		return 0, err
	}
	if len(b) < 8 {
		return 0, fmt.Errorf("scale file %q truncated", path+".scale")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}
