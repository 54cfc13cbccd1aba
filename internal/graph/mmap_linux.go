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

//go:build linux

package graph

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"syscall"

	"github.com/cactus-engine/cactus-go/internal/tensor"
)

// mmapRegion is a weight file mapped read-only for the lifetime of the
// Graph that loaded it. No third-party mmap library appears anywhere in
// the retrieved corpus (DESIGN.md); syscall.Mmap, grounded in
// arx-os-arxos's MMapProcessor, is the one place this module deliberately
// stays on the standard library.
type mmapRegion struct {
	file *os.File
	raw  []byte // the full mapping, header included
	data []byte // payload slice into raw
	desc tensor.BufferDesc
}

func mapWeightFile(path string) (*mmapRegion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("weight file %q is empty", path)
	}
	raw, err := syscall.Mmap(int(f.Fd()), 0, int(stat.Size()), syscall.PROT_READ, syscall.MAP_PRIVATE)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	desc, headerSize, err := parseWeightHeader(raw)
	if err != nil {
		syscall.Munmap(raw)
		f.Close()
		return nil, err
	}

	if desc.Precision == tensor.I8 {
		scale, serr := readScaleSibling(path)
		if serr == nil {
			desc.Scale = scale
		}
	}

	return &mmapRegion{
		file: f,
		raw:  raw,
		data: raw[headerSize : headerSize+desc.ByteSize()],
		desc: desc,
	}, nil
}

func (r *mmapRegion) unmap() error {
	if err := syscall.Munmap(r.raw); err != nil {
		return err
	}
	return r.file.Close()
}

// readScaleSibling loads the little-endian float64 dequantization scale
// from path+".scale" (spec.md §6).
func readScaleSibling(path string) (float64, error) {
	b, err := os.ReadFile(path + ".scale")
	if err != nil {
		return 0, err
	}
	if len(b) < 8 {
		return 0, fmt.Errorf("scale file %q truncated", path+".scale")
	}
	bits := binary.LittleEndian.Uint64(b)
	return math.Float64frombits(bits), nil
}
