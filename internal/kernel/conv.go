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

package kernel

// ConvCausal1DF32 computes a depthwise causal 1-D convolution:
//
//	output[n,t,c] = sum_{k=0}^{K-1} weight[c,k] * input[n, t-(K-1-k)*dilation, c]
//
// with zero-padding for indices before the start of the sequence. Used by
// short-convolution blocks (LFM2-family models interleave attention and
// causal-conv blocks) that SPEC_FULL.md's BlockBuilder wires alongside
// attention. input/output are [n,l,c] row-major; weight is [c,k] row-major.
//
// Supplemented from original_source/cactus/kernel/kernel_conv.cpp
// (cactus_conv1d_causal_depthwise_f16), reduced to a portable scalar loop
// per spec.md §1's "SIMD micro-kernels are out of scope" contract.
func ConvCausal1DF32(input, weight, output []float32, n, l, c, k, dilation int) {
	inBS := l * c
	outBS := l * c

	for b := 0; b < n; b++ {
		xb := input[b*inBS : (b+1)*inBS]
		yb := output[b*outBS : (b+1)*outBS]

		for ch := 0; ch < c; ch++ {
			w := weight[ch*k : ch*k+k]

			for t := 0; t < l; t++ {
				var acc float64
				for ki := 0; ki < k; ki++ {
					srcT := t - (k-1-ki)*dilation
					if srcT < 0 {
						continue
					}
					acc += float64(w[ki]) * float64(xb[srcT*c+ch])
				}
				yb[t*c+ch] = float32(acc)
			}
		}
	}
}
