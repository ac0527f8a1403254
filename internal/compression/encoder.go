// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"fmt"

	"github.com/pierrec/lz4"
)

// Compress produces a single standard LZ4 block Decompress can read
// back. It delegates to pierrec/lz4's block compressor rather than
// hand-rolling an encoder: unlike the decoder, the encoder carries no
// historical-error-string obligation, so there is no reason not to use
// the maintained implementation.
func Compress(input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, nil
	}

	dst := make([]byte, lz4.CompressBlockBound(len(input)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(input, dst, ht[:])
	if err != nil {
		return nil, fmt.Errorf("lz4: compress: %w", err)
	}
	if n == 0 {
		// Incompressible input: pierrec signals this by returning 0.
		// Fall back to an all-literal block the hand-written decoder
		// can still read.
		return allLiteralBlock(input), nil
	}
	return dst[:n], nil
}

// allLiteralBlock emits a single token whose literal-length field
// covers the whole input and no match, which Decompress treats as an
// all-literal block (readDuplicate is never reached because the
// decoder stops as soon as input is exhausted after the literal).
func allLiteralBlock(input []byte) []byte {
	out := make([]byte, 0, len(input)+len(input)/255+16)
	n := len(input)
	if n < 15 {
		out = append(out, byte(n<<4))
	} else {
		out = append(out, 0xF0)
		rem := n - 15
		for rem >= 0xFF {
			out = append(out, 0xFF)
			rem -= 0xFF
		}
		out = append(out, byte(rem))
	}
	out = append(out, input...)
	return out
}
