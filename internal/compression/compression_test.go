// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCompressDecompressRoundTrip covers property 12: Decompress(Compress(s)) == s
// for an empty string, highly repetitive input, and incompressible
// random input (the three paths Compress can take: nil, a real LZ4
// block, and the all-literal fallback).
func TestCompressDecompressRoundTrip(t *testing.T) {
	random := make([]byte, 4096)
	_, err := rand.Read(random)
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":       {},
		"repetitive":  bytes.Repeat([]byte("abcabcabcabc"), 500),
		"incompressible_random": random,
		"short":       []byte("hi"),
		"single_byte": []byte("x"),
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			compressed, err := Compress(input)
			require.NoError(t, err)

			decompressed, err := Decompress(compressed)
			require.NoError(t, err)
			require.True(t, bytes.Equal(input, decompressed))
		})
	}
}

func TestDecompressUnexpectedEnd(t *testing.T) {
	// A token declaring a 4-byte literal with only 1 byte following.
	truncated := []byte{0x40, 'a'}
	_, err := Decompress(truncated)
	require.Error(t, err)
	require.Equal(t, "lz4: Unexpected End", err.Error())
}

func TestDecompressInvalidDuplicate(t *testing.T) {
	// Zero-length literal, then an offset larger than anything produced
	// so far: the back-reference points before the start of output.
	malformed := []byte{0x00, 0xFF, 0xFF}
	_, err := Decompress(malformed)
	require.Error(t, err)
	require.Equal(t, "lz4: Invalid Duplicate", err.Error())
}

func TestAllLiteralBlockLargeInput(t *testing.T) {
	input := bytes.Repeat([]byte{0xAB}, 20)
	block := allLiteralBlock(input)

	decompressed, err := Decompress(block)
	require.NoError(t, err)
	require.Equal(t, input, decompressed)
}
