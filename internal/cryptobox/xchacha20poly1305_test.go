// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package cryptobox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return k
}

func TestXChaCha20Poly1305SealOpenRoundTrip(t *testing.T) {
	p := NewXChaCha20Poly1305()
	key := testKey(1)
	ad := []byte("associated-data")
	plain := []byte("the secret value")

	sealed, err := p.BoxSeal(key, ad, plain)
	require.NoError(t, err)
	require.Len(t, sealed, len(plain)+p.BoxOverhead())

	opened, err := p.BoxOpen(key, ad, sealed)
	require.NoError(t, err)
	require.Equal(t, plain, opened)
}

func TestXChaCha20Poly1305TamperDetection(t *testing.T) {
	p := NewXChaCha20Poly1305()
	key := testKey(2)
	sealed, err := p.BoxSeal(key, nil, []byte("payload"))
	require.NoError(t, err)

	tampered := bytes.Clone(sealed)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = p.BoxOpen(key, nil, tampered)
	require.ErrorIs(t, err, ErrDecryption)
}

func TestXChaCha20Poly1305WrongKeyRejected(t *testing.T) {
	p := NewXChaCha20Poly1305()
	sealed, err := p.BoxSeal(testKey(3), nil, []byte("payload"))
	require.NoError(t, err)

	_, err = p.BoxOpen(testKey(4), nil, sealed)
	require.ErrorIs(t, err, ErrDecryption)
}

func TestXChaCha20Poly1305WrongAssociatedDataRejected(t *testing.T) {
	p := NewXChaCha20Poly1305()
	key := testKey(5)
	sealed, err := p.BoxSeal(key, []byte("ad-one"), []byte("payload"))
	require.NoError(t, err)

	_, err = p.BoxOpen(key, []byte("ad-two"), sealed)
	require.ErrorIs(t, err, ErrDecryption)
}

func TestXChaCha20Poly1305RejectsBadKeySize(t *testing.T) {
	p := NewXChaCha20Poly1305()
	_, err := p.BoxSeal([]byte("short"), nil, []byte("x"))
	require.ErrorIs(t, err, ErrKeySize)

	_, err = p.BoxOpen([]byte("short"), nil, []byte("x"))
	require.ErrorIs(t, err, ErrKeySize)
}

func TestXChaCha20Poly1305RandomBuf(t *testing.T) {
	p := NewXChaCha20Poly1305()
	a := make([]byte, 32)
	b := make([]byte, 32)
	require.NoError(t, p.RandomBuf(a))
	require.NoError(t, p.RandomBuf(b))
	require.NotEqual(t, a, b)
}
