// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package cryptobox

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// XChaCha20Poly1305 is the default Provider (C8), matching the AEAD the
// snapshot container (C13) also uses. Ciphertext layout is
// nonce || cipher+tag: the nonce is public and must be unique per
// seal under a given key, so it travels with the ciphertext rather
// than being derived or reused.
type XChaCha20Poly1305 struct{}

// NewXChaCha20Poly1305 returns the default Provider implementation.
func NewXChaCha20Poly1305() *XChaCha20Poly1305 { return &XChaCha20Poly1305{} }

func (XChaCha20Poly1305) BoxKeyLen() int { return chacha20poly1305.KeySize }

func (XChaCha20Poly1305) BoxOverhead() int {
	return chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
}

func (p XChaCha20Poly1305) BoxSeal(key, ad, data []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrKeySize, len(key), chacha20poly1305.KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrEncryption, err)
	}

	out := make([]byte, 0, len(nonce)+len(data)+chacha20poly1305.Overhead)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, data, ad)
	return out, nil
}

func (p XChaCha20Poly1305) BoxOpen(key, ad, ciphertext []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrKeySize, len(key), chacha20poly1305.KeySize)
	}
	if len(ciphertext) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	nonce := ciphertext[:chacha20poly1305.NonceSizeX]
	sealed := ciphertext[chacha20poly1305.NonceSizeX:]
	plain, err := aead.Open(nil, nonce, sealed, ad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plain, nil
}

func (XChaCha20Poly1305) RandomBuf(buf []byte) error {
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("cryptobox: random: %w", err)
	}
	return nil
}
