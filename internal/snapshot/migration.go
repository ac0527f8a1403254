// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/partisec/stronghold/internal/compression"
	"github.com/partisec/stronghold/internal/cryptobox"
)

const hkdfInfoV2 = "stronghold-snapshot-v2"

// WriteV2 writes a legacy V2 container: an ephemeral X25519 key pair is
// generated, a shared secret is derived against the recipient's static
// public key (the X25519 public point of v2Key, treated as a scalar),
// and HKDF-SHA256 over that shared secret yields the AEAD key. The
// ephemeral public key travels in the header so a reader holding only
// v2Key can recompute the same shared secret. V2 is exercised only to
// produce fixtures for migration; new snapshots should use WriteV3.
func WriteV2(path string, state []byte, v2Key [32]byte, aad []byte, box cryptobox.Provider) error {
	recipientPub, err := curve25519.X25519(v2Key[:], curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("%w: recipient pubkey: %v", ErrIO, err)
	}

	var ephPriv [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return fmt.Errorf("%w: ephemeral key: %v", ErrIO, err)
	}
	ephPub, err := curve25519.X25519(ephPriv[:], curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("%w: ephemeral pubkey: %v", ErrIO, err)
	}
	shared, err := curve25519.X25519(ephPriv[:], recipientPub)
	if err != nil {
		return fmt.Errorf("%w: dh: %v", ErrIO, err)
	}

	key, err := deriveV2Key(shared, ephPub, recipientPub)
	if err != nil {
		return err
	}

	compressed, err := compression.Compress(state)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	sealed, err := box.BoxSeal(key[:], aad, compressed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.Write(VersionV2[:])
	buf.Write(ephPub)
	buf.Write(sealed)

	return atomicWrite(path, buf.Bytes())
}

// ReadV2 opens a legacy V2 container using the recipient's static
// X25519 scalar v2Key and the associated data it was sealed with.
func ReadV2(path string, v2Key [32]byte, aad []byte, box cryptobox.Provider) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if len(raw) < headerLen+32 {
		return nil, ErrBadSnapshotFormat
	}
	if !bytes.Equal(raw[:len(Magic)], Magic[:]) {
		return nil, ErrBadSnapshotFormat
	}
	var version [2]byte
	copy(version[:], raw[len(Magic):headerLen])
	if version != VersionV2 {
		return nil, ErrBadSnapshotVersion
	}

	ephPub := raw[headerLen : headerLen+32]
	sealed := raw[headerLen+32:]

	recipientPub, err := curve25519.X25519(v2Key[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient pubkey: %v", ErrIO, err)
	}
	shared, err := curve25519.X25519(v2Key[:], ephPub)
	if err != nil {
		return nil, fmt.Errorf("%w: dh: %v", ErrIO, err)
	}
	key, err := deriveV2Key(shared, ephPub, recipientPub)
	if err != nil {
		return nil, err
	}

	compressed, err := box.BoxOpen(key[:], aad, sealed)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	state, err := compression.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	return state, nil
}

func deriveV2Key(shared, ephPub, recipientPub []byte) ([32]byte, error) {
	salt := append(append([]byte{}, ephPub...), recipientPub...)
	r := hkdf.New(sha256.New, shared, salt, []byte(hkdfInfoV2))
	var key [32]byte
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("%w: hkdf: %v", ErrIO, err)
	}
	return key, nil
}

// Migrate moves a V2 snapshot to V3: read with the legacy key/AAD,
// write the recovered plaintext state at v3Path under a fresh
// passphrase with empty associated data. V3 never accepts non-empty
// AAD, matching the container's fixed envelope shape.
func Migrate(v2Path string, v2Key [32]byte, v2Aad []byte, v3Path string, v3Passphrase []byte, kdf KDF, box cryptobox.Provider) error {
	state, err := ReadV2(v2Path, v2Key, v2Aad, box)
	if err != nil {
		return err
	}
	return WriteV3(v3Path, state, v3Passphrase, kdf, box)
}
