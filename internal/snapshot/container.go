// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/partisec/stronghold/internal/compression"
	"github.com/partisec/stronghold/internal/cryptobox"
)

// Magic identifies a stronghold snapshot file ("PARTI").
var Magic = [5]byte{0x50, 0x41, 0x52, 0x54, 0x49}

// VersionV3 is the current container version: Blake2b/Argon2id
// passphrase-derived key used directly with the AEAD, no ephemeral
// key exchange.
var VersionV3 = [2]byte{0x03, 0x00}

// VersionV2 is the legacy container version: an X25519 ephemeral key
// exchange followed by HKDF, read-only going forward except as a
// migration source.
var VersionV2 = [2]byte{0x02, 0x00}

const headerLen = len(Magic) + 2

// WriteV3 atomically writes state (already-serialized SnapshotState
// bytes) as a V3 container at path, under passphrase derived via kdf.
// The write goes to a temp file in the same directory, is fsynced,
// then renamed over the target and the directory is fsynced, so a
// crash mid-write never corrupts a prior valid snapshot.
func WriteV3(path string, state []byte, passphrase []byte, kdf KDF, box cryptobox.Provider) error {
	key, err := kdf.Derive(passphrase)
	if err != nil {
		return err
	}

	compressed, err := compression.Compress(state)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	sealed, err := box.BoxSeal(key[:], nil, compressed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.Write(VersionV3[:])
	buf.Write(sealed)

	return atomicWrite(path, buf.Bytes())
}

// ReadV3 opens a V3 container at path and returns the decompressed
// SnapshotState bytes.
func ReadV3(path string, passphrase []byte, kdf KDF, box cryptobox.Provider) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if len(raw) < headerLen {
		return nil, ErrBadSnapshotFormat
	}
	if !bytes.Equal(raw[:len(Magic)], Magic[:]) {
		return nil, ErrBadSnapshotFormat
	}
	var version [2]byte
	copy(version[:], raw[len(Magic):headerLen])
	if version != VersionV3 {
		// A V3 reader seeing anything other than VersionV3 is a
		// malformed header, not a distinguishable "wrong version"
		// condition (property 10 only promises DecryptFailed or
		// BadSnapshotFormat out of ReadV3).
		return nil, ErrBadSnapshotFormat
	}

	key, err := kdf.Derive(passphrase)
	if err != nil {
		return nil, err
	}

	compressed, err := box.BoxOpen(key[:], nil, raw[headerLen:])
	if err != nil {
		return nil, ErrDecryptFailed
	}

	state, err := compression.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	return state, nil
}

// atomicWrite writes data to a temp file beside path, fsyncs it,
// renames it over path, then fsyncs the containing directory.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: mkdir: %v", ErrIO, err)
	}

	tmpName, err := randomSuffix()
	if err != nil {
		return err
	}
	tmpPath := filepath.Join(dir, filepath.Base(path)+".tmp-"+tmpName)

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrIO, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write temp: %v", ErrIO, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: sync temp: %v", ErrIO, err)
	}
	f.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %v", ErrIO, err)
	}
	if df, err := os.Open(dir); err == nil {
		df.Sync()
		df.Close()
	}
	return nil
}

func randomSuffix() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, len(b))
	for i, x := range b {
		out[i] = alphabet[int(x)%len(alphabet)]
	}
	return string(out), nil
}
