// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import "errors"

var (
	ErrBadSnapshotFormat  = errors.New("snapshot: bad format (unknown magic)")
	ErrBadSnapshotVersion = errors.New("snapshot: bad or unsupported version")
	ErrDecryptFailed      = errors.New("snapshot: decrypt failed (wrong passphrase or corrupt file)")
	ErrDecompressFailed   = errors.New("snapshot: decompress failed")
	ErrBadMigrationVersion = errors.New("snapshot: unsupported migration version pair")
	ErrAadNotSupported    = errors.New("snapshot: associated data not supported by this version")
	ErrIO                 = errors.New("snapshot: i/o error")
)
