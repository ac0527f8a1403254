// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import "errors"

// Sentinel errors for the vault layer (C11). The top-level engine
// translates these into the *stronghold.Error taxonomy at the package
// boundary.
var (
	ErrVaultNotInit   = errors.New("vault: not initialized")
	ErrVaultExists    = errors.New("vault: already initialized")
	ErrRecordNotFound = errors.New("vault: record not found")
	ErrEncryption     = errors.New("vault: encryption failed")
	ErrDecryption     = errors.New("vault: decryption failed")
	ErrDatabase       = errors.New("vault: database invariant violated")
	ErrLockNotAvailable = errors.New("vault: lock not available")
)
