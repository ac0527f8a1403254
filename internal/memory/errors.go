// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import "errors"

// Sentinel errors for the protected-memory layer (C16 "Memory" kinds).
// internal/keyprovider and internal/vault pass these through unchanged;
// the top-level engine translates them into the engine-wide
// *stronghold.Error taxonomy at the package boundary.
var (
	ErrZeroSized       = errors.New("memory: zero-sized allocation not allowed")
	ErrUseAfterFree    = errors.New("memory: use of zeroized/released memory")
	ErrBorrowConflict  = errors.New("memory: conflicting borrow already active")
	ErrAllocation      = errors.New("memory: allocation failed")
	ErrSizeMismatch    = errors.New("memory: shard size mismatch")
	ErrShardCount      = errors.New("memory: shard count out of range [2,8]")
	ErrRefreshFailed   = errors.New("memory: shard refresh failed")
	ErrFileSystem      = errors.New("memory: filesystem operation failed")
	ErrLockNotAvailable = errors.New("memory: lock not available")
)
