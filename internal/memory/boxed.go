// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/hashicorp/go-secure-stdlib/mlock"
)

// pageState tracks the mprotect level currently applied to a Boxed
// cell's data region.
type pageState int

const (
	pageNone pageState = iota
	pageRead
	pageReadWrite
)

// Boxed is a heap region sized to exactly one value, page-padded,
// mprotect-guarded, mlocked against swapping, and zeroed on Close (C2).
// It has exactly one logical owner; Buffer (C3) is the caller-facing
// borrow-checked handle layered on top of it.
type Boxed struct {
	mu       sync.Mutex
	data     []byte // the mmap'd region, data[:size] is the user-visible window
	size     int
	state    pageState
	readers  int
	writing  bool
	locked   bool
	released bool
}

// NewBoxed allocates a guarded cell sized len(init) bytes and copies
// init into it, then immediately sets the region to no-access. Fails
// with an allocation error if mmap/mlock/mprotect are refused by the OS.
func NewBoxed(init []byte) (*Boxed, error) {
	size := len(init)

	region, err := guardedAlloc(size)
	if err != nil {
		return nil, err
	}

	b := &Boxed{data: region, size: size, state: pageNone}

	if size > 0 {
		if err := mlock.LockMemory(b.data[:size]); err != nil {
			guardedFree(region)
			return nil, fmt.Errorf("%w: mlock: %v", ErrAllocation, err)
		}
		b.locked = true

		if err := b.protect(pageReadWrite); err != nil {
			_ = mlock.UnlockMemory(b.data[:size])
			guardedFree(region)
			return nil, err
		}
	}

	copy(b.data[:size], init)
	if err := b.protect(pageNone); err != nil {
		b.Close()
		return nil, err
	}

	runtime.SetFinalizer(b, (*Boxed).finalize)

	return b, nil
}

// Size returns the length in bytes of the guarded value.
func (b *Boxed) Size() int { return b.size }

// BorrowRead transitions the region to read-only (if not already more
// permissive) for the duration of one read borrow, and returns a
// release function that must be called exactly once when the borrow
// ends.
func (b *Boxed) BorrowRead() (release func(), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return nil, ErrUseAfterFree
	}
	if b.writing {
		return nil, ErrBorrowConflict
	}
	if b.readers == 0 && b.state == pageNone {
		if err := b.protectLocked(pageRead); err != nil {
			return nil, err
		}
	}
	b.readers++

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.readers--
		if b.readers == 0 && !b.writing {
			_ = b.protectLocked(pageNone)
		}
	}, nil
}

// BorrowWrite transitions the region to read-write, exclusive of any
// concurrent reader or writer borrow.
func (b *Boxed) BorrowWrite() (release func(), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return nil, ErrUseAfterFree
	}
	if b.writing || b.readers > 0 {
		return nil, ErrBorrowConflict
	}
	if err := b.protectLocked(pageReadWrite); err != nil {
		return nil, err
	}
	b.writing = true

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.writing = false
		_ = b.protectLocked(pageNone)
	}, nil
}

// Slice returns the raw data slice. Callers must hold an active borrow
// (read or write) for the duration of any access; Boxed itself does not
// enforce that invariant at the slice level (Buffer does).
func (b *Boxed) Slice() []byte { return b.data[:b.size] }

func (b *Boxed) protect(s pageState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.protectLocked(s)
}

func (b *Boxed) protectLocked(s pageState) error {
	if b.size == 0 || b.state == s {
		b.state = s
		return nil
	}
	if err := protectRegion(b.data, s); err != nil {
		return err
	}
	b.state = s
	return nil
}

// Close zeroes the cell volatilely, unlocks it, and unmaps it. It is
// safe to call more than once.
func (b *Boxed) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return nil
	}
	runtime.SetFinalizer(b, nil)

	if b.size > 0 {
		// must be writable to zero it
		_ = protectRegion(b.data, pageReadWrite)
		volatileZero(b.data[:b.size])
		if b.locked {
			_ = mlock.UnlockMemory(b.data[:b.size])
		}
	}
	err := guardedFree(b.data)
	b.released = true
	b.data = nil
	return err
}

func (b *Boxed) finalize() { _ = b.Close() }

// String implements fmt.Stringer; Debug output never reveals contents.
func (b *Boxed) String() string { return "Content of Locked Memory is hidden" }
