// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package memory

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	pageSizeOnce sync.Once
	pageSize     int
)

func getPageSize() int {
	pageSizeOnce.Do(func() {
		pageSize = unix.Getpagesize()
	})
	return pageSize
}

// pageRound rounds n up to the next multiple of the host page size.
func pageRound(n int) int {
	ps := getPageSize()
	if n == 0 {
		return 0
	}
	return ((n + ps - 1) / ps) * ps
}

// guardedAlloc mmaps a region of pageRound(size) bytes, anonymous and
// private, initially fully protected (PROT_NONE). Guard pages are not
// separately mapped (Go slices already carry bounds-checked headers, so
// an adjacent unmapped page buys little beyond what mprotect(NONE)
// already provides between borrows); the allocation is sized in whole
// pages so mlock/mprotect always act on page-aligned ranges.
func guardedAlloc(size int) ([]byte, error) {
	alloc := pageRound(size)
	if alloc == 0 {
		// zero-sized Boxed cells are valid (e.g. empty Buffer rejects
		// this further up, but Boxed itself has no opinion) and need no
		// mapping at all.
		return []byte{}, nil
	}

	region, err := unix.Mmap(-1, 0, alloc, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", ErrAllocation, err)
	}
	return region, nil
}

func guardedFree(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	if err := unix.Munmap(region); err != nil {
		return fmt.Errorf("%w: munmap: %v", ErrAllocation, err)
	}
	return nil
}

func protectRegion(region []byte, s pageState) error {
	if len(region) == 0 {
		return nil
	}
	var prot int
	switch s {
	case pageNone:
		prot = unix.PROT_NONE
	case pageRead:
		prot = unix.PROT_READ
	case pageReadWrite:
		prot = unix.PROT_READ | unix.PROT_WRITE
	}
	if err := unix.Mprotect(region, prot); err != nil {
		return fmt.Errorf("%w: mprotect: %v", ErrAllocation, err)
	}
	return nil
}

// volatileZero overwrites buf with zeros byte-by-byte. runtime.KeepAlive
// pins buf live through the loop so the zeroing write is never the last
// use of a dead value the compiler could otherwise discard.
func volatileZero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	runtime.KeepAlive(buf)
}
