// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"crypto/rand"
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// NonContiguousMemory stores a secret as the XOR of N shards, each
// shard living in a separate location per its ShardConfig (C6). No
// single shard is correlated with the secret; a partial memory
// disclosure that only ever observes one shard at a time learns
// nothing, and Refresh periodically re-randomizes the shard bit
// pattern without changing the logical secret.
type NonContiguousMemory struct {
	shards []shard
	cfg    ShardConfig
	size   int
}

// AllocShards splits bytes[:size] into cfg.Shards shards: the first
// Shards-1 are independently random, and the last is bytes XOR all of
// the others, so XORing every shard back together reconstructs bytes.
func AllocShards(bytes []byte, size int, cfg ShardConfig) (*NonContiguousMemory, error) {
	if size == 0 {
		return nil, ErrZeroSized
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rawShards := make([][]byte, cfg.Shards)
	for i := 0; i < cfg.Shards-1; i++ {
		r := make([]byte, size)
		if _, err := rand.Read(r); err != nil {
			return nil, fmt.Errorf("%w: random shard: %v", ErrAllocation, err)
		}
		rawShards[i] = r
	}

	last := make([]byte, size)
	copy(last, bytes[:size])
	for i := 0; i < cfg.Shards-1; i++ {
		xorInto(last, rawShards[i])
	}
	rawShards[cfg.Shards-1] = last

	shards := make([]shard, cfg.Shards)
	for i, raw := range rawShards {
		s, err := newShard(cfg.placementFor(i), cfg, raw, size)
		volatileZero(raw)
		if err != nil {
			for j := 0; j < i; j++ {
				shards[j].Close()
			}
			return nil, err
		}
		shards[i] = s
	}

	return &NonContiguousMemory{shards: shards, cfg: cfg, size: size}, nil
}

// Unlock reads every shard into a scratch Buffer, XORs them together,
// and returns the reconstructed secret as a fresh Buffer. Scratch
// buffers are zeroed and released before Unlock returns.
func (m *NonContiguousMemory) Unlock() (*Buffer, error) {
	out := make([]byte, m.size)
	defer volatileZero(out)

	for _, s := range m.shards {
		buf, err := s.Unlock()
		if err != nil {
			return nil, err
		}
		err = buf.WithBytes(func(b []byte) error {
			xorInto(out, b)
			return nil
		})
		buf.Close()
		if err != nil {
			return nil, err
		}
	}

	return Alloc(out, m.size)
}

// Refresh rotates the bit pattern of two shards without changing the
// logical secret: it draws fresh randomness r and XORs r into shard 0
// and shard 1. If randomness generation or either shard write fails,
// the prior state is restored atomically (both shards untouched from
// the caller's perspective) and a refresh error is returned.
func (m *NonContiguousMemory) Refresh() error {
	if len(m.shards) < 2 {
		return fmt.Errorf("%w: need at least 2 shards to refresh", ErrRefreshFailed)
	}

	r := make([]byte, m.size)
	if _, err := rand.Read(r); err != nil {
		return fmt.Errorf("%w: random: %v", ErrRefreshFailed, err)
	}
	defer volatileZero(r)

	shard0, shard1 := m.shards[0], m.shards[1]

	buf0, err := shard0.Unlock()
	if err != nil {
		return fmt.Errorf("%w: unlock shard 0: %v", ErrRefreshFailed, err)
	}
	ref0, err := buf0.Borrow()
	if err != nil {
		buf0.Close()
		return fmt.Errorf("%w: borrow shard 0: %v", ErrRefreshFailed, err)
	}
	orig0 := make([]byte, m.size)
	copy(orig0, ref0.Bytes())
	new0 := make([]byte, m.size)
	copy(new0, ref0.Bytes())
	ref0.Close()
	buf0.Close()
	defer volatileZero(orig0)
	xorInto(new0, r)

	buf1, err := shard1.Unlock()
	if err != nil {
		volatileZero(new0)
		return fmt.Errorf("%w: unlock shard 1: %v", ErrRefreshFailed, err)
	}
	ref1, err := buf1.Borrow()
	if err != nil {
		buf1.Close()
		volatileZero(new0)
		return fmt.Errorf("%w: borrow shard 1: %v", ErrRefreshFailed, err)
	}
	new1 := make([]byte, m.size)
	copy(new1, ref1.Bytes())
	ref1.Close()
	buf1.Close()
	xorInto(new1, r)

	// Both new shard contents are computed before either shard is
	// touched. shard0 is committed first; if staging or committing
	// shard1's replacement then fails, shard0 is rolled back to orig0
	// before returning so a mid-refresh failure never leaves the
	// reconstructed secret corrupted.
	nb0, err := Alloc(new0, m.size)
	volatileZero(new0)
	if err != nil {
		return fmt.Errorf("%w: stage shard 0: %v", ErrRefreshFailed, err)
	}
	if err := shard0.Update(nb0, m.size); err != nil {
		nb0.Close()
		return fmt.Errorf("%w: update shard 0: %v", ErrRefreshFailed, err)
	}
	nb0.Close()

	nb1, err := Alloc(new1, m.size)
	volatileZero(new1)
	if err != nil {
		if rbErr := m.rollbackShard0(shard0, orig0); rbErr != nil {
			return fmt.Errorf("%w: stage shard 1: %v (rollback also failed: %v)", ErrRefreshFailed, err, rbErr)
		}
		return fmt.Errorf("%w: stage shard 1: %v", ErrRefreshFailed, err)
	}
	if err := shard1.Update(nb1, m.size); err != nil {
		nb1.Close()
		if rbErr := m.rollbackShard0(shard0, orig0); rbErr != nil {
			return fmt.Errorf("%w: update shard 1: %v (rollback also failed: %v)", ErrRefreshFailed, err, rbErr)
		}
		return fmt.Errorf("%w: update shard 1: %v", ErrRefreshFailed, err)
	}
	nb1.Close()

	return nil
}

// rollbackShard0 restores shard0 to its pre-refresh contents. Used only
// when shard1's half of the refresh failed after shard0's half already
// committed.
func (m *NonContiguousMemory) rollbackShard0(shard0 shard, orig0 []byte) error {
	ob, err := Alloc(orig0, m.size)
	if err != nil {
		return err
	}
	defer ob.Close()
	return shard0.Update(ob, m.size)
}

// Update replaces the logical secret with the contents of newBuf: it
// allocates a brand new shard set with the same configuration, then
// drops the old shards.
func (m *NonContiguousMemory) Update(newBuf *Buffer, size int) error {
	ref, err := newBuf.Borrow()
	if err != nil {
		return err
	}
	fresh, err := AllocShards(ref.Bytes(), size, m.cfg)
	ref.Close()
	if err != nil {
		return err
	}

	old := m.shards
	m.shards = fresh.shards
	m.size = size

	var merr *multierror.Error
	for _, s := range old {
		if err := s.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// Close releases every shard.
func (m *NonContiguousMemory) Close() error {
	var merr *multierror.Error
	for _, s := range m.shards {
		if err := s.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

func (m *NonContiguousMemory) Size() int { return m.size }

func xorInto(dst, src []byte) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
}

func (m *NonContiguousMemory) String() string { return "Content of Locked Memory is hidden" }
