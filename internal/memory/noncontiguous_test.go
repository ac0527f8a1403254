// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNonContiguousMemoryReconstruction(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")

	for _, shards := range []int{2, 3, 8} {
		cfg := ShardConfig{Shards: shards}
		ncm, err := AllocShards(secret, len(secret), cfg)
		require.NoError(t, err)

		buf, err := ncm.Unlock()
		require.NoError(t, err)

		err = buf.WithBytes(func(b []byte) error {
			require.Equal(t, secret, b)
			return nil
		})
		require.NoError(t, err)
		buf.Close()
		require.NoError(t, ncm.Close())
	}
}

func TestNonContiguousMemoryShardCountBounds(t *testing.T) {
	secret := []byte("short-secret")

	_, err := AllocShards(secret, len(secret), ShardConfig{Shards: 1})
	require.ErrorIs(t, err, ErrShardCount)

	_, err = AllocShards(secret, len(secret), ShardConfig{Shards: 9})
	require.ErrorIs(t, err, ErrShardCount)
}

func TestNonContiguousMemoryShardIndependence(t *testing.T) {
	secret := bytes.Repeat([]byte{0xAB}, 32)

	ncm, err := AllocShards(secret, len(secret), ShardConfig{Shards: 2})
	require.NoError(t, err)
	defer ncm.Close()

	for _, s := range ncm.shards {
		buf, err := s.Unlock()
		require.NoError(t, err)
		err = buf.WithBytes(func(b []byte) error {
			require.NotEqual(t, secret, b, "a lone shard must not equal the secret")
			return nil
		})
		require.NoError(t, err)
		buf.Close()
	}
}

func TestNonContiguousMemoryRefresh(t *testing.T) {
	secret := []byte("refresh-target-secret-material!")

	ncm, err := AllocShards(secret, len(secret), DefaultShardConfig())
	require.NoError(t, err)
	defer ncm.Close()

	require.NoError(t, ncm.Refresh())

	buf, err := ncm.Unlock()
	require.NoError(t, err)
	defer buf.Close()

	err = buf.WithBytes(func(b []byte) error {
		require.Equal(t, secret, b)
		return nil
	})
	require.NoError(t, err)
}

func TestNonContiguousMemoryMixedPlacement(t *testing.T) {
	secret := []byte("mixed-ram-and-file-backed-shard!")
	cfg := ShardConfig{
		Shards:     3,
		Placements: []Placement{PlacementRAM, PlacementFile, PlacementRAM},
		FileDir:    t.TempDir(),
	}

	ncm, err := AllocShards(secret, len(secret), cfg)
	require.NoError(t, err)
	defer ncm.Close()

	buf, err := ncm.Unlock()
	require.NoError(t, err)
	defer buf.Close()

	err = buf.WithBytes(func(b []byte) error {
		require.Equal(t, secret, b)
		return nil
	})
	require.NoError(t, err)
}

func TestNonContiguousMemoryUpdate(t *testing.T) {
	ncm, err := AllocShards([]byte("original-secret-value-32-bytes!!"), 32, DefaultShardConfig())
	require.NoError(t, err)
	defer ncm.Close()

	newSecret := []byte("replacement-secret-value-32bytes")
	newBuf, err := Alloc(newSecret, len(newSecret))
	require.NoError(t, err)
	defer newBuf.Close()

	require.NoError(t, ncm.Update(newBuf, len(newSecret)))

	buf, err := ncm.Unlock()
	require.NoError(t, err)
	defer buf.Close()

	err = buf.WithBytes(func(b []byte) error {
		require.Equal(t, newSecret, b)
		return nil
	})
	require.NoError(t, err)
}
