// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileMemoryUnlockAndUpdate(t *testing.T) {
	dir := t.TempDir()

	fm, err := NewFileMemory(dir, []byte("file-backed-secret"), 18)
	require.NoError(t, err)

	buf, err := fm.Unlock()
	require.NoError(t, err)
	err = buf.WithBytes(func(b []byte) error {
		require.Equal(t, []byte("file-backed-secret"), b)
		return nil
	})
	require.NoError(t, err)
	buf.Close()

	updated, err := Alloc([]byte("replacement-secret"), 18)
	require.NoError(t, err)
	defer updated.Close()
	require.NoError(t, fm.Update(updated, 18))

	buf2, err := fm.Unlock()
	require.NoError(t, err)
	defer buf2.Close()
	err = buf2.WithBytes(func(b []byte) error {
		require.Equal(t, []byte("replacement-secret"), b)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, fm.Close())
}

func TestFileMemoryCloseUnlinksFile(t *testing.T) {
	dir := t.TempDir()

	fm, err := NewFileMemory(dir, []byte("ephemeral"), 9)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, fm.Close())

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFileMemoryRejectsZeroSize(t *testing.T) {
	_, err := NewFileMemory(t.TempDir(), []byte{}, 0)
	require.ErrorIs(t, err, ErrZeroSized)
}
