// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreInsertGetDelete(t *testing.T) {
	s := NewStore()

	s.Insert("k1", []byte("v1"))
	v, ok := s.Get("k1")
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	s.Delete("k1")
	_, ok = s.Get("k1")
	require.False(t, ok)
}

func TestStoreTTLExpiry(t *testing.T) {
	s := NewStore()
	s.InsertWithTTL("transient", []byte("v"), time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	_, ok := s.Get("transient")
	require.False(t, ok)

	require.NotContains(t, s.Keys(), "transient")
}

func TestStoreKeysSkipsExpired(t *testing.T) {
	s := NewStore()
	s.Insert("permanent", []byte("v"))
	s.InsertWithTTL("transient", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	keys := s.Keys()
	require.Contains(t, keys, "permanent")
	require.NotContains(t, keys, "transient")
}
