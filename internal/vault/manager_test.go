// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/partisec/stronghold/internal/cryptobox"
	"github.com/partisec/stronghold/internal/keyprovider"
	"github.com/partisec/stronghold/internal/memory"
)

func newTestKeyProvider(t *testing.T) *keyprovider.KeyProvider {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	kp, err := keyprovider.New(key, memory.DefaultShardConfig())
	require.NoError(t, err)
	t.Cleanup(func() { kp.Close() })
	return kp
}

func readGuard(t *testing.T, m *Manager, kp *keyprovider.KeyProvider, vaultID VaultId, recordID RecordId) []byte {
	t.Helper()
	var out []byte
	err := m.GetGuard(kp, vaultID, recordID, func(b *memory.Buffer) error {
		return b.WithBytes(func(p []byte) error {
			out = append([]byte(nil), p...)
			return nil
		})
	})
	require.NoError(t, err)
	return out
}

// TestInitWriteReadRoundTrip covers scenario S1 and properties 6/7: a
// freshly written record reads back exactly what was written.
func TestInitWriteReadRoundTrip(t *testing.T) {
	box := cryptobox.NewXChaCha20Poly1305()
	m := NewManager(box)
	kp := newTestKeyProvider(t)

	vaultID, err := NewVaultId()
	require.NoError(t, err)
	recordID, err := NewRecordId()
	require.NoError(t, err)

	require.NoError(t, m.InitVault(kp, vaultID))
	require.NoError(t, m.Write(kp, vaultID, recordID, []byte("top secret"), NewHint([]byte("login"))))

	require.Equal(t, []byte("top secret"), readGuard(t, m, kp, vaultID, recordID))
}

// TestInitVaultIsIdempotent covers the invariant that InitVault never
// rotates an existing vault key.
func TestInitVaultIsIdempotent(t *testing.T) {
	box := cryptobox.NewXChaCha20Poly1305()
	m := NewManager(box)
	kp := newTestKeyProvider(t)

	vaultID, err := NewVaultId()
	require.NoError(t, err)
	recordID, err := NewRecordId()
	require.NoError(t, err)

	require.NoError(t, m.InitVault(kp, vaultID))
	require.NoError(t, m.Write(kp, vaultID, recordID, []byte("v1"), Hint{}))
	require.NoError(t, m.InitVault(kp, vaultID))

	require.Equal(t, []byte("v1"), readGuard(t, m, kp, vaultID, recordID))
}

// TestRevocationHidesRecord covers scenario S2 and property 7: two
// records in one vault, revoking one leaves the other readable and the
// revoked one gone.
func TestRevocationHidesRecord(t *testing.T) {
	box := cryptobox.NewXChaCha20Poly1305()
	m := NewManager(box)
	kp := newTestKeyProvider(t)

	vaultID, err := NewVaultId()
	require.NoError(t, err)
	recordA, err := NewRecordId()
	require.NoError(t, err)
	recordB, err := NewRecordId()
	require.NoError(t, err)

	require.NoError(t, m.InitVault(kp, vaultID))
	require.NoError(t, m.Write(kp, vaultID, recordA, []byte("keep-me"), Hint{}))
	require.NoError(t, m.Write(kp, vaultID, recordB, []byte("revoke-me"), Hint{}))

	require.NoError(t, m.Revoke(vaultID, recordB))

	containsA, err := m.ContainsRecord(vaultID, recordA)
	require.NoError(t, err)
	require.True(t, containsA)

	containsB, err := m.ContainsRecord(vaultID, recordB)
	require.NoError(t, err)
	require.False(t, containsB)

	err = m.GetGuard(kp, vaultID, recordB, func(*memory.Buffer) error { return nil })
	require.ErrorIs(t, err, ErrRecordNotFound)
}

// TestExecProcTransformsBetweenVaults covers scenario S3: exec_proc
// reads a source record, applies f, and writes the result as a new
// record in a (possibly different) destination vault, leaving the
// source chain untouched.
func TestExecProcTransformsBetweenVaults(t *testing.T) {
	box := cryptobox.NewXChaCha20Poly1305()
	m := NewManager(box)
	srcKP := newTestKeyProvider(t)
	dstKP := newTestKeyProvider(t)

	srcVault, err := NewVaultId()
	require.NoError(t, err)
	dstVault, err := NewVaultId()
	require.NoError(t, err)
	srcRecord, err := NewRecordId()
	require.NoError(t, err)
	dstRecord, err := NewRecordId()
	require.NoError(t, err)

	require.NoError(t, m.InitVault(srcKP, srcVault))
	require.NoError(t, m.InitVault(dstKP, dstVault))
	require.NoError(t, m.Write(srcKP, srcVault, srcRecord, []byte("7"), Hint{}))

	double := func(b []byte) ([]byte, error) {
		n, err := strconv.Atoi(string(b))
		if err != nil {
			return nil, err
		}
		return []byte(strconv.Itoa(n * 2)), nil
	}

	require.NoError(t, m.ExecProc(srcKP, srcVault, srcRecord, dstKP, dstVault, dstRecord, Hint{}, double))

	require.Equal(t, []byte("7"), readGuard(t, m, srcKP, srcVault, srcRecord))
	require.Equal(t, []byte("14"), readGuard(t, m, dstKP, dstVault, dstRecord))
}

// TestGarbageCollectPreservesLiveData covers property 8: GC drops
// pruned-away transactions but a live record still reads back intact.
func TestGarbageCollectPreservesLiveData(t *testing.T) {
	box := cryptobox.NewXChaCha20Poly1305()
	m := NewManager(box)
	kp := newTestKeyProvider(t)

	vaultID, err := NewVaultId()
	require.NoError(t, err)
	recordID, err := NewRecordId()
	require.NoError(t, err)

	require.NoError(t, m.InitVault(kp, vaultID))
	require.NoError(t, m.Write(kp, vaultID, recordID, []byte("v1"), Hint{}))
	require.NoError(t, m.Write(kp, vaultID, recordID, []byte("v2"), Hint{}))
	require.NoError(t, m.Write(kp, vaultID, recordID, []byte("v3"), Hint{}))

	before := len(m.vaults[vaultID].txs)
	require.NoError(t, m.GarbageCollectVault(vaultID))
	after := len(m.vaults[vaultID].txs)
	require.Less(t, after, before)

	require.Equal(t, []byte("v3"), readGuard(t, m, kp, vaultID, recordID))
}

func TestWriteRejectsUninitializedVault(t *testing.T) {
	box := cryptobox.NewXChaCha20Poly1305()
	m := NewManager(box)
	kp := newTestKeyProvider(t)

	vaultID, err := NewVaultId()
	require.NoError(t, err)
	recordID, err := NewRecordId()
	require.NoError(t, err)

	err = m.Write(kp, vaultID, recordID, []byte("x"), Hint{})
	require.ErrorIs(t, err, ErrVaultNotInit)
}

func TestExportImportStateRoundTrip(t *testing.T) {
	box := cryptobox.NewXChaCha20Poly1305()
	m := NewManager(box)
	kp := newTestKeyProvider(t)

	vaultID, err := NewVaultId()
	require.NoError(t, err)
	recordID, err := NewRecordId()
	require.NoError(t, err)

	require.NoError(t, m.InitVault(kp, vaultID))
	require.NoError(t, m.Write(kp, vaultID, recordID, []byte("persisted"), Hint{}))

	state := m.ExportState()

	restored := NewManager(box)
	restored.ImportState(state)

	require.Equal(t, []byte("persisted"), readGuard(t, restored, kp, vaultID, recordID))
}
