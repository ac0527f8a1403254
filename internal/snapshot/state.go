// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/partisec/stronghold/internal/vault"
)

// ClientState is one client's slice of a SnapshotState: its sealed
// per-vault keys, every vault's raw transaction set (pruning is
// reapplied on load, not persisted), and its unencrypted Store.
type ClientState struct {
	VaultKeys map[vault.VaultId][]byte
	Chains    map[vault.VaultId][]*vault.Transaction
	Store     map[string][]byte
}

// SnapshotState is the full in-memory shape a container round-trips:
// a length-prefixed map ClientId -> ClientState. The msgpack codec
// already produces the length-prefixed, deterministic binary layout
// the format calls for; it is the nearest the pack's dependency set
// comes to the legacy bincode-style encoding the original source used,
// and it means backwards-incompatible shape changes are still
// detectable from the leading map/array length tags on read.
type SnapshotState struct {
	Clients map[vault.ClientId]*ClientState
}

func msgpackHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.Canonical = true
	return h
}

// EncodeState serializes state to its stable binary form.
func EncodeState(state *SnapshotState) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle())
	if err := enc.Encode(state); err != nil {
		return nil, fmt.Errorf("snapshot: encode state: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeState deserializes data produced by EncodeState.
func DecodeState(data []byte) (*SnapshotState, error) {
	var state SnapshotState
	dec := codec.NewDecoderBytes(data, msgpackHandle())
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("snapshot: decode state: %w", err)
	}
	return &state, nil
}
