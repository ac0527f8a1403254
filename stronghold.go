// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Package stronghold is the top-level secrets-management engine: it
// wires the protected-memory layer, the vault engine, and the
// snapshot codec into one programmable safe. Callers never see raw
// secret bytes outside a scoped guard callback, and nothing the
// engine logs ever includes plaintext, hints, or key material.
package stronghold

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/partisec/stronghold/internal/cryptobox"
	"github.com/partisec/stronghold/internal/keyprovider"
	"github.com/partisec/stronghold/internal/memory"
	"github.com/partisec/stronghold/internal/snapshot"
	"github.com/partisec/stronghold/internal/vault"
)

// ClientId, VaultId, RecordId and Hint are re-exported so callers never
// import internal/vault directly.
type (
	ClientId = vault.ClientId
	VaultId  = vault.VaultId
	RecordId = vault.RecordId
	Hint     = vault.Hint
	Buffer   = memory.Buffer
)

var (
	NewClientId = vault.NewClientId
	NewVaultId  = vault.NewVaultId
	NewRecordId = vault.NewRecordId
	NewHint     = vault.NewHint
)

type clientEntry struct {
	kp      *keyprovider.KeyProvider
	manager *vault.Manager
	store   *snapshot.Store
}

// Engine is the process-wide safe: a set of clients, each with its own
// root key and vault set, sharing one crypto-box provider and one
// structured logger.
type Engine struct {
	mu      sync.RWMutex
	logger  hclog.Logger
	box     cryptobox.Provider
	kdf     snapshot.KDF
	clients map[ClientId]*clientEntry
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the default null logger.
func WithLogger(l hclog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCryptoBoxProvider overrides the default XChaCha20-Poly1305
// provider used for every seal/open across vaults and snapshots.
func WithCryptoBoxProvider(p cryptobox.Provider) Option {
	return func(e *Engine) { e.box = p }
}

// WithKDF overrides the default Argon2id snapshot passphrase KDF.
func WithKDF(k snapshot.KDF) Option {
	return func(e *Engine) { e.kdf = k }
}

// New constructs an empty Engine with no clients.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:  hclog.NewNullLogger(),
		box:     cryptobox.NewXChaCha20Poly1305(),
		clients: make(map[ClientId]*clientEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.kdf == nil {
		salt := make([]byte, 16)
		if err := e.box.RandomBuf(salt); err != nil {
			salt = make([]byte, 16)
		}
		e.kdf = snapshot.DefaultArgon2idKDF(salt)
	}
	return e
}

// AddClient registers clientID with a 32-byte root key derivative,
// sharded per shardCfg. It is the caller's responsibility to derive
// rootKeyDerivative the same way every session (see internal/snapshot
// KDFs); the engine never persists it.
func (e *Engine) AddClient(clientID ClientId, rootKeyDerivative []byte, shardCfg memory.ShardConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	kp, err := keyprovider.New(rootKeyDerivative, shardCfg)
	if err != nil {
		return translateErr(err)
	}

	e.clients[clientID] = &clientEntry{
		kp:      kp,
		manager: vault.NewManager(e.box),
		store:   snapshot.NewStore(),
	}
	e.logger.Debug("client added", "client", clientID.String())
	return nil
}

// RemoveClient releases clientID's key material and every chain it
// owns.
func (e *Engine) RemoveClient(clientID ClientId) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.clients[clientID]
	if !ok {
		return nil
	}
	delete(e.clients, clientID)
	return c.kp.Close()
}

func (e *Engine) client(clientID ClientId) (*clientEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.clients[clientID]
	if !ok {
		return nil, NewError(ErrVaultNotInit, fmt.Sprintf("unknown client %s", clientID), nil)
	}
	return c, nil
}

// InitVault allocates vaultID under clientID; a no-op if it already
// exists.
func (e *Engine) InitVault(clientID ClientId, vaultID VaultId) error {
	c, err := e.client(clientID)
	if err != nil {
		return err
	}
	return translateErr(c.manager.InitVault(c.kp, vaultID))
}

// Write seals plaintext into vaultID/recordID under clientID as a new
// Data transaction.
func (e *Engine) Write(clientID ClientId, vaultID VaultId, recordID RecordId, plaintext []byte, hint Hint) error {
	c, err := e.client(clientID)
	if err != nil {
		return err
	}
	return translateErr(c.manager.Write(c.kp, vaultID, recordID, plaintext, hint))
}

// Revoke marks recordID as revoked in vaultID; a no-op if not live.
func (e *Engine) Revoke(clientID ClientId, vaultID VaultId, recordID RecordId) error {
	c, err := e.client(clientID)
	if err != nil {
		return err
	}
	return translateErr(c.manager.Revoke(vaultID, recordID))
}

// GetGuard opens recordID's plaintext into a scoped Buffer and invokes
// f with it; the Buffer is zeroed and released before GetGuard returns.
func (e *Engine) GetGuard(clientID ClientId, vaultID VaultId, recordID RecordId, f func(*Buffer) error) error {
	c, err := e.client(clientID)
	if err != nil {
		return err
	}
	return translateErr(c.manager.GetGuard(c.kp, vaultID, recordID, f))
}

// ExecProc reads srcRecord under a guard, hands its plaintext to f, and
// seals f's result into dstVault/dstRecord as a new Data transaction.
// Source and destination may belong to different clients.
func (e *Engine) ExecProc(
	srcClientID ClientId, srcVault VaultId, srcRecord RecordId,
	dstClientID ClientId, dstVault VaultId, dstRecord RecordId, dstHint Hint,
	f func([]byte) ([]byte, error),
) error {
	srcC, err := e.client(srcClientID)
	if err != nil {
		return err
	}
	dstC, err := e.client(dstClientID)
	if err != nil {
		return err
	}
	if srcC == dstC {
		return translateErr(srcC.manager.ExecProc(srcC.kp, srcVault, srcRecord, dstC.kp, dstVault, dstRecord, dstHint, f))
	}
	var out []byte
	err = srcC.manager.GetGuard(srcC.kp, srcVault, srcRecord, func(b *Buffer) error {
		return b.WithBytes(func(p []byte) (ferr error) {
			out, ferr = f(p)
			return ferr
		})
	})
	if err == nil {
		err = dstC.manager.Write(dstC.kp, dstVault, dstRecord, out, dstHint)
	}
	memory.NewContiguousBytes(out).Zero()
	return translateErr(err)
}

// GarbageCollectVault rebuilds vaultID's chain from its prune output.
func (e *Engine) GarbageCollectVault(clientID ClientId, vaultID VaultId) error {
	c, err := e.client(clientID)
	if err != nil {
		return err
	}
	return translateErr(c.manager.GarbageCollectVault(vaultID))
}

// ListHintsAndIds enumerates vaultID's live records.
func (e *Engine) ListHintsAndIds(clientID ClientId, vaultID VaultId) ([]RecordId, []Hint, error) {
	c, err := e.client(clientID)
	if err != nil {
		return nil, nil, err
	}
	ids, hints, err := c.manager.ListHintsAndIds(vaultID)
	return ids, hints, translateErr(err)
}

// ContainsRecord reports whether recordID is currently live in vaultID.
func (e *Engine) ContainsRecord(clientID ClientId, vaultID VaultId, recordID RecordId) (bool, error) {
	c, err := e.client(clientID)
	if err != nil {
		return false, err
	}
	ok, err := c.manager.ContainsRecord(vaultID, recordID)
	return ok, translateErr(err)
}

// Refresh rotates clientID's root-key shard pattern without changing
// the logical key.
func (e *Engine) Refresh(clientID ClientId) error {
	c, err := e.client(clientID)
	if err != nil {
		return err
	}
	return translateErr(c.kp.Refresh())
}

// WriteSnapshot serializes every client's vault state and writes it as
// an encrypted, compressed V3 container at path under passphrase.
func (e *Engine) WriteSnapshot(path string, passphrase []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state := &snapshot.SnapshotState{Clients: make(map[ClientId]*snapshot.ClientState, len(e.clients))}
	for id, c := range e.clients {
		exported := c.manager.ExportState()
		cs := &snapshot.ClientState{
			VaultKeys: make(map[VaultId][]byte, len(exported)),
			Chains:    make(map[VaultId][]*vault.Transaction, len(exported)),
			Store:     storeToMap(c.store),
		}
		for vaultID, vs := range exported {
			cs.VaultKeys[vaultID] = vs.SealedKey
			cs.Chains[vaultID] = vs.Transactions
		}
		state.Clients[id] = cs
	}

	encoded, err := snapshot.EncodeState(state)
	if err != nil {
		return translateErr(err)
	}
	return translateErr(snapshot.WriteV3(path, encoded, passphrase, e.kdf, e.box))
}

// ReadSnapshot restores every client's vault state (sealed keys and
// chains) from the V3 container at path. Each restored client still
// requires a matching AddClient call with its root-key derivative
// before any operation that unlocks secrets: the engine never persists
// root keys, only the data they protect.
func (e *Engine) ReadSnapshot(path string, passphrase []byte) error {
	encoded, err := snapshot.ReadV3(path, passphrase, e.kdf, e.box)
	if err != nil {
		return translateErr(err)
	}
	state, err := snapshot.DecodeState(encoded)
	if err != nil {
		return translateErr(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, cs := range state.Clients {
		c, ok := e.clients[id]
		if !ok {
			c = &clientEntry{manager: vault.NewManager(e.box), store: snapshot.NewStore()}
			e.clients[id] = c
		}
		imported := make(map[VaultId]vault.VaultSnapshot, len(cs.Chains))
		for vaultID, txs := range cs.Chains {
			imported[vaultID] = vault.VaultSnapshot{SealedKey: cs.VaultKeys[vaultID], Transactions: txs}
		}
		c.manager.ImportState(imported)
		for k, v := range cs.Store {
			c.store.Insert(k, v)
		}
	}
	return nil
}

func storeToMap(s *snapshot.Store) map[string][]byte {
	out := make(map[string][]byte)
	for _, k := range s.Keys() {
		if v, ok := s.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*Error); ok {
		return se
	}

	switch {
	case errors.Is(err, memory.ErrZeroSized):
		return NewError(ErrZeroSizedNotAllowed, "", err)
	case errors.Is(err, memory.ErrShardCount):
		return NewError(ErrNCSizeNotAllowed, "", err)
	case errors.Is(err, memory.ErrSizeMismatch):
		return NewError(ErrNCSizeNotAllowed, "", err)
	case errors.Is(err, memory.ErrLockNotAvailable), errors.Is(err, vault.ErrLockNotAvailable):
		return NewError(ErrLockNotAvailable, "", err)
	case errors.Is(err, memory.ErrRefreshFailed):
		return NewError(ErrNCRefreshFailed, "", err)
	case errors.Is(err, memory.ErrUseAfterFree):
		return NewError(ErrIllegalZeroizedUsage, "", err)
	case errors.Is(err, memory.ErrBorrowConflict):
		return NewError(ErrLockNotAvailable, "", err)
	case errors.Is(err, memory.ErrFileSystem):
		return NewError(ErrFileSystem, "", err)
	case errors.Is(err, memory.ErrAllocation):
		return NewError(ErrAllocation, "", err)

	case errors.Is(err, vault.ErrVaultNotInit):
		return NewError(ErrVaultNotInit, "", err)
	case errors.Is(err, vault.ErrRecordNotFound):
		return NewError(ErrRecordNotFound, "", err)
	case errors.Is(err, vault.ErrEncryption):
		return NewError(ErrEncryption, "", err)
	case errors.Is(err, vault.ErrDecryption):
		return NewError(ErrDecryption, "", err)
	case errors.Is(err, vault.ErrDatabase):
		return NewError(ErrDatabase, "", err)

	case errors.Is(err, cryptobox.ErrEncryption):
		return NewError(ErrEncryption, "", err)
	case errors.Is(err, cryptobox.ErrDecryption):
		return NewError(ErrDecryption, "", err)

	case errors.Is(err, snapshot.ErrBadSnapshotFormat):
		return NewError(ErrBadSnapshotFormat, "", err)
	case errors.Is(err, snapshot.ErrBadSnapshotVersion):
		return NewError(ErrBadSnapshotVersion, "", err)
	case errors.Is(err, snapshot.ErrDecryptFailed):
		return NewError(ErrDecryptFailed, "", err)
	case errors.Is(err, snapshot.ErrDecompressFailed):
		return NewError(ErrDecompressFailed, "", err)
	case errors.Is(err, snapshot.ErrAadNotSupported):
		return NewError(ErrAadNotSupported, "", err)
	case errors.Is(err, snapshot.ErrBadMigrationVersion):
		return NewError(ErrBadMigrationVersion, "", err)
	case errors.Is(err, snapshot.ErrIO):
		return NewError(ErrIO, "", err)

	default:
		return NewError(ErrCrypto, "", err)
	}
}
