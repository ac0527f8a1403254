// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import "sort"

// Chain is the pruned view of one record's chain within a vault (the
// transactions Prune was given): the live subchain plus everything
// prune (C10) identified as garbage.
type Chain struct {
	garbage     []ID
	subchain    []ID
	init        *ID
	data        *ID
	highestCtr  uint64
	hasHighest  bool
}

// Init returns the id of the chain's live Init transaction, if any.
func (c *Chain) Init() *ID { return c.init }

// Data returns the id of the chain's live Data transaction, if any.
func (c *Chain) Data() *ID { return c.data }

// HighestCtr returns the maximum ctr ever observed across the pruned
// input, whether or not that transaction survived pruning. A writer
// must claim HighestCtr+1 for its next transaction.
func (c *Chain) HighestCtr() (uint64, bool) { return c.highestCtr, c.hasHighest }

// Garbage returns the ids pruning determined are no longer referenced.
func (c *Chain) Garbage() []ID { return c.garbage }

// Subchain returns the ids that survive pruning, in ascending ctr order.
func (c *Chain) Subchain() []ID { return c.subchain }

// Prune runs the deterministic chain-reduction algorithm over a
// multiset of transactions addressed to one VaultId and one RecordId:
// sort by ctr, then fold Init/Data/Revocation in order. A single vault
// generally holds several independent record chains that happen to
// share the same Init transactions; callers must filter txs down to
// one RecordId's own Data/Revocation entries (plus every Init) before
// calling Prune, or unrelated records will be folded together and each
// new Data/Revocation will wipe whichever record wrote last. See the
// teacher's own ported Rust control flow; this is a line-for-line
// translation of that per-record fold into Go.
func Prune(txs []*Transaction) *Chain {
	c := &Chain{}

	sorted := make([]*Transaction, len(txs))
	copy(sorted, txs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ctr < sorted[j].Ctr })

	revocationScore := 0
	var revokes []ID

	for _, tx := range sorted {
		c.highestCtr = tx.Ctr
		c.hasHighest = true

		if c.init == nil {
			if tx.Kind == KindInit {
				id := tx.ID
				c.init = &id
				c.subchain = append(c.subchain, tx.ID)
			} else {
				c.garbage = append(c.garbage, tx.ID)
			}
			continue
		}

		switch tx.Kind {
		case KindData:
			if c.data != nil {
				prev := *c.data
				c.garbage = append(c.garbage, prev)
				c.subchain = removeID(c.subchain, prev)
			}
			id := tx.ID
			c.data = &id
			revocationScore = 0
		case KindInit:
			c.garbage = append(c.garbage, c.subchain...)
			c.subchain = nil
			id := tx.ID
			c.init = &id
			c.data = nil
			revocationScore = 0
		case KindRevocation:
			revokes = append(revokes, tx.ID)
			revocationScore++
		}

		c.subchain = append(c.subchain, tx.ID)
	}

	if revocationScore > 0 {
		c.garbage = append(c.garbage, c.subchain...)
		c.subchain = nil
		c.init = nil
		c.data = nil
	} else {
		for _, tid := range revokes {
			c.subchain = removeID(c.subchain, tid)
			c.garbage = append(c.garbage, tid)
		}
	}

	return c
}

// maxCtr returns the highest ctr present across txs, regardless of
// which record or vault epoch they belong to. Unlike Prune's fold, the
// next ctr a writer claims must stay unique across the whole vault, not
// just within one record's chain, so this scans the raw list directly.
func maxCtr(txs []*Transaction) (uint64, bool) {
	var highest uint64
	found := false
	for _, tx := range txs {
		if !found || tx.Ctr > highest {
			highest = tx.Ctr
			found = true
		}
	}
	return highest, found
}

// filterForRecord narrows txs to the ones relevant to a single record's
// chain: every Init (chain epoch markers are shared across all
// records) plus recordID's own Data and Revocation transactions.
func filterForRecord(txs []*Transaction, recordID RecordId) []*Transaction {
	out := make([]*Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Kind == KindInit || tx.RecordID == recordID {
			out = append(out, tx)
		}
	}
	return out
}

func removeID(ids []ID, target ID) []ID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
