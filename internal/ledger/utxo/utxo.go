// Package utxo implements the UTXO Set contract of spec.md §4.4: a
// mapping from OutPoint to Output that apply_block/revert_block update
// atomically. It is grounded on the teacher repo's blockchain/utxo.go
// (badger-prefixed scan over "utxo-" keys, Update on new block), but
// restructured as a Set interface with an in-memory implementation here
// and a badger-backed cache in internal/storage/badgerstore, per
// spec.md §4.4's "persistence is a cache" guidance.
package utxo

import (
	"sort"

	"github.com/kado-chain/kado/internal/ledger/tx"
	"github.com/kado-chain/kado/internal/ledgererr"
)

// Set is the UTXO Set contract of spec.md §4.4.
type Set interface {
	// Lookup returns the Output for outpoint, if unspent.
	Lookup(op tx.OutPoint) (tx.Output, bool)
	// ByAddress returns every unspent output paid to addr.
	ByAddress(addr string) []Entry
	// ApplyBlock atomically removes every input's outpoint and inserts
	// every output's new outpoint. All-or-nothing: on error the set is
	// left exactly as it was before the call.
	ApplyBlock(transactions []*tx.Transaction) error
	// RevertBlock is the inverse of ApplyBlock. priorOutputs supplies the
	// Output each spent input used to reference, since that information
	// no longer exists in the set once ApplyBlock has removed it.
	RevertBlock(transactions []*tx.Transaction, priorOutputs map[tx.OutPoint]tx.Output) error
}

// Entry pairs an OutPoint with its Output, the shape ByAddress returns.
type Entry struct {
	OutPoint tx.OutPoint
	Output   tx.Output
}

// Memory is an in-memory Set, used both as the canonical implementation
// for short-lived chains (tests, the shadow-apply scratch copy spec.md
// §5 describes for ReplaceChain) and as the working set that
// internal/storage/badgerstore.Store loads into and flushes from.
type Memory struct {
	outputs map[tx.OutPoint]tx.Output
}

// NewMemory returns an empty in-memory UTXO set.
func NewMemory() *Memory {
	return &Memory{outputs: make(map[tx.OutPoint]tx.Output)}
}

// Clone returns a deep copy, used by Chain.ReplaceChain to build a
// scratch set to validate a candidate chain against before committing.
func (m *Memory) Clone() *Memory {
	clone := NewMemory()
	for op, out := range m.outputs {
		clone.outputs[op] = out
	}
	return clone
}

func (m *Memory) Lookup(op tx.OutPoint) (tx.Output, bool) {
	out, ok := m.outputs[op]
	return out, ok
}

func (m *Memory) ByAddress(addr string) []Entry {
	var entries []Entry
	for op, out := range m.outputs {
		if out.Address == addr {
			entries = append(entries, Entry{OutPoint: op, Output: out})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].OutPoint.Txid != entries[j].OutPoint.Txid {
			return entries[i].OutPoint.Txid < entries[j].OutPoint.Txid
		}
		return entries[i].OutPoint.Vout < entries[j].OutPoint.Vout
	})
	return entries
}

// ApplyBlock removes every input's outpoint and inserts every output's
// new outpoint, across every transaction (coinbase included). Validated
// first against a scratch copy so a mid-block failure never leaves the
// live set partially mutated.
func (m *Memory) ApplyBlock(transactions []*tx.Transaction) error {
	scratch := m.Clone()
	for _, t := range transactions {
		if !t.IsCoinbase() {
			for _, in := range t.Inputs {
				op := in.OutPoint()
				if _, ok := scratch.outputs[op]; !ok {
					return ledgererr.New(ledgererr.KindUnknownInput, "apply_block: outpoint %s:%d not in UTXO set", op.Txid, op.Vout)
				}
				delete(scratch.outputs, op)
			}
		}
		for i, out := range t.Outputs {
			scratch.outputs[tx.OutPoint{Txid: t.Txid, Vout: i}] = out
		}
	}
	m.outputs = scratch.outputs
	return nil
}

// RevertBlock is the inverse of ApplyBlock: it removes the outputs this
// block created and restores the outputs its inputs spent. The caller
// must supply the spent outputs via priorOutputs, since ApplyBlock has
// already removed them from the set (spec.md §4.4 calls revert_block the
// apply_block inverse, which requires knowing what each input used to
// reference). No ledger code calls it: chain.Chain.ReplaceChain rebuilds
// the set from genesis instead.
func (m *Memory) RevertBlock(transactions []*tx.Transaction, priorOutputs map[tx.OutPoint]tx.Output) error {
	scratch := m.Clone()
	for i := len(transactions) - 1; i >= 0; i-- {
		t := transactions[i]
		for outIdx := range t.Outputs {
			delete(scratch.outputs, tx.OutPoint{Txid: t.Txid, Vout: outIdx})
		}
		if !t.IsCoinbase() {
			for _, in := range t.Inputs {
				op := in.OutPoint()
				prior, ok := priorOutputs[op]
				if !ok {
					return ledgererr.New(ledgererr.KindStorageCorrupt, "revert_block: no recorded prior output for %s:%d", op.Txid, op.Vout)
				}
				scratch.outputs[op] = prior
			}
		}
	}
	m.outputs = scratch.outputs
	return nil
}

// Len reports how many unspent outputs the set currently holds, used by
// CountTransactions-style diagnostics.
func (m *Memory) Len() int { return len(m.outputs) }

// Entries returns every unspent output in the set, deterministically
// ordered, for snapshotting the whole set to storage
// (internal/storage.Store.SaveUTXOSnapshot).
func (m *Memory) Entries() []Entry {
	entries := make([]Entry, 0, len(m.outputs))
	for op, out := range m.outputs {
		entries = append(entries, Entry{OutPoint: op, Output: out})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].OutPoint.Txid != entries[j].OutPoint.Txid {
			return entries[i].OutPoint.Txid < entries[j].OutPoint.Txid
		}
		return entries[i].OutPoint.Vout < entries[j].OutPoint.Vout
	})
	return entries
}

// Seed replaces the set's contents with entries verbatim, used when
// reconstructing a working set from a persisted snapshot
// (internal/storage.Store.LoadUTXOSnapshot) rather than by replaying
// block application.
func (m *Memory) Seed(entries []Entry) {
	m.outputs = make(map[tx.OutPoint]tx.Output, len(entries))
	for _, e := range entries {
		m.outputs[e.OutPoint] = e.Output
	}
}
