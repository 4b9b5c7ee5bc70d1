// Package mempool implements the pending-transaction pool of spec.md
// §4.5. It is grounded on the teacher repo's network.memoryPool, a bare
// package-level map[string]Transaction protected by nothing, generalized
// into a type with its own lock, conflict detection against both the
// UTXO set and other pooled transactions, fee-ordered Take, and
// Reconcile — none of which the teacher's map has.
package mempool

import (
	"sort"
	"sync"
	"time"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/ledger/tx"
	"github.com/kado-chain/kado/internal/ledger/utxo"
	"github.com/kado-chain/kado/internal/ledgererr"
)

type entry struct {
	tx       *tx.Transaction
	fee      amount.Amount
	inserted time.Time
}

// Pool is a concurrency-safe pending-transaction pool.
type Pool struct {
	mu      sync.RWMutex
	entries map[string]entry
	// spentBy tracks which pooled txid currently claims each outpoint,
	// so a second transaction spending the same outpoint is rejected
	// before it ever reaches the UTXO set (spec.md §4.5: "two mempool
	// txs may not share an input").
	spentBy map[tx.OutPoint]string
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{
		entries: make(map[string]entry),
		spentBy: make(map[tx.OutPoint]string),
	}
}

// Submit verifies t against set and the pool's own tentative spends, and
// either admits it or returns a tagged error. Resubmitting an already
//-admitted txid is a no-op success (spec.md: "idempotent on resubmission
// of the same txid").
func (p *Pool) Submit(t *tx.Transaction, set utxo.Set) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[t.Txid]; ok {
		return nil
	}

	for _, in := range t.Inputs {
		op := in.OutPoint()
		if owner, claimed := p.spentBy[op]; claimed && owner != t.Txid {
			return ledgererr.New(ledgererr.KindDoubleSpendInMempool, "outpoint %s:%d already claimed by pooled tx %s", op.Txid, op.Vout, owner)
		}
	}

	spentInPool := make(map[tx.OutPoint]bool, len(p.spentBy))
	for op := range p.spentBy {
		spentInPool[op] = true
	}

	fee, err := tx.Verify(t, lookupAdapter{set}, spentInPool)
	if err != nil {
		return err
	}

	for _, in := range t.Inputs {
		p.spentBy[in.OutPoint()] = t.Txid
	}
	p.entries[t.Txid] = entry{tx: t, fee: fee, inserted: time.Now()}
	return nil
}

type lookupAdapter struct{ set utxo.Set }

func (l lookupAdapter) Get(op tx.OutPoint) (tx.Output, bool) { return l.set.Lookup(op) }

// Take returns up to max pooled transactions, ordered by fee descending
// then insertion time ascending (spec.md §4.5). It does not remove them
// from the pool; the caller removes confirmed transactions via
// Reconcile once they land in a block.
func (p *Pool) Take(max int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ordered := make([]entry, 0, len(p.entries))
	for _, e := range p.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].fee != ordered[j].fee {
			return ordered[i].fee > ordered[j].fee
		}
		return ordered[i].inserted.Before(ordered[j].inserted)
	})

	if max > len(ordered) || max < 0 {
		max = len(ordered)
	}
	out := make([]*tx.Transaction, max)
	for i := 0; i < max; i++ {
		out[i] = ordered[i].tx
	}
	return out
}

// Reconcile re-validates every pooled transaction against the chain tip's
// fresh UTXO set, dropping any whose inputs are no longer valid. Used
// after a new block lands or a chain replacement changes the tip.
func (p *Pool) Reconcile(set utxo.Set) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := make(map[string]entry, len(p.entries))
	spent := make(map[tx.OutPoint]bool)
	for txid, e := range p.entries {
		fee, err := tx.Verify(e.tx, lookupAdapter{set}, spent)
		if err != nil {
			continue
		}
		kept[txid] = entry{tx: e.tx, fee: fee, inserted: e.inserted}
	}

	p.entries = kept
	p.spentBy = make(map[tx.OutPoint]string, len(kept))
	for txid, e := range kept {
		for _, in := range e.tx.Inputs {
			p.spentBy[in.OutPoint()] = txid
		}
	}
}

// Remove drops a confirmed transaction from the pool by txid.
func (p *Pool) Remove(txid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[txid]
	if !ok {
		return
	}
	for _, in := range e.tx.Inputs {
		delete(p.spentBy, in.OutPoint())
	}
	delete(p.entries, txid)
}

// Len reports how many transactions are currently pooled.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
