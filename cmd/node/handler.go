// nodeHandler wires the peer RPC surface (internal/p2p/tcp.Handler and
// internal/p2p/httptransport.Handler, which share a method set) to a
// running chain, mempool, and store. Grounded on the teacher's
// HandleConnection switch in network/network.go, which instead closed
// over the package-level blockchain and memoryPool globals directly;
// here those globals become fields guarded by the chain's own lock.
package main

import (
	"github.com/sirupsen/logrus"

	"github.com/kado-chain/kado/internal/ledger/block"
	"github.com/kado-chain/kado/internal/ledger/chain"
	"github.com/kado-chain/kado/internal/ledger/mempool"
	"github.com/kado-chain/kado/internal/ledger/tx"
	"github.com/kado-chain/kado/internal/ledger/utxo"
	"github.com/kado-chain/kado/internal/storage"
)

type nodeHandler struct {
	chain *chain.Chain
	pool  *mempool.Pool
	store storage.Store
	log   logrus.FieldLogger
}

func (h *nodeHandler) OnGetBlocks() []*block.Block {
	return h.chain.Blocks()
}

func (h *nodeHandler) OnGetUTXOs(addr string) []utxo.Entry {
	return h.chain.UTXOs().ByAddress(addr)
}

func (h *nodeHandler) OnTx(t *tx.Transaction) error {
	if err := h.pool.Submit(t, h.chain.UTXOs()); err != nil {
		return err
	}
	if err := h.store.SaveMempool(h.pool.Take(-1)); err != nil {
		h.log.WithError(err).Warn("persist mempool after received tx")
	}
	return nil
}

func (h *nodeHandler) OnBlock(b *block.Block) error {
	if err := h.chain.AddBlock(b); err != nil {
		return err
	}
	return persistChainTip(h.store, h.chain, h.pool)
}

func (h *nodeHandler) OnAddr() []string {
	peers, err := h.store.LoadPeers()
	if err != nil {
		h.log.WithError(err).Warn("load peers for addr exchange")
		return nil
	}
	return peers
}

// persistChainTip saves the just-accepted tip block, the full UTXO
// snapshot, and the reconciled mempool — the three pieces of state a
// block acceptance changes. Grounded on spec.md §4.9's "writes that
// alter consensus-critical state must be durable before the triggering
// call returns success": any save failure here must fail the call that
// accepted the block, the same way runConsensus propagates its saves.
func persistChainTip(store storage.Store, c *chain.Chain, pool *mempool.Pool) error {
	tip := c.Tip()
	if err := store.SaveBlock(tip); err != nil {
		return err
	}
	if err := saveUTXOSnapshot(store, c); err != nil {
		return err
	}
	if err := store.SaveMempool(pool.Take(-1)); err != nil {
		return err
	}
	return nil
}

// saveUTXOSnapshot type-asserts the chain's live UTXO set to *utxo.Memory
// to reach its whole-set Entries accessor; utxo.Memory is chain.Chain's
// only concrete Set implementation.
func saveUTXOSnapshot(store storage.Store, c *chain.Chain) error {
	mem, ok := c.UTXOs().(*utxo.Memory)
	if !ok {
		return nil
	}
	return store.SaveUTXOSnapshot(mem.Entries())
}
