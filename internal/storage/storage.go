// Package storage defines the persistence contract of spec.md §4.9.
// Concrete implementations persist and recover blocks, the UTXO set,
// the mempool, and the peer list; internal/storage/badgerstore is the
// one carried from the teacher repo (which uses badger directly,
// inline, throughout blockchain.go and utxo.go).
package storage

import (
	"github.com/kado-chain/kado/internal/ledger/block"
	"github.com/kado-chain/kado/internal/ledger/tx"
	"github.com/kado-chain/kado/internal/ledger/utxo"
)

// Store is the abstract persistence contract of spec.md §4.9. All
// writes that alter consensus-critical state (chain append, chain
// replace) must be durable before the call that triggered them returns
// success. chain.Chain does not call the Store itself; cmd/node saves
// the new state right after AddBlock or ReplaceChain returns and before
// reporting success.
type Store interface {
	SaveBlock(b *block.Block) error
	LoadChain() ([]*block.Block, error)

	SaveUTXOSnapshot(entries []utxo.Entry) error
	LoadUTXOSnapshot() ([]utxo.Entry, error)

	SaveMempool(pending []*tx.Transaction) error
	LoadMempool() ([]*tx.Transaction, error)

	SavePeer(addr string) error
	LoadPeers() ([]string, error)

	Close() error
}
