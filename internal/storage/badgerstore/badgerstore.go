// Package badgerstore implements internal/storage.Store on top of
// github.com/dgraph-io/badger/v4, grounded on the teacher repo's direct
// badger usage throughout blockchain/blockchain.go (InitBlockChain,
// ContinueBlockChain, the "lh" last-hash pointer, its openDB/retry
// lock-recovery helper) and blockchain/utxo.go (the "utxo-" prefixed
// scan). The teacher inlines badger calls straight into BlockChain and
// UTXOSet; here they are collected behind the Store interface so
// internal/ledger/chain and internal/ledger/mempool never import badger
// directly.
package badgerstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/ledger/block"
	"github.com/kado-chain/kado/internal/ledger/tx"
	"github.com/kado-chain/kado/internal/ledger/utxo"
	"github.com/kado-chain/kado/internal/ledgererr"
	"github.com/kado-chain/kado/internal/logging"
)

var (
	blockPrefix   = []byte("block-")
	peerPrefix    = []byte("peer-")
	chainOrderKey = []byte("chain-order")
	utxoKey       = []byte("utxo-snapshot")
	mempoolKey    = []byte("mempool-snapshot")
)

// Store is a badger-backed internal/storage.Store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a badger database at dir, recovering from a
// stale LOCK file the way the teacher's openDB/retry helper does.
func Open(dir string, badgerLogger badger.Logger) (*Store, error) {
	if badgerLogger == nil {
		badgerLogger = logging.NewBadgerLogger(logging.New())
	}
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger)

	db, err := openWithLockRecovery(dir, opts)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "open badger store at %s", dir)
	}
	return &Store{db: db}, nil
}

func openWithLockRecovery(dir string, opts badger.Options) (*badger.DB, error) {
	db, err := badger.Open(opts)
	if err == nil {
		return db, nil
	}
	if !strings.Contains(err.Error(), "LOCK") {
		return nil, err
	}
	if rmErr := os.Remove(filepath.Join(dir, "LOCK")); rmErr != nil {
		return nil, fmt.Errorf("stale lock at %s could not be removed: %w (original: %v)", dir, rmErr, err)
	}
	return badger.Open(opts)
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveBlock(b *block.Block) error {
	data, err := b.Serialize()
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "serialize block %s", b.Hash)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(append(append([]byte{}, blockPrefix...), b.Hash...), data); err != nil {
			return err
		}

		order, err := readOrder(txn)
		if err != nil {
			return err
		}
		order = append(order, b.Hash)
		return writeOrder(txn, order)
	})
}

func readOrder(txn *badger.Txn) ([]string, error) {
	item, err := txn.Get(chainOrderKey)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var order []string
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &order)
	})
	return order, err
}

func writeOrder(txn *badger.Txn, order []string) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return txn.Set(chainOrderKey, data)
}

func (s *Store) LoadChain() ([]*block.Block, error) {
	var blocks []*block.Block
	err := s.db.View(func(txn *badger.Txn) error {
		order, err := readOrder(txn)
		if err != nil {
			return err
		}
		for _, hash := range order {
			item, err := txn.Get(append(append([]byte{}, blockPrefix...), hash...))
			if err != nil {
				return err
			}
			var data []byte
			if err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			}); err != nil {
				return err
			}
			b, err := block.Deserialize(data)
			if err != nil {
				return err
			}
			blocks = append(blocks, b)
		}
		return nil
	})
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "load chain")
	}
	return blocks, nil
}

type utxoEntryWire struct {
	Txid    string `json:"txid"`
	Vout    int    `json:"vout"`
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

func (s *Store) SaveUTXOSnapshot(entries []utxo.Entry) error {
	wire := make([]utxoEntryWire, len(entries))
	for i, e := range entries {
		wire[i] = utxoEntryWire{Txid: e.OutPoint.Txid, Vout: e.OutPoint.Vout, Address: e.Output.Address, Amount: e.Output.Amount.SmallestUnits()}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "marshal UTXO snapshot")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(utxoKey, data)
	})
}

func (s *Store) LoadUTXOSnapshot() ([]utxo.Entry, error) {
	var wire []utxoEntryWire
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(utxoKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &wire)
		})
	})
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "load UTXO snapshot")
	}

	entries := make([]utxo.Entry, len(wire))
	for i, w := range wire {
		entries[i] = utxo.Entry{
			OutPoint: tx.OutPoint{Txid: w.Txid, Vout: w.Vout},
			Output:   tx.Output{Address: w.Address, Amount: amount.FromSmallestUnits(w.Amount)},
		}
	}
	return entries, nil
}

func (s *Store) SaveMempool(pending []*tx.Transaction) error {
	wire := make([]json.RawMessage, 0, len(pending))
	for _, t := range pending {
		data, err := t.Serialize()
		if err != nil {
			return ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "serialize pending tx %s", t.Txid)
		}
		wire = append(wire, data)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "marshal mempool snapshot")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(mempoolKey, data)
	})
}

func (s *Store) LoadMempool() ([]*tx.Transaction, error) {
	var wire []json.RawMessage
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(mempoolKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &wire)
		})
	})
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "load mempool snapshot")
	}

	transactions := make([]*tx.Transaction, 0, len(wire))
	for _, raw := range wire {
		t, err := tx.Deserialize(raw)
		if err != nil {
			return nil, ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "decode pending transaction")
		}
		transactions = append(transactions, t)
	}
	return transactions, nil
}

func (s *Store) SavePeer(addr string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append(append([]byte{}, peerPrefix...), []byte(addr)...), []byte{1})
	})
}

func (s *Store) LoadPeers() ([]string, error) {
	var peers []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(peerPrefix); it.ValidForPrefix(peerPrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			peers = append(peers, string(key[len(peerPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "load peers")
	}
	return peers, nil
}
