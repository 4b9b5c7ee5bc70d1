// Package p2p defines the Peer Exchange contract of spec.md §4.10: the
// capabilities the ledger core requires from any transport, independent
// of framing. The core treats transport errors as skips and derives
// trust only from validating returned data, never from peer identity.
//
// Two concrete transports satisfy Transport: internal/p2p/tcp (grounded
// on the teacher's raw net.Listen/gob-framed command protocol in
// network/network.go) and internal/p2p/httptransport (gorilla/mux,
// JSON-framed). Either can back internal/consensus.RunConsensus.
package p2p

import (
	"context"

	"github.com/kado-chain/kado/internal/ledger/block"
	"github.com/kado-chain/kado/internal/ledger/tx"
	"github.com/kado-chain/kado/internal/ledger/utxo"
)

// Transport is the contract spec.md §4.10 requires. Every method
// honors ctx's deadline; callers are expected to wrap each call with the
// per-call timeout of spec.md §5 (default 5s).
type Transport interface {
	// GetBlocks fetches peer's full chain, genesis first.
	GetBlocks(ctx context.Context, peer string) ([]*block.Block, error)
	// GetUTXOs fetches peer's advisory view of addr's unspent outputs.
	// Never trusted for validation — spec.md §4.10.
	GetUTXOs(ctx context.Context, peer string, addr string) ([]utxo.Entry, error)
	// BroadcastTx sends t to peer's mempool.
	BroadcastTx(ctx context.Context, peer string, t *tx.Transaction) error
	// BroadcastBlock sends b to peer for validation and possible
	// chain extension.
	BroadcastBlock(ctx context.Context, peer string, b *block.Block) error
	// ExchangePeers returns peer's known peer addresses, supplementing
	// the teacher's Addr/version bootstrap handshake (see
	// internal/p2p/tcp.Node.ExchangePeers).
	ExchangePeers(ctx context.Context, peer string) ([]string, error)
}
