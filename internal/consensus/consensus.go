// Package consensus implements the periodic peer-reconciliation loop
// of spec.md §4.8, grounded on the teacher's network/network.go
// version/getblocks/inv handshake (there, bootstrapping a peer's chain
// and swapping in the longer one inline inside handleBlock/handleInv).
// This package pulls that fold out into a standalone, transport-agnostic
// routine driven by internal/p2p.Transport and internal/ledger/chain.
package consensus

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kado-chain/kado/internal/ledger/block"
	"github.com/kado-chain/kado/internal/p2p"
)

// Chain is the subset of chain.Chain's behavior RunConsensus needs,
// kept narrow so this package never imports internal/ledger/chain
// directly (it would otherwise be the only p2p-adjacent package to do
// so).
type Chain interface {
	Height() int64
	ReplaceChain(candidate []*block.Block) error
}

// DefaultPeerCap bounds how many peers a single consensus run consults,
// per spec.md §4.8's "bounded peer list (configurable cap)".
const DefaultPeerCap = 8

// DefaultPerPeerTimeout is the per-call peer RPC timeout spec.md §5
// mandates when the caller supplies no earlier deadline.
const DefaultPerPeerTimeout = 5 * time.Second

// DefaultRunDeadline bounds an entire RunConsensus call, spec.md §5's
// "per-consensus-run overall deadline".
const DefaultRunDeadline = 30 * time.Second

// Options tunes a single RunConsensus call.
type Options struct {
	PeerCap        int
	PerPeerTimeout time.Duration
	RunDeadline    time.Duration
}

func (o Options) withDefaults() Options {
	if o.PeerCap <= 0 {
		o.PeerCap = DefaultPeerCap
	}
	if o.PerPeerTimeout <= 0 {
		o.PerPeerTimeout = DefaultPerPeerTimeout
	}
	if o.RunDeadline <= 0 {
		o.RunDeadline = DefaultRunDeadline
	}
	return o
}

type candidate struct {
	peer   string
	blocks []*block.Block
}

// RunConsensus implements spec.md §4.8's run_consensus(peers): fetch
// every peer's chain (bounded, timed out, best-effort), try the
// longest-first candidates against chain.ReplaceChain, and return the
// resulting height. A peer timeout or malformed response is logged and
// skipped — consensus itself never fails.
func RunConsensus(ctx context.Context, c Chain, transport p2p.Transport, peers []string, opts Options, log logrus.FieldLogger) int64 {
	opts = opts.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.RunDeadline)
	defer cancel()

	bounded := peers
	if len(bounded) > opts.PeerCap {
		bounded = bounded[:opts.PeerCap]
	}

	candidates := make([]candidate, 0, len(bounded))
	localHeight := c.Height()

	for _, peer := range bounded {
		peerCtx, peerCancel := context.WithTimeout(runCtx, opts.PerPeerTimeout)
		blocks, err := transport.GetBlocks(peerCtx, peer)
		peerCancel()
		if err != nil {
			log.WithError(err).WithField("peer", peer).Warn("consensus: get_blocks failed, skipping peer")
			continue
		}
		if int64(len(blocks)) <= localHeight+1 {
			continue
		}
		candidates = append(candidates, candidate{peer: peer, blocks: blocks})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i].blocks) > len(candidates[j].blocks)
	})

	for _, cand := range candidates {
		if err := c.ReplaceChain(cand.blocks); err != nil {
			log.WithError(err).WithField("peer", cand.peer).Warn("consensus: replace_chain rejected candidate, trying next")
			continue
		}
		log.WithFields(logrus.Fields{"peer": cand.peer, "height": c.Height()}).Info("consensus: adopted longer chain")
		break
	}

	return c.Height()
}
