// Command node is the CLI surface of spec.md §6's node binary: storage
// bootstrap, the gossip server, mining, transaction submission, chain
// inspection, consensus, and peer-list management. It is grounded on
// the teacher's main.go/cli/cli.go dispatch and network/network.go's
// StartServer/CloseDB, generalized from the teacher's hand-rolled
// flag.NewFlagSet switchboard to cobra subcommands and from its
// package-global blockchain/memoryPool/KnownNodes to explicitly
// constructed chain.Chain, mempool.Pool, and p2p.Transport values
// passed into nodeHandler.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vrecan/death/v3"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/config"
	"github.com/kado-chain/kado/internal/consensus"
	"github.com/kado-chain/kado/internal/ledger/block"
	"github.com/kado-chain/kado/internal/ledger/chain"
	"github.com/kado-chain/kado/internal/ledger/mempool"
	"github.com/kado-chain/kado/internal/ledger/tx"
	"github.com/kado-chain/kado/internal/ledger/utxo"
	"github.com/kado-chain/kado/internal/ledgererr"
	"github.com/kado-chain/kado/internal/logging"
	"github.com/kado-chain/kado/internal/p2p"
	"github.com/kado-chain/kado/internal/p2p/httptransport"
	"github.com/kado-chain/kado/internal/p2p/tcp"
	"github.com/kado-chain/kado/internal/storage"
	"github.com/kado-chain/kado/internal/storage/badgerstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logging.New()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("load configuration")
		return 3
	}

	var startHost string
	var startPort int
	var blocksStart, blocksEnd int64

	root := &cobra.Command{Use: "node", SilenceUsage: true, SilenceErrors: true}

	initCmd := &cobra.Command{
		Use:  "init",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()
			return runInit(store, log)
		},
	}

	startCmd := &cobra.Command{
		Use:  "start",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if startHost != "" {
				cfg.Host = startHost
			}
			if startPort != 0 {
				cfg.Port = startPort
			}
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()
			return runStart(cfg, store, log)
		},
	}
	startCmd.Flags().StringVar(&startHost, "host", "", "override the configured listen host")
	startCmd.Flags().IntVar(&startPort, "port", 0, "override the configured listen port")

	mineCmd := &cobra.Command{
		Use:  "mine <addr>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()
			return runMine(store, args[0], log)
		},
	}

	sendCmd := &cobra.Command{
		Use:  "send <file>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()
			return runSend(store, args[0], log)
		},
	}

	blocksCmd := &cobra.Command{
		Use:  "blocks",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()
			return runBlocks(store, blocksStart, blocksEnd)
		},
	}
	blocksCmd.Flags().Int64Var(&blocksStart, "start", 0, "first index to print, inclusive")
	blocksCmd.Flags().Int64Var(&blocksEnd, "end", -1, "last index to print, inclusive (-1 means the tip)")

	consensusCmd := &cobra.Command{
		Use:  "consensus",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()
			return runConsensus(cfg, store, log)
		},
	}

	addPeerCmd := &cobra.Command{
		Use:  "add-peer <addr>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.SavePeer(args[0])
		},
	}

	listPeersCmd := &cobra.Command{
		Use:  "list-peers",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()
			peers, err := store.LoadPeers()
			if err != nil {
				return err
			}
			for _, p := range peers {
				fmt.Println(p)
			}
			return nil
		},
	}

	root.AddCommand(initCmd, startCmd, mineCmd, sendCmd, blocksCmd, consensusCmd, addPeerCmd, listPeersCmd)

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("node command failed")
		if _, ok := ledgererr.KindOf(err); ok {
			return ledgererr.ExitCode(err)
		}
		// Errors cobra raises itself (unknown command, wrong arg count)
		// never carry a Kind; spec.md §6 maps those to exit code 3.
		return 3
	}
	return 0
}

func openStore(cfg config.Node, log *logrus.Logger) (storage.Store, error) {
	return badgerstore.Open(cfg.DataDir, logging.NewBadgerLogger(log))
}

// runInit mines the genesis block (a single coinbase to
// block.GenesisRewardAddress, per spec.md §6) and persists it along
// with the UTXO set it creates.
func runInit(store storage.Store, log *logrus.Logger) error {
	existing, err := store.LoadChain()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return ledgererr.New(ledgererr.KindStorageCorrupt, "storage at this data directory already holds a chain")
	}

	policy := chain.DefaultPolicy()
	now := float64(time.Now().Unix())
	cb := tx.NewCoinbase(block.GenesisRewardAddress, amount.Zero, []byte("genesis"), now)

	genesis, err := block.New(block.GenesisPreviousHash, 0, []*tx.Transaction{cb}, policy.BaseDifficulty, now)
	if err != nil {
		return err
	}
	if err := genesis.Mine(context.Background(), 1<<32); err != nil {
		return err
	}

	c, err := chain.New(genesis, policy, mempool.New())
	if err != nil {
		return err
	}

	if err := store.SaveBlock(genesis); err != nil {
		return err
	}
	if err := saveUTXOSnapshot(store, c); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{"hash": genesis.Hash, "difficulty": genesis.Difficulty}).Info("initialized genesis block")
	return nil
}

// loadChainAndPool reconstructs a live chain.Chain and mempool.Pool from
// persisted state: the block list is re-validated from genesis
// (chain.Restore), and every persisted pending transaction is
// resubmitted against the restored UTXO set rather than trusted as
// already-valid.
func loadChainAndPool(store storage.Store, log *logrus.Logger) (*chain.Chain, *mempool.Pool, error) {
	blocks, err := store.LoadChain()
	if err != nil {
		return nil, nil, err
	}
	if len(blocks) == 0 {
		return nil, nil, ledgererr.New(ledgererr.KindStorageCorrupt, "no chain found; run 'node init' first")
	}

	pool := mempool.New()
	c, err := chain.Restore(blocks, chain.DefaultPolicy(), pool)
	if err != nil {
		return nil, nil, err
	}

	pending, err := store.LoadMempool()
	if err != nil {
		return nil, nil, err
	}
	for _, t := range pending {
		if err := pool.Submit(t, c.UTXOs()); err != nil {
			log.WithError(err).WithField("txid", t.Txid).Warn("dropping persisted pending transaction that no longer verifies")
		}
	}

	return c, pool, nil
}

func buildTransport(cfg config.Node) p2p.Transport {
	if cfg.HTTPPeers {
		return httptransport.New(http.DefaultClient)
	}
	return tcp.NewNode(cfg.ListenAddr(), cfg.Peers)
}

// runStart loads the persisted chain and mempool, serves the Peer
// Exchange RPCs over the configured transport, and blocks until a
// termination signal closes the store cleanly. Grounded on the
// teacher's StartServer + CloseDB pairing in network/network.go.
func runStart(cfg config.Node, store storage.Store, log *logrus.Logger) error {
	c, pool, err := loadChainAndPool(store, log)
	if err != nil {
		return err
	}

	for _, peer := range cfg.Peers {
		if err := store.SavePeer(peer); err != nil {
			log.WithError(err).WithField("peer", peer).Warn("persist bootstrap peer")
		}
	}

	handler := &nodeHandler{chain: c, pool: pool, store: store, log: log}
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.HTTPPeers {
		server := &http.Server{Addr: cfg.ListenAddr(), Handler: httptransport.Router(handler)}
		go func() {
			<-ctx.Done()
			_ = server.Close()
		}()

		// Graceful shutdown runs in the background the way the teacher's
		// StartServer launches `go CloseDB(chain)` before its blocking
		// accept loop.
		go shutdownOnSignal(cancel, store, log)

		log.WithField("addr", cfg.ListenAddr()).Info("serving peer RPCs over HTTP")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return ledgererr.Wrap(ledgererr.KindPeerUnavailable, err, "serve http")
		}
		return nil
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		cancel()
		return ledgererr.Wrap(ledgererr.KindPeerUnavailable, err, "listen on %s", cfg.ListenAddr())
	}
	node := tcp.NewNode(cfg.ListenAddr(), cfg.Peers)

	go shutdownOnSignal(cancel, store, log)

	log.WithField("addr", cfg.ListenAddr()).Info("serving peer RPCs over TCP")
	if err := node.Serve(ctx, listener, handler); err != nil {
		return ledgererr.Wrap(ledgererr.KindPeerUnavailable, err, "serve tcp")
	}
	return nil
}

// shutdownOnSignal blocks until SIGINT/SIGTERM, then cancels ctx and
// closes store, mirroring the teacher's CloseDB.
func shutdownOnSignal(cancel context.CancelFunc, store storage.Store, log *logrus.Logger) {
	d := death.NewDeath(syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	d.WaitForDeathWithFunc(func() {
		log.Info("shutting down")
		cancel()
		if err := store.Close(); err != nil {
			log.WithError(err).Error("close store")
		}
	})
}

// runMine takes the highest-fee pending transactions, assembles a block
// paying their fees plus the schedule reward to addr, mines it, and
// persists the result.
func runMine(store storage.Store, addr string, log *logrus.Logger) error {
	c, pool, err := loadChainAndPool(store, log)
	if err != nil {
		return err
	}

	const maxTransactionsPerBlock = 2000
	selected := pool.Take(maxTransactionsPerBlock)
	fees := sumFees(c.UTXOs(), selected)

	height := c.Height() + 1
	now := float64(time.Now().Unix())
	reward := chain.Reward(chain.DefaultPolicy(), height).Add(fees)
	cb := tx.NewCoinbase(addr, reward, []byte(fmt.Sprintf("%d", time.Now().UnixNano())), now)

	transactions := append([]*tx.Transaction{cb}, selected...)
	b, err := block.New(c.Tip().Hash, height, transactions, c.ExpectedDifficulty(), now)
	if err != nil {
		return err
	}
	if err := b.Mine(context.Background(), 1<<32); err != nil {
		return err
	}

	if err := c.AddBlock(b); err != nil {
		return err
	}
	if err := persistChainTip(store, c, pool); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{"index": b.Index, "hash": b.Hash, "reward": reward.String()}).Info("mined block")
	return nil
}

// sumFees reports the total fee (sum of inputs minus sum of outputs)
// across transactions, valued against set, so runMine's coinbase can
// claim the full reward+fees VerifyCoinbase allows.
func sumFees(set utxo.Set, transactions []*tx.Transaction) amount.Amount {
	var total amount.Amount
	for _, t := range transactions {
		var in, out amount.Amount
		for _, i := range t.Inputs {
			if o, ok := set.Lookup(i.OutPoint()); ok {
				in = in.Add(o.Amount)
			}
		}
		for _, o := range t.Outputs {
			out = out.Add(o.Amount)
		}
		total = total.Add(in.Sub(out))
	}
	return total
}

// runSend deserializes a signed transaction file and submits it to the
// local mempool.
func runSend(store storage.Store, path string, log *logrus.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "read transaction file %s", path)
	}
	t, err := tx.Deserialize(data)
	if err != nil {
		return err
	}

	c, pool, err := loadChainAndPool(store, log)
	if err != nil {
		return err
	}
	if err := pool.Submit(t, c.UTXOs()); err != nil {
		return err
	}
	if err := store.SaveMempool(pool.Take(-1)); err != nil {
		return err
	}

	log.WithField("txid", t.Txid).Info("submitted transaction to mempool")
	return nil
}

// runBlocks prints the [start,end] index range of the persisted chain
// as wire-format JSON, one block per line.
func runBlocks(store storage.Store, start, end int64) error {
	blocks, err := store.LoadChain()
	if err != nil {
		return err
	}
	if end < 0 || end >= int64(len(blocks)) {
		end = int64(len(blocks)) - 1
	}
	for i := start; i <= end && i < int64(len(blocks)); i++ {
		data, err := json.Marshal(blocks[i])
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	return nil
}

// runConsensus fetches every configured peer's chain and adopts the
// longest strictly-longer valid one, persisting the new tip, UTXO
// snapshot, and mempool if it changed.
func runConsensus(cfg config.Node, store storage.Store, log *logrus.Logger) error {
	c, pool, err := loadChainAndPool(store, log)
	if err != nil {
		return err
	}

	before := c.Height()
	transport := buildTransport(cfg)
	height := consensus.RunConsensus(context.Background(), c, transport, cfg.Peers, consensus.Options{}, log)

	if height != before {
		// ReplaceChain only accepts candidates sharing the local genesis
		// (spec.md §4.8), so everything at index <= before was already
		// durable; only the new tail needs persisting.
		blocks := c.Blocks()
		for i := before + 1; i <= height; i++ {
			if err := store.SaveBlock(blocks[i]); err != nil {
				return err
			}
		}
		if err := saveUTXOSnapshot(store, c); err != nil {
			return err
		}
		if err := store.SaveMempool(pool.Take(-1)); err != nil {
			return err
		}
	}

	fmt.Println(height)
	return nil
}
