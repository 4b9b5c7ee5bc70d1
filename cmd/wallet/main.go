// Command wallet is the CLI surface of spec.md §6's wallet binary,
// grounded on the teacher's cli/cli.go command dispatch — generalized
// from its hand-rolled flag.NewFlagSet switchboard to cobra subcommands,
// one per CLI row, per SPEC_FULL.md's DOMAIN STACK entry for
// github.com/spf13/cobra. It reads the node's UTXO snapshot directly
// from the shared data directory rather than over the network, since
// the wallet and CLI surfaces are external-collaborator contracts only.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/config"
	"github.com/kado-chain/kado/internal/ledger/utxo"
	"github.com/kado-chain/kado/internal/ledgererr"
	"github.com/kado-chain/kado/internal/logging"
	"github.com/kado-chain/kado/internal/storage/badgerstore"
	"github.com/kado-chain/kado/internal/wallet"
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

	var encrypted bool
	var output string

	root := &cobra.Command{Use: "wallet", SilenceUsage: true, SilenceErrors: true}

	create := &cobra.Command{
		Use:  "create",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if encrypted {
				log.Warn("--encrypted is not yet supported; creating an unencrypted wallet")
			}
			collection, err := wallet.Open(cfg.DataDir, cfg.NodeID)
			if err != nil {
				return ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "open wallet collection")
			}
			addr, err := collection.Create()
			if err != nil {
				return err
			}
			fmt.Println(addr)
			return nil
		},
	}
	create.Flags().BoolVar(&encrypted, "encrypted", false, "encrypt the stored private key (not yet implemented)")

	list := &cobra.Command{
		Use:  "list",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, err := wallet.Open(cfg.DataDir, cfg.NodeID)
			if err != nil {
				return ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "open wallet collection")
			}
			for _, addr := range collection.Addresses() {
				fmt.Println(addr)
			}
			return nil
		},
	}

	balance := &cobra.Command{
		Use:  "balance <addr>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := loadUTXOEntries(cfg.DataDir, log)
			if err != nil {
				return err
			}
			total := amount.FromSmallestUnits(0)
			for _, e := range entries {
				if e.Output.Address == args[0] {
					total = total.Add(e.Output.Amount)
				}
			}
			fmt.Println(total.String())
			return nil
		},
	}

	txCmd := &cobra.Command{
		Use:  "tx <from> <to> <amount>",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, amtStr := args[0], args[1], args[2]

			amt, err := amount.FromDecimalString(amtStr)
			if err != nil {
				return ledgererr.Wrap(ledgererr.KindNegativeOrZeroAmount, err, "parse amount %q", amtStr)
			}

			collection, err := wallet.Open(cfg.DataDir, cfg.NodeID)
			if err != nil {
				return ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "open wallet collection")
			}
			w, ok := collection.Get(from)
			if !ok {
				return ledgererr.New(ledgererr.KindMalformedKey, "no wallet for address %s", from)
			}

			entries, err := loadUTXOEntries(cfg.DataDir, log)
			if err != nil {
				return err
			}
			set := utxo.NewMemory()
			set.Seed(entries)

			transferred, err := w.BuildTransaction(set, to, amt, float64(time.Now().Unix()))
			if err != nil {
				return err
			}

			data, err := transferred.Serialize()
			if err != nil {
				return ledgererr.Wrap(ledgererr.KindStorageCorrupt, err, "serialize transaction")
			}

			if output == "" {
				fmt.Println(string(data))
				return nil
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	txCmd.Flags().StringVar(&output, "output", "", "write the signed transaction to this file instead of stdout")

	utxosCmd := &cobra.Command{
		Use:  "utxos <addr>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := loadUTXOEntries(cfg.DataDir, log)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.Output.Address == args[0] {
					fmt.Printf("%s:%d\t%s\n", e.OutPoint.Txid, e.OutPoint.Vout, e.Output.Amount.String())
				}
			}
			return nil
		},
	}

	root.AddCommand(create, list, balance, txCmd, utxosCmd)

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("wallet command failed")
		if _, ok := ledgererr.KindOf(err); ok {
			return ledgererr.ExitCode(err)
		}
		// Errors cobra raises itself (unknown command, wrong arg count)
		// never carry a Kind; spec.md §6 maps those to exit code 3.
		return 3
	}
	return 0
}

func loadUTXOEntries(dataDir string, log *logrus.Logger) ([]utxo.Entry, error) {
	store, err := badgerstore.Open(dataDir, logging.NewBadgerLogger(log))
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.LoadUTXOSnapshot()
}
