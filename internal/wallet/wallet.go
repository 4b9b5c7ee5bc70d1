// Package wallet manages key pairs and builds signed transactions on
// behalf of an address, grounded on the teacher's wallet/wallet.go and
// wallet/wallets.go — generalized from the teacher's raw P-256 ecdsa
// key pair and bespoke Base58 address encoding to internal/keys'
// secp256k1 KeyPair and "KD"-prefixed base32 addresses.
package wallet

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/keys"
	"github.com/kado-chain/kado/internal/ledger/tx"
	"github.com/kado-chain/kado/internal/ledger/utxo"
)

// Wallet binds a key pair to the address it derives, the way the
// teacher's Wallet pairs PrivateKey/PublicKey (here a single KeyPair
// already carries both).
type Wallet struct {
	KeyPair *keys.KeyPair
	ID      string
}

// New generates a fresh key pair and assigns it a uuid identifier, the
// teacher's MakeWallet generalized with the file-identifier uuid.uuid
// SPEC_FULL.md's dependency table assigns to wallet files.
func New() (*Wallet, error) {
	kp, err := keys.NewKeyPair()
	if err != nil {
		return nil, err
	}
	return &Wallet{KeyPair: kp, ID: uuid.NewString()}, nil
}

// Address returns the wallet's primary ("KD"-prefixed base32) address.
func (w *Wallet) Address() string {
	return keys.Address(w.KeyPair.Public)
}

// LegacyAddress returns the wallet's "KD1" base58-encoded address, the
// hdpay-style import/compat format spec.md's dependency table carries
// mr-tron/base58 and ripemd160 for.
func (w *Wallet) LegacyAddress() (string, error) {
	return keys.AddressLegacy(w.KeyPair.Public)
}

// BuildTransaction selects unspent outputs owned by this wallet's
// address from set, pays amount to recipient, returns any change to
// this wallet, and signs the result. Grounded on spec.md §4.3's
// "greedy largest-first" wallet-side build, delegated to tx.Build.
func (w *Wallet) BuildTransaction(set utxo.Set, recipient string, amt amount.Amount, timestamp float64) (*tx.Transaction, error) {
	entries := set.ByAddress(w.Address())
	spendable := make([]tx.SpendableOutput, len(entries))
	for i, e := range entries {
		spendable[i] = tx.SpendableOutput{OutPoint: e.OutPoint, Output: e.Output}
	}
	return tx.Build(w.Address(), recipient, amt, spendable, w.KeyPair, timestamp)
}

// walletFilePath mirrors the teacher's "./tmp/wallets_%s.data" pattern,
// scoped under the given data directory instead of a hardcoded "./tmp".
func walletFilePath(dataDir, nodeID string) string {
	return filepath.Join(dataDir, fmt.Sprintf("wallets_%s.data", nodeID))
}

// Collection is a named set of wallets persisted together, the
// teacher's Wallets map generalized with a file path rooted in a
// caller-supplied data directory rather than a hardcoded "./tmp".
type Collection struct {
	DataDir string
	NodeID  string
	Wallets map[string]*Wallet
}

// Open loads an existing wallet collection from disk, or returns an
// empty one if the file does not yet exist — the teacher's
// CreateWallets/LoadFile behavior.
func Open(dataDir, nodeID string) (*Collection, error) {
	c := &Collection{DataDir: dataDir, NodeID: nodeID, Wallets: make(map[string]*Wallet)}
	path := walletFilePath(dataDir, nodeID)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet file %s: %w", path, err)
	}

	var loaded Collection
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&loaded); err != nil {
		return nil, fmt.Errorf("decode wallet file %s: %w", path, err)
	}
	c.Wallets = loaded.Wallets
	return c, nil
}

// Create generates a new wallet, adds it to the collection, persists
// the collection to disk, and returns the new address.
func (c *Collection) Create() (string, error) {
	w, err := New()
	if err != nil {
		return "", err
	}
	addr := w.Address()
	c.Wallets[addr] = w
	if err := c.Save(); err != nil {
		return "", err
	}
	return addr, nil
}

// Addresses returns every address held by the collection.
func (c *Collection) Addresses() []string {
	addrs := make([]string, 0, len(c.Wallets))
	for addr := range c.Wallets {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Get returns the wallet for addr, or false if the collection holds no
// such address.
func (c *Collection) Get(addr string) (*Wallet, bool) {
	w, ok := c.Wallets[addr]
	return w, ok
}

// Save persists the collection to its wallet file.
func (c *Collection) Save() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("create wallet dir %s: %w", c.DataDir, err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode wallet file: %w", err)
	}

	path := walletFilePath(c.DataDir, c.NodeID)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write wallet file %s: %w", path, err)
	}
	return nil
}
