// Package block implements the block header, mining loop, and
// intra-block verification of spec.md §4.6. The nonce-increment mining
// loop is grounded on the teacher repo's blockchain/proof.go
// ProofOfWork.Run, kept in the same shape (hash, compare, increment)
// but retargeted from a big.Int bit-shifted target to the
// hex-leading-zero metric spec.md §6's wire format requires, and made
// cancellable per spec.md §5 (a context check every 2^16 nonces instead
// of an unbounded `for nonce < math.MaxInt64` scan).
package block

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/ledger/merkle"
	"github.com/kado-chain/kado/internal/ledger/tx"
	"github.com/kado-chain/kado/internal/ledgererr"
)

// GenesisPreviousHash is the sentinel previous_hash for index 0, per
// spec.md §3 ("genesis has index = 0, previous_hash = '0'*64") — one
// hex digit per nibble of a SHA-256 hash.
const GenesisPreviousHash = "0000000000000000000000000000000000000000000000000000000000000000"

// GenesisRewardAddress is the reserved recipient of the genesis
// coinbase (amount 0), per spec.md §6: "a single coinbase to a reserved
// address". It decodes as the "KD" prefix over the base32 encoding of
// the all-zero 20-byte hash, so it satisfies keys.ValidAddress without
// corresponding to any real key pair.
const GenesisRewardAddress = "KDAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// cancellationInterval is how often, in mined nonces, Mine checks its
// context for cancellation, per spec.md §5 ("at least once per 2^16
// nonce attempts").
const cancellationInterval = 1 << 16

// Block is a header plus its transaction list. Hash and MerkleRoot are
// derived fields, recomputed by New/Mine and checked by Verify; they are
// carried on the struct because the wire format of spec.md §6 embeds
// them directly in the serialized block file.
type Block struct {
	Index        int64             `json:"index"`
	PreviousHash string            `json:"previous_hash"`
	Timestamp    float64           `json:"timestamp"`
	MerkleRoot   string            `json:"merkle_root"`
	Difficulty   int               `json:"difficulty"`
	Nonce        int64             `json:"nonce"`
	Hash         string            `json:"hash"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// header mirrors the fields Hash commits to, excluding Hash itself,
// with a stable field order.
type header struct {
	Index        int64   `json:"index"`
	PreviousHash string  `json:"previous_hash"`
	Timestamp    float64 `json:"timestamp"`
	MerkleRoot   string  `json:"merkle_root"`
	Difficulty   int     `json:"difficulty"`
	Nonce        int64   `json:"nonce"`
}

func (b *Block) headerBytes() []byte {
	h := header{
		Index: b.Index, PreviousHash: b.PreviousHash, Timestamp: b.Timestamp,
		MerkleRoot: b.MerkleRoot, Difficulty: b.Difficulty, Nonce: b.Nonce,
	}
	encoded, err := json.Marshal(h)
	if err != nil {
		panic(fmt.Sprintf("block: marshal header: %v", err)) // unreachable: all fields are plain JSON-safe types
	}
	return encoded
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// New builds a block linked to previousHash (GenesisPreviousHash for
// genesis) at index with the given transactions, difficulty, and
// timestamp. Transactions[0] must be the
// coinbase; New does not validate that — Verify does.
func New(previousHash string, index int64, transactions []*tx.Transaction, difficulty int, timestamp float64) (*Block, error) {
	if len(transactions) == 0 {
		return nil, ledgererr.New(ledgererr.KindBadCoinbase, "block must contain at least the coinbase transaction")
	}

	txids := make([]string, len(transactions))
	for i, t := range transactions {
		txids[i] = t.Txid
	}
	tree := merkle.New(txids)

	return &Block{
		Index:        index,
		PreviousHash: previousHash,
		Timestamp:    timestamp,
		MerkleRoot:   tree.Root(),
		Difficulty:   difficulty,
		Transactions: transactions,
	}, nil
}

// leadingHexZeros reports whether hexHash starts with n or more '0'
// characters.
func leadingHexZeros(hexHash string, n int) bool {
	if n > len(hexHash) {
		return false
	}
	return strings.Count(hexHash[:n], "0") == n
}

// Mine scans nonce from 0 upward until the block's hash has Difficulty
// leading hex zeros, or ctx is cancelled, or maxNonce is exhausted. On
// success it sets Nonce and Hash on b. Every cancellationInterval
// nonces it checks ctx; spec.md §5 also calls for a check "at each
// retarget of timestamp" — callers that bump b.Timestamp and retry do
// so by calling Mine again, which starts its scan from nonce 0 with the
// new timestamp baked into the header.
func (b *Block) Mine(ctx context.Context, maxNonce int64) error {
	for nonce := int64(0); nonce < maxNonce; nonce++ {
		if nonce%cancellationInterval == 0 {
			select {
			case <-ctx.Done():
				return ledgererr.Wrap(ledgererr.KindMiningCancelled, ctx.Err(), "mining cancelled at nonce %d", nonce)
			default:
			}
		}

		b.Nonce = nonce
		candidate := hashHex(b.headerBytes())
		if leadingHexZeros(candidate, b.Difficulty) {
			b.Hash = candidate
			return nil
		}
	}
	return ledgererr.New(ledgererr.KindMiningStalled, "exhausted %d nonces without meeting difficulty %d", maxNonce, b.Difficulty)
}

// recomputeMerkleRoot returns the Merkle root spec.md §4.6 says must
// match b.Transactions, independent of whatever b.MerkleRoot currently
// holds.
func (b *Block) recomputeMerkleRoot() string {
	txids := make([]string, len(b.Transactions))
	for i, t := range b.Transactions {
		txids[i] = t.Txid
	}
	return merkle.New(txids).Root()
}

// Verify checks b against its declared previous block and the expected
// difficulty/reward, per the six checks of spec.md §4.6. It does not
// validate individual transactions against a UTXO snapshot — that is
// chain.Chain's job, since it requires a running snapshot applied
// tx-by-tx to catch intra-block double-spends.
func (b *Block) Verify(previous *Block, expectedDifficulty int, expectedReward amount.Amount, collectedFees amount.Amount) error {
	if previous != nil {
		if b.PreviousHash != previous.Hash {
			return ledgererr.New(ledgererr.KindBadBlockLink, "previous_hash %s does not match previous block's hash %s", b.PreviousHash, previous.Hash)
		}
		if b.Index != previous.Index+1 {
			return ledgererr.New(ledgererr.KindBadBlockLink, "index %d is not previous index %d + 1", b.Index, previous.Index)
		}
		if b.Timestamp < previous.Timestamp {
			return ledgererr.New(ledgererr.KindBadTimestamp, "timestamp %v precedes previous block's timestamp %v", b.Timestamp, previous.Timestamp)
		}
	} else {
		if b.PreviousHash != GenesisPreviousHash {
			return ledgererr.New(ledgererr.KindBadBlockLink, "genesis previous_hash must be 64 zeros")
		}
		if b.Index != 0 {
			return ledgererr.New(ledgererr.KindBadBlockLink, "genesis index must be 0")
		}
	}

	if b.Difficulty != expectedDifficulty {
		return ledgererr.New(ledgererr.KindBadPoW, "difficulty %d does not match expected %d", b.Difficulty, expectedDifficulty)
	}
	if !leadingHexZeros(b.Hash, b.Difficulty) {
		return ledgererr.New(ledgererr.KindBadPoW, "hash %s does not have %d leading hex zeros", b.Hash, b.Difficulty)
	}
	if b.Hash != hashHex(b.headerBytes()) {
		return ledgererr.New(ledgererr.KindBadPoW, "hash %s does not match recomputed header hash", b.Hash)
	}

	if b.MerkleRoot != b.recomputeMerkleRoot() {
		return ledgererr.New(ledgererr.KindBadMerkleRoot, "merkle_root does not match transactions")
	}

	if len(b.Transactions) == 0 || !b.Transactions[0].IsCoinbase() {
		return ledgererr.New(ledgererr.KindBadCoinbase, "first transaction is not a coinbase")
	}
	for _, t := range b.Transactions[1:] {
		if t.IsCoinbase() {
			return ledgererr.New(ledgererr.KindBadCoinbase, "coinbase transaction found outside position 0")
		}
	}
	if err := tx.VerifyCoinbase(b.Transactions[0], expectedReward, collectedFees); err != nil {
		return err
	}

	return nil
}

// Serialize returns the canonical wire JSON for b (spec.md §6).
func (b *Block) Serialize() ([]byte, error) {
	return json.Marshal(b)
}

// Deserialize parses wire JSON into a Block.
func Deserialize(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindBadPoW, err, "decode block")
	}
	return &b, nil
}

// String renders the block's identity for logs.
func (b *Block) String() string {
	return fmt.Sprintf("block(index=%s, hash=%s)", strconv.FormatInt(b.Index, 10), b.Hash)
}
