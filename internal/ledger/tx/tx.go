// Package tx implements the Transaction data model, canonical
// serialization, signing, and verification described in spec.md §4.3.
// It is grounded on the teacher repo's blockchain/transaction.go
// (Hash/Sign/Verify/TrimmedCopy shape), generalized from gob encoding to
// the deterministic JSON wire format spec.md §6 requires, and from a
// single shared "trimmed copy" hash per signing round to a pure
// preimage function with no temporary per-input field mutation.
package tx

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/keys"
	"github.com/kado-chain/kado/internal/ledgererr"
)

// OutPoint uniquely identifies an output: the transaction that created
// it and its zero-based index. It is comparable so it can key maps
// directly (spec.md §3).
type OutPoint struct {
	Txid string `json:"txid"`
	Vout int    `json:"vout"`
}

// Output is an immutable (address, amount) pair.
type Output struct {
	Address string        `json:"address"`
	Amount  amount.Amount `json:"amount"`
}

// Input references a previous output and carries the proof that the
// spender owns it. For a coinbase input, Txid is empty and Vout is -1
// (the "null outpoint" of spec.md §3); Signature then holds a hex nonce
// used only to keep coinbases at different heights distinct, per the
// coinbase-uniqueness guidance in spec.md §9.
type Input struct {
	Txid      string `json:"txid"`
	Vout      int    `json:"vout"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

// OutPoint returns the OutPoint this input references.
func (in Input) OutPoint() OutPoint { return OutPoint{Txid: in.Txid, Vout: in.Vout} }

// isNullOutpoint reports whether this input is the synthetic coinbase
// input rather than a reference to a real prior output.
func (in Input) isNullOutpoint() bool { return in.Txid == "" && in.Vout == -1 }

// Transaction is a txid plus inputs, outputs, and a build timestamp.
type Transaction struct {
	Txid      string   `json:"txid"`
	Inputs    []Input  `json:"inputs"`
	Outputs   []Output `json:"outputs"`
	Timestamp float64  `json:"timestamp"`
}

// IsCoinbase reports whether tx is the block-reward transaction: exactly
// one input, with a null outpoint.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].isNullOutpoint()
}

// signingInput/txidInput/canonicalOutput and the two preimage structs
// mirror the wire shapes; their field declaration order is the canonical
// key order spec.md §4.3 calls "deterministic key-sorted" (each declares
// its fields in alphabetical order of their JSON keys, which is what
// makes this encoding well-defined without a bespoke key-sorting pass).
type signingInput struct {
	Txid string `json:"txid"`
	Vout int    `json:"vout"`
}

type canonicalOutput struct {
	Address string        `json:"address"`
	Amount  amount.Amount `json:"amount"`
}

type signingPreimage struct {
	Inputs    []signingInput    `json:"inputs"`
	Outputs   []canonicalOutput `json:"outputs"`
	Timestamp float64           `json:"timestamp"`
}

type txidInput struct {
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
	Txid      string `json:"txid"`
	Vout      int    `json:"vout"`
}

type txidPreimage struct {
	Inputs    []txidInput       `json:"inputs"`
	Outputs   []canonicalOutput `json:"outputs"`
	Timestamp float64           `json:"timestamp"`
}

func canonicalOutputs(outputs []Output) []canonicalOutput {
	out := make([]canonicalOutput, len(outputs))
	for i, o := range outputs {
		out[i] = canonicalOutput{Address: o.Address, Amount: o.Amount}
	}
	return out
}

// SigningPreimage returns the canonical bytes every input's signature
// covers: inputs reduced to (txid,vout), outputs, and the timestamp.
// Signatures and public keys are excluded so all inputs of a
// transaction share one signature target, per spec.md §4.3.
func (t *Transaction) SigningPreimage() []byte {
	pre := signingPreimage{Outputs: canonicalOutputs(t.Outputs), Timestamp: t.Timestamp}
	for _, in := range t.Inputs {
		pre.Inputs = append(pre.Inputs, signingInput{Txid: in.Txid, Vout: in.Vout})
	}
	encoded, err := json.Marshal(pre)
	if err != nil {
		panic(fmt.Sprintf("tx: marshal signing preimage: %v", err)) // unreachable: all fields are plain JSON-safe types
	}
	return encoded
}

// txidPreimageBytes returns the canonical bytes the txid is computed
// over: everything except the txid field itself, but including
// signatures and public keys (this is what makes the txid differ from
// the signing preimage, per spec.md §4.3).
func (t *Transaction) txidPreimageBytes() []byte {
	pre := txidPreimage{Outputs: canonicalOutputs(t.Outputs), Timestamp: t.Timestamp}
	for _, in := range t.Inputs {
		pre.Inputs = append(pre.Inputs, txidInput{
			Txid: in.Txid, Vout: in.Vout, Signature: in.Signature, PublicKey: in.PublicKey,
		})
	}
	encoded, err := json.Marshal(pre)
	if err != nil {
		panic(fmt.Sprintf("tx: marshal txid preimage: %v", err))
	}
	return encoded
}

// ComputeTxid returns the txid this transaction should have, independent
// of whatever is currently stored in t.Txid.
func (t *Transaction) ComputeTxid() string {
	return keys.HashHex(t.txidPreimageBytes())
}

// SetTxid recomputes and stores the txid.
func (t *Transaction) SetTxid() { t.Txid = t.ComputeTxid() }

// SignWith signs every non-coinbase input with kp over the shared
// signing preimage, then recomputes the txid (the txid preimage
// includes the signatures just written). All inputs are assumed to be
// owned by the same key, matching the wallet's single-sender build
// path in Build below.
func (t *Transaction) SignWith(kp *keys.KeyPair) error {
	if t.IsCoinbase() {
		return nil
	}
	sig, err := kp.Sign(t.SigningPreimage())
	if err != nil {
		return err
	}
	sigHex := hex.EncodeToString(sig)
	pubHex := hex.EncodeToString(kp.Public)
	for i := range t.Inputs {
		t.Inputs[i].Signature = sigHex
		t.Inputs[i].PublicKey = pubHex
	}
	t.SetTxid()
	return nil
}

// SpendableOutput pairs an OutPoint with the Output it refers to; the
// wallet passes a slice of these (its view of its own unspent outputs)
// into Build.
type SpendableOutput struct {
	OutPoint OutPoint
	Output   Output
}

// Build assembles and signs a standard transaction sending amount from
// the owner of spendable (sorted or not — Build sorts internally) to
// `to`, returning change to `from` if any. Grounded on the teacher's
// NewTransaction, generalized to spec.md §4.3's greedy largest-first
// selection (the teacher iterates a Go map, whose order is undefined).
func Build(from, to string, amt amount.Amount, spendable []SpendableOutput, kp *keys.KeyPair, timestamp float64) (*Transaction, error) {
	if !amt.Positive() {
		return nil, ledgererr.New(ledgererr.KindNegativeOrZeroAmount, "amount must be positive")
	}

	sorted := append([]SpendableOutput(nil), spendable...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Output.Amount > sorted[j].Output.Amount })

	var inputs []Input
	var total amount.Amount
	for _, candidate := range sorted {
		if total >= amt {
			break
		}
		inputs = append(inputs, Input{Txid: candidate.OutPoint.Txid, Vout: candidate.OutPoint.Vout})
		total = total.Add(candidate.Output.Amount)
	}
	if total < amt {
		return nil, ledgererr.New(ledgererr.KindInsufficientFunds, "need %s, have %s", amt, total)
	}

	outputs := []Output{{Address: to, Amount: amt}}
	if change := total.Sub(amt); change.Positive() {
		outputs = append(outputs, Output{Address: from, Amount: change})
	}

	transaction := &Transaction{Inputs: inputs, Outputs: outputs, Timestamp: timestamp}
	if err := transaction.SignWith(kp); err != nil {
		return nil, err
	}
	return transaction, nil
}

// NewCoinbase builds the reward transaction for a block. nonce
// disambiguates coinbases that would otherwise be identical across
// different heights (spec.md §9); it is stored hex-encoded in the
// synthetic input's Signature field and is therefore part of the txid
// preimage.
func NewCoinbase(rewardAddress string, reward amount.Amount, nonce []byte, timestamp float64) *Transaction {
	t := &Transaction{
		Inputs:    []Input{{Txid: "", Vout: -1, Signature: hex.EncodeToString(nonce)}},
		Outputs:   []Output{{Address: rewardAddress, Amount: reward}},
		Timestamp: timestamp,
	}
	t.SetTxid()
	return t
}

// Serialize returns the canonical wire JSON for tx (spec.md §6).
func (t *Transaction) Serialize() ([]byte, error) {
	return json.Marshal(t)
}

// Deserialize parses wire JSON into a Transaction, rejecting unknown
// fields so the txid stays a pure function of the known schema.
func Deserialize(data []byte) (*Transaction, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var t Transaction
	if err := dec.Decode(&t); err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindBadTxid, err, "decode transaction")
	}
	return &t, nil
}
