package tx

import (
	"encoding/hex"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/keys"
	"github.com/kado-chain/kado/internal/ledgererr"
)

// Lookup resolves an OutPoint to the Output it refers to, backed by a
// UTXO set snapshot (internal/ledger/utxo) in production and by a plain
// LookupFunc closure in tests.
type Lookup interface {
	Get(OutPoint) (Output, bool)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(OutPoint) (Output, bool)

func (f LookupFunc) Get(o OutPoint) (Output, bool) { return f(o) }

// Verify checks a standard (non-coinbase) transaction against a UTXO
// snapshot and a set of outpoints already spent earlier in the same
// block (spent is mutated: every outpoint this tx consumes is added to
// it), per the five checks of spec.md §4.3. On success it returns the
// fee (sum of inputs minus sum of outputs).
func Verify(t *Transaction, lookup Lookup, spent map[OutPoint]bool) (amount.Amount, error) {
	if t.IsCoinbase() {
		return 0, ledgererr.New(ledgererr.KindBadCoinbase, "Verify does not accept coinbase transactions, use VerifyCoinbase")
	}

	if t.Txid != t.ComputeTxid() {
		return 0, ledgererr.New(ledgererr.KindBadTxid, "txid %s does not match recomputed hash %s", t.Txid, t.ComputeTxid())
	}

	if len(t.Inputs) == 0 {
		return 0, ledgererr.New(ledgererr.KindInsufficientInputs, "transaction has no inputs")
	}
	if len(t.Outputs) == 0 {
		return 0, ledgererr.New(ledgererr.KindInsufficientInputs, "transaction has no outputs")
	}
	for _, o := range t.Outputs {
		if !o.Amount.Positive() {
			return 0, ledgererr.New(ledgererr.KindNegativeOrZeroAmount, "output to %s has non-positive amount", o.Address)
		}
	}

	preimage := t.SigningPreimage()

	var totalIn, totalOut amount.Amount
	for _, in := range t.Inputs {
		op := in.OutPoint()
		if spent[op] {
			return 0, ledgererr.New(ledgererr.KindDoubleSpendInBlock, "outpoint %s:%d already spent in this block", op.Txid, op.Vout)
		}

		referenced, ok := lookup.Get(op)
		if !ok {
			return 0, ledgererr.New(ledgererr.KindUnknownInput, "outpoint %s:%d not found in UTXO set", op.Txid, op.Vout)
		}

		pubKeyBytes, err := hex.DecodeString(in.PublicKey)
		if err != nil {
			return 0, ledgererr.Wrap(ledgererr.KindMalformedKey, err, "decode input public key")
		}
		if keys.Address(pubKeyBytes) != referenced.Address {
			return 0, ledgererr.New(ledgererr.KindSignatureMismatch, "public key does not hash to output address %s", referenced.Address)
		}

		sigBytes, err := hex.DecodeString(in.Signature)
		if err != nil {
			return 0, ledgererr.Wrap(ledgererr.KindSignatureMismatch, err, "decode input signature")
		}
		ok, err = keys.VerifySignature(pubKeyBytes, sigBytes, preimage)
		if err != nil {
			return 0, ledgererr.Wrap(ledgererr.KindSignatureMismatch, err, "verify signature")
		}
		if !ok {
			return 0, ledgererr.New(ledgererr.KindSignatureMismatch, "signature does not verify for outpoint %s:%d", op.Txid, op.Vout)
		}

		spent[op] = true
		totalIn = totalIn.Add(referenced.Amount)
	}

	for _, o := range t.Outputs {
		totalOut = totalOut.Add(o.Amount)
	}

	if totalIn < totalOut {
		return 0, ledgererr.New(ledgererr.KindInsufficientInputs, "inputs sum %s less than outputs sum %s", totalIn, totalOut)
	}

	return totalIn.Sub(totalOut), nil
}

// VerifyCoinbase checks the block's first transaction: exactly one
// null-outpoint input and an output sum that does not exceed the
// expected reward plus collected fees. Coinbases carry no signature.
func VerifyCoinbase(t *Transaction, expectedReward, collectedFees amount.Amount) error {
	if !t.IsCoinbase() {
		return ledgererr.New(ledgererr.KindBadCoinbase, "first transaction is not a coinbase")
	}
	if t.Txid != t.ComputeTxid() {
		return ledgererr.New(ledgererr.KindBadTxid, "coinbase txid does not match recomputed hash")
	}
	if len(t.Outputs) == 0 {
		return ledgererr.New(ledgererr.KindBadCoinbase, "coinbase has no outputs")
	}

	var total amount.Amount
	for _, o := range t.Outputs {
		if o.Amount < 0 {
			return ledgererr.New(ledgererr.KindNegativeOrZeroAmount, "coinbase output to %s has negative amount", o.Address)
		}
		total = total.Add(o.Amount)
	}

	limit := expectedReward.Add(collectedFees)
	if total > limit {
		return ledgererr.New(ledgererr.KindBadCoinbase, "coinbase pays %s, exceeds reward+fees %s", total, limit)
	}
	return nil
}
