package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/keys"
	"github.com/kado-chain/kado/internal/ledger/tx"
	"github.com/kado-chain/kado/internal/ledger/utxo"
)

func fundedSet(t *testing.T, addr string, amt amount.Amount) (*utxo.Memory, *tx.Transaction) {
	t.Helper()
	set := utxo.NewMemory()
	cb := tx.NewCoinbase(addr, amt, []byte("n"), 0)
	require.NoError(t, set.ApplyBlock([]*tx.Transaction{cb}))
	return set, cb
}

func spendTx(t *testing.T, kp *keys.KeyPair, from string, cb *tx.Transaction, to string, amt amount.Amount, ts float64) *tx.Transaction {
	t.Helper()
	spendable := []tx.SpendableOutput{{
		OutPoint: tx.OutPoint{Txid: cb.Txid, Vout: 0},
		Output:   cb.Outputs[0],
	}}
	built, err := tx.Build(from, to, amt, spendable, kp, ts)
	require.NoError(t, err)
	return built
}

func TestSubmitAndTake(t *testing.T) {
	kp, err := keys.NewKeyPair()
	require.NoError(t, err)
	alice := keys.Address(kp.Public)
	bob := "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB"

	set, cb := fundedSet(t, alice, amount.FromSmallestUnits(1000))
	built := spendTx(t, kp, alice, cb, bob, amount.FromSmallestUnits(400), 1)

	pool := New()
	require.NoError(t, pool.Submit(built, set))
	require.Equal(t, 1, pool.Len())

	taken := pool.Take(10)
	require.Len(t, taken, 1)
	require.Equal(t, built.Txid, taken[0].Txid)
}

func TestSubmitIsIdempotent(t *testing.T) {
	kp, err := keys.NewKeyPair()
	require.NoError(t, err)
	alice := keys.Address(kp.Public)
	bob := "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB"

	set, cb := fundedSet(t, alice, amount.FromSmallestUnits(1000))
	built := spendTx(t, kp, alice, cb, bob, amount.FromSmallestUnits(400), 1)

	pool := New()
	require.NoError(t, pool.Submit(built, set))
	require.NoError(t, pool.Submit(built, set))
	require.Equal(t, 1, pool.Len())
}

func TestSubmitRejectsConflictingSecondSpend(t *testing.T) {
	kp, err := keys.NewKeyPair()
	require.NoError(t, err)
	alice := keys.Address(kp.Public)
	bob := "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB"
	carol := "KDCAROLCAROLCAROLCAROLCAROLCAROLCA"

	set, cb := fundedSet(t, alice, amount.FromSmallestUnits(1000))
	first := spendTx(t, kp, alice, cb, bob, amount.FromSmallestUnits(400), 1)
	second := spendTx(t, kp, alice, cb, carol, amount.FromSmallestUnits(300), 2)

	pool := New()
	require.NoError(t, pool.Submit(first, set))
	require.Error(t, pool.Submit(second, set))
	require.Equal(t, 1, pool.Len())
}

func TestReconcileDropsInvalidatedTransactions(t *testing.T) {
	kp, err := keys.NewKeyPair()
	require.NoError(t, err)
	alice := keys.Address(kp.Public)
	bob := "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB"

	set, cb := fundedSet(t, alice, amount.FromSmallestUnits(1000))
	built := spendTx(t, kp, alice, cb, bob, amount.FromSmallestUnits(400), 1)

	pool := New()
	require.NoError(t, pool.Submit(built, set))

	require.NoError(t, set.ApplyBlock([]*tx.Transaction{built}))
	pool.Reconcile(set)
	require.Equal(t, 0, pool.Len())
}

func TestTakeOrdersByFeeDescending(t *testing.T) {
	kp, err := keys.NewKeyPair()
	require.NoError(t, err)
	alice := keys.Address(kp.Public)
	bob := "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB"

	set := utxo.NewMemory()
	cb1 := tx.NewCoinbase(alice, amount.FromSmallestUnits(1000), []byte("a"), 0)
	cb2 := tx.NewCoinbase(alice, amount.FromSmallestUnits(1000), []byte("b"), 0)
	require.NoError(t, set.ApplyBlock([]*tx.Transaction{cb1, cb2}))

	lowFee, err := tx.Build(alice, bob, amount.FromSmallestUnits(1000), []tx.SpendableOutput{{
		OutPoint: tx.OutPoint{Txid: cb1.Txid, Vout: 0}, Output: cb1.Outputs[0],
	}}, kp, 1)
	require.NoError(t, err)

	highFee, err := tx.Build(alice, bob, amount.FromSmallestUnits(200), []tx.SpendableOutput{{
		OutPoint: tx.OutPoint{Txid: cb2.Txid, Vout: 0}, Output: cb2.Outputs[0],
	}}, kp, 2)
	require.NoError(t, err)
	// Drop the change output to manufacture a non-zero fee, then re-sign
	// (the signature and txid both cover the outputs).
	highFee.Outputs = highFee.Outputs[:1]
	require.NoError(t, highFee.SignWith(kp))

	pool := New()
	require.NoError(t, pool.Submit(lowFee, set))
	require.NoError(t, pool.Submit(highFee, set))

	taken := pool.Take(2)
	require.Len(t, taken, 2)
	require.Equal(t, highFee.Txid, taken[0].Txid)
}
