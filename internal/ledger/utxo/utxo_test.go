package utxo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/ledger/tx"
)

func coinbase(addr string, amt amount.Amount) *tx.Transaction {
	return tx.NewCoinbase(addr, amt, []byte("n"), 0)
}

func TestApplyBlockInsertsCoinbaseOutputs(t *testing.T) {
	set := NewMemory()
	cb := coinbase("KDALICEALICEALICEALICEALICEALICEAL", amount.FromSmallestUnits(5000000000))

	require.NoError(t, set.ApplyBlock([]*tx.Transaction{cb}))

	out, ok := set.Lookup(tx.OutPoint{Txid: cb.Txid, Vout: 0})
	require.True(t, ok)
	require.Equal(t, amount.FromSmallestUnits(5000000000), out.Amount)
}

func TestApplyBlockRemovesSpentInputs(t *testing.T) {
	set := NewMemory()
	cb := coinbase("KDALICEALICEALICEALICEALICEALICEAL", amount.FromSmallestUnits(5000000000))
	require.NoError(t, set.ApplyBlock([]*tx.Transaction{cb}))

	spend := &tx.Transaction{
		Inputs:    []tx.Input{{Txid: cb.Txid, Vout: 0, Signature: "s", PublicKey: "p"}},
		Outputs:   []tx.Output{{Address: "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB", Amount: amount.FromSmallestUnits(5000000000)}},
		Timestamp: 1,
	}
	spend.SetTxid()

	require.NoError(t, set.ApplyBlock([]*tx.Transaction{spend}))

	_, ok := set.Lookup(tx.OutPoint{Txid: cb.Txid, Vout: 0})
	require.False(t, ok)

	out, ok := set.Lookup(tx.OutPoint{Txid: spend.Txid, Vout: 0})
	require.True(t, ok)
	require.Equal(t, amount.FromSmallestUnits(5000000000), out.Amount)
}

func TestApplyBlockRejectsUnknownInputAtomically(t *testing.T) {
	set := NewMemory()
	cb := coinbase("KDALICEALICEALICEALICEALICEALICEAL", amount.FromSmallestUnits(5000000000))
	require.NoError(t, set.ApplyBlock([]*tx.Transaction{cb}))

	bogus := &tx.Transaction{
		Inputs:    []tx.Input{{Txid: "nonexistent", Vout: 0, Signature: "s", PublicKey: "p"}},
		Outputs:   []tx.Output{{Address: "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB", Amount: amount.FromSmallestUnits(100)}},
		Timestamp: 1,
	}
	bogus.SetTxid()

	before := set.Len()
	err := set.ApplyBlock([]*tx.Transaction{bogus})
	require.Error(t, err)
	require.Equal(t, before, set.Len(), "rejected block must not partially mutate the set")
}

func TestRevertBlockIsApplyBlockInverse(t *testing.T) {
	set := NewMemory()
	cb := coinbase("KDALICEALICEALICEALICEALICEALICEAL", amount.FromSmallestUnits(5000000000))
	require.NoError(t, set.ApplyBlock([]*tx.Transaction{cb}))

	spend := &tx.Transaction{
		Inputs:    []tx.Input{{Txid: cb.Txid, Vout: 0, Signature: "s", PublicKey: "p"}},
		Outputs:   []tx.Output{{Address: "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB", Amount: amount.FromSmallestUnits(5000000000)}},
		Timestamp: 1,
	}
	spend.SetTxid()

	priorOutputs := map[tx.OutPoint]tx.Output{
		{Txid: cb.Txid, Vout: 0}: {Address: "KDALICEALICEALICEALICEALICEALICEAL", Amount: amount.FromSmallestUnits(5000000000)},
	}

	require.NoError(t, set.ApplyBlock([]*tx.Transaction{spend}))
	require.NoError(t, set.RevertBlock([]*tx.Transaction{spend}, priorOutputs))

	out, ok := set.Lookup(tx.OutPoint{Txid: cb.Txid, Vout: 0})
	require.True(t, ok)
	require.Equal(t, amount.FromSmallestUnits(5000000000), out.Amount)

	_, ok = set.Lookup(tx.OutPoint{Txid: spend.Txid, Vout: 0})
	require.False(t, ok)
}

func TestByAddress(t *testing.T) {
	set := NewMemory()
	alice := "KDALICEALICEALICEALICEALICEALICEAL"
	cb1 := coinbase(alice, amount.FromSmallestUnits(100))
	require.NoError(t, set.ApplyBlock([]*tx.Transaction{cb1}))

	entries := set.ByAddress(alice)
	require.Len(t, entries, 1)
	require.Equal(t, amount.FromSmallestUnits(100), entries[0].Output.Amount)

	require.Empty(t, set.ByAddress("KDNOBODYNOBODYNOBODYNOBODYNOBODYNO"))
}

func TestEntriesReturnsEverythingDeterministically(t *testing.T) {
	set := NewMemory()
	require.NoError(t, set.ApplyBlock([]*tx.Transaction{
		coinbase("KDALICEALICEALICEALICEALICEALICEAL", amount.FromSmallestUnits(1)),
	}))
	entries := set.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, set.ByAddress("KDALICEALICEALICEALICEALICEALICEAL"), entries)
}

func TestSeedReplacesContentsVerbatim(t *testing.T) {
	set := NewMemory()
	require.NoError(t, set.ApplyBlock([]*tx.Transaction{coinbase("KDALICEALICEALICEALICEALICEALICEAL", amount.FromSmallestUnits(1))}))

	entries := []Entry{
		{OutPoint: tx.OutPoint{Txid: "t1", Vout: 0}, Output: tx.Output{Address: "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB", Amount: amount.FromSmallestUnits(50)}},
	}
	set.Seed(entries)

	require.Equal(t, 1, set.Len())
	out, ok := set.Lookup(tx.OutPoint{Txid: "t1", Vout: 0})
	require.True(t, ok)
	require.Equal(t, amount.FromSmallestUnits(50), out.Amount)
}
