package tx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/keys"
)

func mustKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.NewKeyPair()
	require.NoError(t, err)
	return kp
}

func TestTxidIsPureFunctionOfContent(t *testing.T) {
	kp := mustKeyPair(t)
	alice := keys.Address(kp.Public)

	spendable := []SpendableOutput{{
		OutPoint: OutPoint{Txid: "deadbeef", Vout: 0},
		Output:   Output{Address: alice, Amount: amount.FromSmallestUnits(5000000000)},
	}}

	built, err := Build(alice, "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB", amount.FromSmallestUnits(2000000000), spendable, kp, 1700000000)
	require.NoError(t, err)

	require.Equal(t, built.ComputeTxid(), built.Txid)

	serialized, err := built.Serialize()
	require.NoError(t, err)
	roundTripped, err := Deserialize(serialized)
	require.NoError(t, err)
	require.Equal(t, built.Txid, roundTripped.Txid)
	require.Equal(t, built.ComputeTxid(), roundTripped.ComputeTxid())
}

func TestBuildProducesChange(t *testing.T) {
	kp := mustKeyPair(t)
	alice := keys.Address(kp.Public)
	bob := "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB"

	spendable := []SpendableOutput{{
		OutPoint: OutPoint{Txid: "deadbeef", Vout: 0},
		Output:   Output{Address: alice, Amount: amount.FromSmallestUnits(5000000000)},
	}}

	built, err := Build(alice, bob, amount.FromSmallestUnits(2000000000), spendable, kp, 1700000000)
	require.NoError(t, err)
	require.Len(t, built.Outputs, 2)
	require.Equal(t, bob, built.Outputs[0].Address)
	require.Equal(t, amount.FromSmallestUnits(2000000000), built.Outputs[0].Amount)
	require.Equal(t, alice, built.Outputs[1].Address)
	require.Equal(t, amount.FromSmallestUnits(3000000000), built.Outputs[1].Amount)
}

func TestBuildNoChangeWhenExact(t *testing.T) {
	kp := mustKeyPair(t)
	alice := keys.Address(kp.Public)
	bob := "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB"

	spendable := []SpendableOutput{{
		OutPoint: OutPoint{Txid: "deadbeef", Vout: 0},
		Output:   Output{Address: alice, Amount: amount.FromSmallestUnits(2000000000)},
	}}

	built, err := Build(alice, bob, amount.FromSmallestUnits(2000000000), spendable, kp, 1700000000)
	require.NoError(t, err)
	require.Len(t, built.Outputs, 1)
}

func TestBuildInsufficientFunds(t *testing.T) {
	kp := mustKeyPair(t)
	alice := keys.Address(kp.Public)

	spendable := []SpendableOutput{{
		OutPoint: OutPoint{Txid: "deadbeef", Vout: 0},
		Output:   Output{Address: alice, Amount: amount.FromSmallestUnits(100)},
	}}

	_, err := Build(alice, "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB", amount.FromSmallestUnits(200), spendable, kp, 0)
	require.Error(t, err)
}

func TestVerifyStandardTransaction(t *testing.T) {
	kp := mustKeyPair(t)
	alice := keys.Address(kp.Public)
	bob := "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB"

	prevOutpoint := OutPoint{Txid: "deadbeef", Vout: 0}
	spendable := []SpendableOutput{{OutPoint: prevOutpoint, Output: Output{Address: alice, Amount: amount.FromSmallestUnits(5000000000)}}}

	built, err := Build(alice, bob, amount.FromSmallestUnits(2000000000), spendable, kp, 1700000000)
	require.NoError(t, err)

	lookup := LookupFunc(func(op OutPoint) (Output, bool) {
		if op == prevOutpoint {
			return Output{Address: alice, Amount: amount.FromSmallestUnits(5000000000)}, true
		}
		return Output{}, false
	})

	fee, err := Verify(built, lookup, map[OutPoint]bool{})
	require.NoError(t, err)
	require.Equal(t, amount.Zero, fee)
}

func TestVerifyRejectsUnknownInput(t *testing.T) {
	kp := mustKeyPair(t)
	alice := keys.Address(kp.Public)
	bob := "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB"

	spendable := []SpendableOutput{{
		OutPoint: OutPoint{Txid: "deadbeef", Vout: 0},
		Output:   Output{Address: alice, Amount: amount.FromSmallestUnits(5000000000)},
	}}
	built, err := Build(alice, bob, amount.FromSmallestUnits(2000000000), spendable, kp, 1700000000)
	require.NoError(t, err)

	lookup := LookupFunc(func(OutPoint) (Output, bool) { return Output{}, false })
	_, err = Verify(built, lookup, map[OutPoint]bool{})
	require.Error(t, err)
}

func TestVerifyRejectsDoubleSpendInBlock(t *testing.T) {
	kp := mustKeyPair(t)
	alice := keys.Address(kp.Public)
	bob := "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB"

	prevOutpoint := OutPoint{Txid: "deadbeef", Vout: 0}
	spendable := []SpendableOutput{{OutPoint: prevOutpoint, Output: Output{Address: alice, Amount: amount.FromSmallestUnits(5000000000)}}}

	built, err := Build(alice, bob, amount.FromSmallestUnits(2000000000), spendable, kp, 1700000000)
	require.NoError(t, err)

	lookup := LookupFunc(func(op OutPoint) (Output, bool) {
		return Output{Address: alice, Amount: amount.FromSmallestUnits(5000000000)}, true
	})

	spent := map[OutPoint]bool{}
	_, err = Verify(built, lookup, spent)
	require.NoError(t, err)

	_, err = Verify(built, lookup, spent)
	require.Error(t, err)
}

func TestVerifyRejectsTamperedOutput(t *testing.T) {
	kp := mustKeyPair(t)
	alice := keys.Address(kp.Public)
	bob := "KDBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOB"

	prevOutpoint := OutPoint{Txid: "deadbeef", Vout: 0}
	spendable := []SpendableOutput{{OutPoint: prevOutpoint, Output: Output{Address: alice, Amount: amount.FromSmallestUnits(5000000000)}}}

	built, err := Build(alice, bob, amount.FromSmallestUnits(2000000000), spendable, kp, 1700000000)
	require.NoError(t, err)

	built.Outputs[0].Address = "KDEVE0EVE0EVE0EVE0EVE0EVE0EVE0EVE0E"

	lookup := LookupFunc(func(op OutPoint) (Output, bool) {
		return Output{Address: alice, Amount: amount.FromSmallestUnits(5000000000)}, true
	})
	_, err = Verify(built, lookup, map[OutPoint]bool{})
	require.Error(t, err) // txid no longer matches recomputed hash
}

func TestCoinbaseVerification(t *testing.T) {
	cb := NewCoinbase("KDMINERMINERMINERMINERMINERMINERMI", amount.FromSmallestUnits(5000000000), []byte("nonce-1"), 1700000000)
	require.True(t, cb.IsCoinbase())
	require.NoError(t, VerifyCoinbase(cb, amount.FromSmallestUnits(5000000000), amount.Zero))
}

func TestCoinbaseRejectsOverpay(t *testing.T) {
	cb := NewCoinbase("KDMINERMINERMINERMINERMINERMINERMI", amount.FromSmallestUnits(6000000000), []byte("nonce-1"), 1700000000)
	require.Error(t, VerifyCoinbase(cb, amount.FromSmallestUnits(5000000000), amount.Zero))
}

func TestGenesisCoinbaseAllowsZeroAmount(t *testing.T) {
	cb := NewCoinbase("KDGENESISGENESISGENESISGENESISGENES", amount.Zero, []byte("genesis"), 0)
	require.NoError(t, VerifyCoinbase(cb, amount.Zero, amount.Zero))
}

func TestCoinbaseNonceDisambiguatesTxid(t *testing.T) {
	a := NewCoinbase("KDMINERMINERMINERMINERMINERMINERMI", amount.FromSmallestUnits(100), []byte("h1"), 0)
	b := NewCoinbase("KDMINERMINERMINERMINERMINERMINERMI", amount.FromSmallestUnits(100), []byte("h2"), 0)
	require.NotEqual(t, a.Txid, b.Txid)
}

func TestDeserializeRejectsUnknownFields(t *testing.T) {
	_, err := Deserialize([]byte(`{"txid":"a","inputs":[],"outputs":[],"timestamp":0,"extra":1}`))
	require.Error(t, err)
}
