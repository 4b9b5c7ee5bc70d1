package block

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/ledger/tx"
)

func coinbaseTx(amt amount.Amount) *tx.Transaction {
	return tx.NewCoinbase("KDMINERMINERMINERMINERMINERMINERMI", amt, []byte("n"), 0)
}

func TestMineProducesValidHash(t *testing.T) {
	b, err := New(GenesisPreviousHash, 0, []*tx.Transaction{coinbaseTx(amount.FromSmallestUnits(5000000000))}, 1, 0)
	require.NoError(t, err)

	require.NoError(t, b.Mine(context.Background(), 1<<20))
	require.True(t, leadingHexZeros(b.Hash, 1))
}

func TestVerifyGenesis(t *testing.T) {
	b, err := New(GenesisPreviousHash, 0, []*tx.Transaction{coinbaseTx(amount.FromSmallestUnits(5000000000))}, 1, 0)
	require.NoError(t, err)
	require.NoError(t, b.Mine(context.Background(), 1<<20))

	require.NoError(t, b.Verify(nil, 1, amount.FromSmallestUnits(5000000000), amount.Zero))
}

func TestVerifyRejectsBadPreviousHash(t *testing.T) {
	genesis, err := New(GenesisPreviousHash, 0, []*tx.Transaction{coinbaseTx(amount.FromSmallestUnits(5000000000))}, 1, 0)
	require.NoError(t, err)
	require.NoError(t, genesis.Mine(context.Background(), 1<<20))

	next, err := New("not-the-real-prev-hash", 1, []*tx.Transaction{coinbaseTx(amount.FromSmallestUnits(5000000000))}, 1, 1)
	require.NoError(t, err)
	require.NoError(t, next.Mine(context.Background(), 1<<20))

	require.Error(t, next.Verify(genesis, 1, amount.FromSmallestUnits(5000000000), amount.Zero))
}

func TestVerifyRejectsTamperedMerkleRoot(t *testing.T) {
	b, err := New(GenesisPreviousHash, 0, []*tx.Transaction{coinbaseTx(amount.FromSmallestUnits(5000000000))}, 1, 0)
	require.NoError(t, err)
	require.NoError(t, b.Mine(context.Background(), 1<<20))

	b.MerkleRoot = "deadbeef"
	require.Error(t, b.Verify(nil, 1, amount.FromSmallestUnits(5000000000), amount.Zero))
}

func TestVerifyRejectsUnmetDifficulty(t *testing.T) {
	b, err := New(GenesisPreviousHash, 0, []*tx.Transaction{coinbaseTx(amount.FromSmallestUnits(5000000000))}, 1, 0)
	require.NoError(t, err)
	require.NoError(t, b.Mine(context.Background(), 1<<20))

	require.Error(t, b.Verify(nil, 8, amount.FromSmallestUnits(5000000000), amount.Zero))
}

func TestMineCancellation(t *testing.T) {
	b, err := New(GenesisPreviousHash, 0, []*tx.Transaction{coinbaseTx(amount.FromSmallestUnits(5000000000))}, 64, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = b.Mine(ctx, 1<<20)
	require.Error(t, err)
}

func TestSerializeRoundTrip(t *testing.T) {
	b, err := New(GenesisPreviousHash, 0, []*tx.Transaction{coinbaseTx(amount.FromSmallestUnits(5000000000))}, 1, 0)
	require.NoError(t, err)
	require.NoError(t, b.Mine(context.Background(), 1<<20))

	data, err := b.Serialize()
	require.NoError(t, err)

	roundTripped, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, b.Hash, roundTripped.Hash)
	require.Equal(t, b.MerkleRoot, roundTripped.MerkleRoot)
}
