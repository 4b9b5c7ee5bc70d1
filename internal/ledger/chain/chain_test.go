package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kado-chain/kado/internal/amount"
	"github.com/kado-chain/kado/internal/keys"
	"github.com/kado-chain/kado/internal/ledger/block"
	"github.com/kado-chain/kado/internal/ledger/mempool"
	"github.com/kado-chain/kado/internal/ledger/tx"
)

func mineGenesis(t *testing.T, policy Policy, minerAddr string) *block.Block {
	t.Helper()
	cb := tx.NewCoinbase(minerAddr, Reward(policy, 0), []byte("genesis"), 0)
	b, err := block.New(block.GenesisPreviousHash, 0, []*tx.Transaction{cb}, policy.BaseDifficulty, 0)
	require.NoError(t, err)
	require.NoError(t, b.Mine(context.Background(), 1<<22))
	return b
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.BaseDifficulty = 1
	return p
}

func TestNewChainFromGenesis(t *testing.T) {
	policy := testPolicy()
	miner := "KDMINERMINERMINERMINERMINERMINERMI"
	genesis := mineGenesis(t, policy, miner)

	c, err := New(genesis, policy, mempool.New())
	require.NoError(t, err)
	require.Equal(t, int64(0), c.Height())

	entries := c.UTXOs().ByAddress(miner)
	require.Len(t, entries, 1)
}

func TestAddBlockExtendsChainAndUTXOSet(t *testing.T) {
	policy := testPolicy()
	kp, err := keys.NewKeyPair()
	require.NoError(t, err)
	miner := keys.Address(kp.Public)

	genesis := mineGenesis(t, policy, miner)
	c, err := New(genesis, policy, mempool.New())
	require.NoError(t, err)

	cb := tx.NewCoinbase(miner, Reward(policy, 1), []byte("h1"), 1)
	next, err := block.New(genesis.Hash, 1, []*tx.Transaction{cb}, policy.BaseDifficulty, 1)
	require.NoError(t, err)
	require.NoError(t, next.Mine(context.Background(), 1<<22))

	require.NoError(t, c.AddBlock(next))
	require.Equal(t, int64(1), c.Height())
}

func TestAddBlockRejectsBadLink(t *testing.T) {
	policy := testPolicy()
	miner := "KDMINERMINERMINERMINERMINERMINERMI"
	genesis := mineGenesis(t, policy, miner)
	c, err := New(genesis, policy, mempool.New())
	require.NoError(t, err)

	cb := tx.NewCoinbase(miner, Reward(policy, 1), []byte("h1"), 1)
	next, err := block.New("deadbeefdeadbeef", 1, []*tx.Transaction{cb}, policy.BaseDifficulty, 1)
	require.NoError(t, err)
	require.NoError(t, next.Mine(context.Background(), 1<<22))

	require.Error(t, c.AddBlock(next))
	require.Equal(t, int64(0), c.Height())
}

func TestReplaceChainRejectsShorterOrEqual(t *testing.T) {
	policy := testPolicy()
	miner := "KDMINERMINERMINERMINERMINERMINERMI"
	genesis := mineGenesis(t, policy, miner)
	c, err := New(genesis, policy, mempool.New())
	require.NoError(t, err)

	require.Error(t, c.ReplaceChain([]*block.Block{genesis}))
}

func TestReplaceChainAcceptsLongerValidCandidate(t *testing.T) {
	policy := testPolicy()
	miner := "KDMINERMINERMINERMINERMINERMINERMI"
	genesis := mineGenesis(t, policy, miner)
	c, err := New(genesis, policy, mempool.New())
	require.NoError(t, err)

	cb := tx.NewCoinbase(miner, Reward(policy, 1), []byte("h1"), 1)
	next, err := block.New(genesis.Hash, 1, []*tx.Transaction{cb}, policy.BaseDifficulty, 1)
	require.NoError(t, err)
	require.NoError(t, next.Mine(context.Background(), 1<<22))

	require.NoError(t, c.ReplaceChain([]*block.Block{genesis, next}))
	require.Equal(t, int64(1), c.Height())
}

func TestRestoreReplaysAndRevalidatesPersistedChain(t *testing.T) {
	policy := testPolicy()
	miner := "KDMINERMINERMINERMINERMINERMINERMI"
	genesis := mineGenesis(t, policy, miner)
	c, err := New(genesis, policy, mempool.New())
	require.NoError(t, err)

	cb := tx.NewCoinbase(miner, Reward(policy, 1), []byte("h1"), 1)
	next, err := block.New(genesis.Hash, 1, []*tx.Transaction{cb}, policy.BaseDifficulty, 1)
	require.NoError(t, err)
	require.NoError(t, next.Mine(context.Background(), 1<<22))
	require.NoError(t, c.AddBlock(next))

	restored, err := Restore(c.Blocks(), policy, mempool.New())
	require.NoError(t, err)
	require.Equal(t, c.Height(), restored.Height())
	require.Equal(t, c.Tip().Hash, restored.Tip().Hash)
}

func TestRestoreRejectsEmptyChain(t *testing.T) {
	_, err := Restore(nil, testPolicy(), mempool.New())
	require.Error(t, err)
}

func TestRewardHalving(t *testing.T) {
	policy := DefaultPolicy()
	require.Equal(t, policy.InitialReward, Reward(policy, 0))
	require.Equal(t, policy.InitialReward/2, Reward(policy, policy.HalvingInterval))
	require.Equal(t, policy.InitialReward/4, Reward(policy, policy.HalvingInterval*2))
}

func TestExpectedDifficultyHoldsBeforeFirstRetarget(t *testing.T) {
	policy := testPolicy()
	miner := "KDMINERMINERMINERMINERMINERMINERMI"
	genesis := mineGenesis(t, policy, miner)
	c, err := New(genesis, policy, mempool.New())
	require.NoError(t, err)

	require.Equal(t, policy.BaseDifficulty, c.ExpectedDifficulty())
}

// TestHalvingBoundaryParameterized implements spec.md §8 scenario 6: with
// HalvingInterval=2, the reward halves every two heights instead of every
// 210000, so the chain's first three blocks (genesis plus two mined) pay
// 50, 50, 25 and the miner's cumulative balance is 125.
func TestHalvingBoundaryParameterized(t *testing.T) {
	policy := testPolicy()
	policy.HalvingInterval = 2
	miner := "KDMINERMINERMINERMINERMINERMINERMI"

	genesis := mineGenesis(t, policy, miner)
	require.Equal(t, amount.FromSmallestUnits(50*100000000), Reward(policy, 0))

	c, err := New(genesis, policy, mempool.New())
	require.NoError(t, err)

	cb1 := tx.NewCoinbase(miner, Reward(policy, 1), []byte("h1"), 1)
	block1, err := block.New(genesis.Hash, 1, []*tx.Transaction{cb1}, policy.BaseDifficulty, 1)
	require.NoError(t, err)
	require.NoError(t, block1.Mine(context.Background(), 1<<22))
	require.Equal(t, amount.FromSmallestUnits(50*100000000), Reward(policy, 1))
	require.NoError(t, c.AddBlock(block1))

	cb2 := tx.NewCoinbase(miner, Reward(policy, 2), []byte("h2"), 2)
	block2, err := block.New(block1.Hash, 2, []*tx.Transaction{cb2}, policy.BaseDifficulty, 2)
	require.NoError(t, err)
	require.NoError(t, block2.Mine(context.Background(), 1<<22))
	require.Equal(t, amount.FromSmallestUnits(25*100000000), Reward(policy, 2))
	require.NoError(t, c.AddBlock(block2))

	var balance amount.Amount
	for _, entry := range c.UTXOs().ByAddress(miner) {
		balance = balance.Add(entry.Output.Amount)
	}
	require.Equal(t, amount.FromSmallestUnits(125*100000000), balance)
}

func TestAmountSmokeForRewardArithmetic(t *testing.T) {
	require.True(t, Reward(DefaultPolicy(), 0).Positive())
	require.Equal(t, amount.Zero, Reward(DefaultPolicy(), DefaultPolicy().HalvingInterval*64))
}
