package market

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffIdenticalSnapshotsIsEmpty(t *testing.T) {
	h := newHarness(t)
	h.deposit(t, alice, ether(1))

	diff := Diff(h.market.View(), h.market.View())
	assert.True(t, diff.IsEmpty())
}

func TestDiffDetectsDeposit(t *testing.T) {
	h := newHarness(t)
	h.deposit(t, alice, ether(1))
	before := h.market.View()

	h.deposit(t, bob, ether(1))
	diff := Diff(before, h.market.View())

	require.False(t, diff.IsEmpty())
	assert.Equal(t, 0, ether(2).Cmp(diff.TotalLiquidity))
	assert.Equal(t, 0, ether(2).Cmp(diff.TotalPositionSize))
	assert.Equal(t, 0, ether(2).Cmp(diff.Reserve0))
	assert.Nil(t, diff.TotalLiquidityBorrowed)
	assert.Nil(t, diff.RewardPerPositionStored)

	require.Len(t, diff.PositionAdditions, 1)
	assert.Equal(t, bob, diff.PositionAdditions[0].Owner)
	assert.Equal(t, 0, ether(1).Cmp(diff.PositionAdditions[0].Size))
	assert.Empty(t, diff.PositionUpdates)
	assert.Empty(t, diff.PositionDeletions)
}

func TestDiffDetectsPositionUpdate(t *testing.T) {
	h := newHarness(t)
	h.deposit(t, alice, ether(1))
	before := h.market.View()

	h.deposit(t, alice, ether(1))
	diff := Diff(before, h.market.View())

	require.Len(t, diff.PositionUpdates, 1)
	assert.Equal(t, alice, diff.PositionUpdates[0].Owner)
	assert.Equal(t, 0, ether(2).Cmp(diff.PositionUpdates[0].Size))
	assert.Empty(t, diff.PositionAdditions)
}

func TestDiffDetectsAccrual(t *testing.T) {
	h := newHarness(t)
	h.deposit(t, alice, ether(1))
	_, _, err := h.market.Mint(context.Background(), bob, new(big.Int).Div(ether(1), big.NewInt(2)), nil)
	require.NoError(t, err)
	before := h.market.View()

	h.clock.Advance(365 * 24 * time.Hour)
	require.NoError(t, h.market.Accrue())
	diff := Diff(before, h.market.View())

	assert.Equal(t, 0, newBigIntFromString(t, "990000000000000000").Cmp(diff.TotalLiquidity))
	assert.Equal(t, 0, newBigIntFromString(t, "490000000000000000").Cmp(diff.TotalLiquidityBorrowed))
	assert.Equal(t, 0, newBigIntFromString(t, "10000000000000000").Cmp(diff.RewardPerPositionStored))
	require.NotNil(t, diff.LastUpdate)
	assert.Equal(t, h.clock.Now().Unix(), *diff.LastUpdate)
	// Accrual alone touches no reserves and no individual position.
	assert.Nil(t, diff.Reserve0)
	assert.Empty(t, diff.PositionUpdates)
}

func TestDiffDetectsDeletion(t *testing.T) {
	before := MarketView{
		Reserve0:                ether(1),
		Reserve1:                ether(8),
		TotalLiquidity:          ether(1),
		TotalLiquidityBorrowed:  new(big.Int),
		TotalPositionSize:       ether(1),
		RewardPerPositionStored: new(big.Int),
		Positions: []PositionView{{
			Owner:                 alice,
			Size:                  ether(1),
			RewardPerPositionPaid: new(big.Int),
			TokensOwed:            new(big.Int),
		}},
	}
	after := MarketView{
		Reserve0:                ether(1),
		Reserve1:                ether(8),
		TotalLiquidity:          ether(1),
		TotalLiquidityBorrowed:  new(big.Int),
		TotalPositionSize:       ether(1),
		RewardPerPositionStored: new(big.Int),
	}

	diff := Diff(before, after)
	require.Len(t, diff.PositionDeletions, 1)
	assert.Equal(t, alice, diff.PositionDeletions[0])
}

func TestDiffCopiesValues(t *testing.T) {
	h := newHarness(t)
	before := h.market.View()
	h.deposit(t, alice, ether(1))
	after := h.market.View()

	diff := Diff(before, after)
	require.NotNil(t, diff.TotalLiquidity)
	diff.TotalLiquidity.SetInt64(0)
	diff.PositionAdditions[0].Size.SetInt64(0)

	assert.Equal(t, 0, ether(1).Cmp(after.TotalLiquidity))
	assert.Equal(t, 0, ether(1).Cmp(after.Positions[0].Size))
}
