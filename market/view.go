package market

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// PositionView is a position with its owner attached, as it appears in a
// market snapshot.
type PositionView struct {
	Owner                 common.Address `json:"owner"`
	Size                  *big.Int       `json:"size"`
	RewardPerPositionPaid *big.Int       `json:"rewardPerPositionPaid"`
	TokensOwed            *big.Int       `json:"tokensOwed"`
}

// MarketView is a complete, deeply-copied snapshot of the market's queryable
// state. Consumers own the snapshot's memory outright and can hold or mutate
// it without affecting the live market.
type MarketView struct {
	Reserve0                *big.Int       `json:"reserve0"`
	Reserve1                *big.Int       `json:"reserve1"`
	TotalLiquidity          *big.Int       `json:"totalLiquidity"`
	TotalLiquidityBorrowed  *big.Int       `json:"totalLiquidityBorrowed"`
	TotalPositionSize       *big.Int       `json:"totalPositionSize"`
	RewardPerPositionStored *big.Int       `json:"rewardPerPositionStored"`
	LastUpdate              int64          `json:"lastUpdate"`
	Positions               []PositionView `json:"positions,omitempty"`
}

// View captures the current snapshot. Positions are ordered by owner address
// so repeated snapshots of identical state are identical values.
func (m *Market) View() MarketView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	positions := make([]PositionView, 0, len(m.positions))
	for owner, pos := range m.positions {
		positions = append(positions, PositionView{
			Owner:                 owner,
			Size:                  new(big.Int).Set(pos.Size),
			RewardPerPositionPaid: new(big.Int).Set(pos.RewardPerPositionPaid),
			TokensOwed:            new(big.Int).Set(pos.TokensOwed),
		})
	}
	sort.Slice(positions, func(i, j int) bool {
		return bytes.Compare(positions[i].Owner.Bytes(), positions[j].Owner.Bytes()) < 0
	})

	return MarketView{
		Reserve0:                new(big.Int).Set(m.reserve0),
		Reserve1:                new(big.Int).Set(m.reserve1),
		TotalLiquidity:          new(big.Int).Set(m.totalLiquidity),
		TotalLiquidityBorrowed:  new(big.Int).Set(m.totalLiquidityBorrowed),
		TotalPositionSize:       new(big.Int).Set(m.totalPositionSize),
		RewardPerPositionStored: new(big.Int).Set(m.rewardPerPositionStored),
		LastUpdate:              m.lastUpdate.Unix(),
		Positions:               positions,
	}
}
