package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MarketDiff summarizes the changes between two market snapshots. Scalar
// fields are nil when unchanged; position changes are split into additions,
// updates, and deletions keyed by owner.
type MarketDiff struct {
	Reserve0                *big.Int `json:"reserve0,omitempty"`
	Reserve1                *big.Int `json:"reserve1,omitempty"`
	TotalLiquidity          *big.Int `json:"totalLiquidity,omitempty"`
	TotalLiquidityBorrowed  *big.Int `json:"totalLiquidityBorrowed,omitempty"`
	TotalPositionSize       *big.Int `json:"totalPositionSize,omitempty"`
	RewardPerPositionStored *big.Int `json:"rewardPerPositionStored,omitempty"`
	LastUpdate              *int64   `json:"lastUpdate,omitempty"`

	PositionAdditions []PositionView   `json:"positionAdditions,omitempty"`
	PositionUpdates   []PositionView   `json:"positionUpdates,omitempty"`
	PositionDeletions []common.Address `json:"positionDeletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d MarketDiff) IsEmpty() bool {
	return d.Reserve0 == nil && d.Reserve1 == nil &&
		d.TotalLiquidity == nil && d.TotalLiquidityBorrowed == nil &&
		d.TotalPositionSize == nil && d.RewardPerPositionStored == nil &&
		d.LastUpdate == nil &&
		len(d.PositionAdditions) == 0 && len(d.PositionUpdates) == 0 && len(d.PositionDeletions) == 0
}

// Diff calculates the difference between two market snapshots. Positions are
// diffed through maps for O(1) lookups; scalar fields are compared with
// big.Int.Cmp rather than reflection.
func Diff(old, new MarketView) MarketDiff {
	diff := MarketDiff{
		Reserve0:                changedBig(old.Reserve0, new.Reserve0),
		Reserve1:                changedBig(old.Reserve1, new.Reserve1),
		TotalLiquidity:          changedBig(old.TotalLiquidity, new.TotalLiquidity),
		TotalLiquidityBorrowed:  changedBig(old.TotalLiquidityBorrowed, new.TotalLiquidityBorrowed),
		TotalPositionSize:       changedBig(old.TotalPositionSize, new.TotalPositionSize),
		RewardPerPositionStored: changedBig(old.RewardPerPositionStored, new.RewardPerPositionStored),
	}
	if old.LastUpdate != new.LastUpdate {
		lastUpdate := new.LastUpdate
		diff.LastUpdate = &lastUpdate
	}

	oldPositions := make(map[common.Address]PositionView, len(old.Positions))
	for _, pos := range old.Positions {
		oldPositions[pos.Owner] = pos
	}
	newPositions := make(map[common.Address]PositionView, len(new.Positions))
	for _, pos := range new.Positions {
		newPositions[pos.Owner] = pos
	}

	for _, pos := range new.Positions {
		oldPos, exists := oldPositions[pos.Owner]
		if !exists {
			diff.PositionAdditions = append(diff.PositionAdditions, copyPositionView(pos))
			continue
		}
		if oldPos.Size.Cmp(pos.Size) != 0 ||
			oldPos.RewardPerPositionPaid.Cmp(pos.RewardPerPositionPaid) != 0 ||
			oldPos.TokensOwed.Cmp(pos.TokensOwed) != 0 {
			diff.PositionUpdates = append(diff.PositionUpdates, copyPositionView(pos))
		}
	}

	for _, pos := range old.Positions {
		if _, exists := newPositions[pos.Owner]; !exists {
			diff.PositionDeletions = append(diff.PositionDeletions, pos.Owner)
		}
	}

	return diff
}

// changedBig returns a copy of b when it differs from a, nil otherwise.
func changedBig(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		if b != nil {
			return new(big.Int).Set(b)
		}
		return nil
	}
	if a.Cmp(b) != 0 {
		return new(big.Int).Set(b)
	}
	return nil
}

func copyPositionView(pos PositionView) PositionView {
	return PositionView{
		Owner:                 pos.Owner,
		Size:                  new(big.Int).Set(pos.Size),
		RewardPerPositionPaid: new(big.Int).Set(pos.RewardPerPositionPaid),
		TokensOwed:            new(big.Int).Set(pos.TokensOwed),
	}
}
