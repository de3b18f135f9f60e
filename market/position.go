package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/liquidity-market-go/market/fullmath"
)

// Position is a lender's claim on the market: shares owned, the accumulator
// snapshot from the last interaction, and interest credited but not yet
// claimed. Positions are created implicitly on first use and persist at zero
// after a full withdrawal.
type Position struct {
	Size                  *big.Int `json:"size"`
	RewardPerPositionPaid *big.Int `json:"rewardPerPositionPaid"`
	TokensOwed            *big.Int `json:"tokensOwed"`
}

func newPosition() *Position {
	return &Position{
		Size:                  new(big.Int),
		RewardPerPositionPaid: new(big.Int),
		TokensOwed:            new(big.Int),
	}
}

// clone returns a deep copy so callers never share memory with ledger state.
func (p *Position) clone() Position {
	return Position{
		Size:                  new(big.Int).Set(p.Size),
		RewardPerPositionPaid: new(big.Int).Set(p.RewardPerPositionPaid),
		TokensOwed:            new(big.Int).Set(p.TokensOwed),
	}
}

// settle checkpoints the owner's position against the global reward
// accumulator: the interest earned by the current size since the last
// interaction is credited to TokensOwed, and the checkpoint advances. Must
// run after accrual and before the owner's size is mutated, so past size is
// credited at the old accumulator delta and future size at the new one.
// Callers hold m.mu.
func (m *Market) settle(owner common.Address) (*Position, error) {
	pos, ok := m.positions[owner]
	if !ok {
		pos = newPosition()
		m.positions[owner] = pos
	}

	delta := new(big.Int).Sub(m.rewardPerPositionStored, pos.RewardPerPositionPaid)
	if delta.Sign() > 0 && pos.Size.Sign() > 0 {
		owed := new(big.Int)
		if err := fullmath.MulDiv(owed, pos.Size, delta, Scale); err != nil {
			return nil, err
		}
		pos.TokensOwed.Add(pos.TokensOwed, owed)
	}
	pos.RewardPerPositionPaid.Set(m.rewardPerPositionStored)
	return pos, nil
}
