package market

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/liquidity-market-go/market/fullmath"
)

// Reserve0 returns a copy of the token0 reserve backing unborrowed liquidity.
func (m *Market) Reserve0() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.reserve0)
}

// Reserve1 returns a copy of the token1 reserve backing unborrowed liquidity.
func (m *Market) Reserve1() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.reserve1)
}

// TotalLiquidity returns a copy of the liquidity owned by lenders, borrowed
// and unborrowed alike.
func (m *Market) TotalLiquidity() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.totalLiquidity)
}

// TotalLiquidityBorrowed returns a copy of the liquidity currently lent out.
func (m *Market) TotalLiquidityBorrowed() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.totalLiquidityBorrowed)
}

// TotalPositionSize returns a copy of the outstanding lender shares.
func (m *Market) TotalPositionSize() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.totalPositionSize)
}

// RewardPerPositionStored returns a copy of the cumulative interest
// accumulator (1e18-scaled, per unit share).
func (m *Market) RewardPerPositionStored() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.rewardPerPositionStored)
}

// LastUpdate returns the timestamp of the last accrual.
func (m *Market) LastUpdate() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdate
}

// Position returns a copy of the owner's position. Owners never touched
// before read as the zero position.
func (m *Market) Position(owner common.Address) Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pos, ok := m.positions[owner]; ok {
		return pos.clone()
	}
	return *newPosition()
}

// BorrowRate evaluates the market's rate model for the given borrowed and
// total liquidity.
func (m *Market) BorrowRate(borrowed, total *big.Int) *big.Int {
	return m.rate.BorrowRate(borrowed, total)
}

// ConvertShareToLiquidity returns the liquidity the given shares redeem for
// at the current conversion rate, truncated. Zero while no shares exist.
func (m *Market) ConvertShareToLiquidity(shares *big.Int) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	liquidity := new(big.Int)
	if m.totalPositionSize.Sign() == 0 {
		return liquidity, nil
	}
	if err := fullmath.MulDiv(liquidity, shares, m.totalLiquidity, m.totalPositionSize); err != nil {
		return nil, err
	}
	return liquidity, nil
}

// ConvertLiquidityToShare returns the shares the given liquidity corresponds
// to at the current conversion rate, truncated. Zero while the market is
// empty.
func (m *Market) ConvertLiquidityToShare(liquidity *big.Int) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	shares := new(big.Int)
	if m.totalLiquidity.Sign() == 0 {
		return shares, nil
	}
	if err := fullmath.MulDiv(shares, liquidity, m.totalPositionSize, m.totalLiquidity); err != nil {
		return nil, err
	}
	return shares, nil
}

// Utilization reports borrowed/total as a float for observability. Exact
// accounting always goes through the rate model's integer arithmetic.
func (m *Market) Utilization() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.totalLiquidity.Sign() == 0 {
		return 0
	}
	u, _ := new(big.Float).Quo(
		new(big.Float).SetInt(m.totalLiquidityBorrowed),
		new(big.Float).SetInt(m.totalLiquidity),
	).Float64()
	return u
}
