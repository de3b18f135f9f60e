package market

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/liquidity-market-go/market/fullmath"
)

// secondsPerYear converts per-annum rates to per-second accrual.
const secondsPerYear = 31536000

var (
	// Scale is the 1e18 fixed-point base shared across the module.
	Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// yearScale is the combined denominator secondsPerYear * Scale.
	yearScale = new(big.Int).Mul(big.NewInt(secondsPerYear), Scale)
)

// accrue advances the market to the given instant. Interest owed by
// borrowers since the last update dilutes the share-to-liquidity conversion
// rate: the interest amount is removed from both totalLiquidityBorrowed and
// totalLiquidity, so every outstanding share is redeemable for slightly less
// liquidity, and the same amount is credited to lenders through the
// rewardPerPositionStored accumulator. Calling accrue twice at the same
// instant is a no-op beyond timestamp bookkeeping.
func (m *Market) accrue(now time.Time) error {
	timer := prometheus.NewTimer(m.metrics.accrualDuration.WithLabelValues())
	defer timer.ObserveDuration()

	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := now.Unix() - m.lastUpdate.Unix()
	if elapsed < 0 {
		// Clock went backwards; hold the last update rather than rewind.
		return nil
	}
	if elapsed == 0 || m.totalLiquidityBorrowed.Sign() == 0 {
		m.lastUpdate = now
		return nil
	}

	rate := m.rate.BorrowRate(m.totalLiquidityBorrowed, m.totalLiquidity)

	// interest = borrowed * rate * elapsed / (secondsPerYear * 1e18), truncated.
	rateElapsed := new(big.Int).Mul(rate, big.NewInt(elapsed))
	interest := new(big.Int)
	if err := fullmath.MulDiv(interest, m.totalLiquidityBorrowed, rateElapsed, yearScale); err != nil {
		return err
	}
	// Dilution can never exceed the outstanding principal, and while shares
	// are outstanding at least one wei of liquidity must survive to price
	// them.
	if interest.Cmp(m.totalLiquidityBorrowed) > 0 {
		interest.Set(m.totalLiquidityBorrowed)
	}
	if interest.Cmp(m.totalLiquidity) >= 0 {
		interest.Sub(m.totalLiquidity, big.NewInt(1))
	}

	if interest.Sign() > 0 {
		m.totalLiquidityBorrowed.Sub(m.totalLiquidityBorrowed, interest)
		m.totalLiquidity.Sub(m.totalLiquidity, interest)

		if m.totalPositionSize.Sign() > 0 {
			delta := new(big.Int)
			if err := fullmath.MulDiv(delta, interest, Scale, m.totalPositionSize); err != nil {
				// Roll the dilution back; accrual is all-or-nothing.
				m.totalLiquidityBorrowed.Add(m.totalLiquidityBorrowed, interest)
				m.totalLiquidity.Add(m.totalLiquidity, interest)
				return err
			}
			m.rewardPerPositionStored.Add(m.rewardPerPositionStored, delta)
		}
		m.metrics.accrualsTotal.Inc()
	}

	m.lastUpdate = now
	return nil
}

// Accrue applies interest accrual at the current clock reading without
// performing any other operation. Exposed so idle markets can be kept
// current.
func (m *Market) Accrue() error {
	if !m.latch.CompareAndSwap(false, true) {
		return m.reject("accrue", ErrReentrancy)
	}
	defer m.latch.Store(false)

	if err := m.accrue(m.clock()); err != nil {
		return m.reject("accrue", err)
	}
	m.observe("accrue")
	return nil
}
