package ratemodel

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// scale is the 1e18 fixed-point base shared with the market core.
	scale = uint256.NewInt(1e18)

	ErrKinkOutOfRange = errors.New("kink must not exceed the fixed-point base")
)

// Model is a kinked (jump) borrow-rate curve. Rates are per-annum fractions
// scaled by 1e18:
//
//	u <= Kink:  rate = Base + u * Multiplier / 1e18
//	u >  Kink:  rate = Base + Kink * Multiplier / 1e18 + (u - Kink) * JumpMultiplier / 1e18
//
// The two-slope shape keeps borrowing cheap at low utilization and penalizes
// utilization past the kink, which is what pulls deposits back in. The curve
// is monotonically non-decreasing in u and defined on the whole of [0, 1].
type Model struct {
	Base           *uint256.Int
	Multiplier     *uint256.Int
	JumpMultiplier *uint256.Int
	Kink           *uint256.Int
}

// Default returns the standard parameter set: zero base rate, 4% slope below
// an 80% kink, 75% slope above it.
func Default() *Model {
	return &Model{
		Base:           uint256.NewInt(0),
		Multiplier:     percent(4),
		JumpMultiplier: percent(75),
		Kink:           percent(80),
	}
}

// New builds a model from 1e18-scaled parameters, rejecting a kink past 100%.
func New(base, multiplier, jumpMultiplier, kink *uint256.Int) (*Model, error) {
	if kink.Gt(scale) {
		return nil, ErrKinkOutOfRange
	}
	return &Model{
		Base:           base.Clone(),
		Multiplier:     multiplier.Clone(),
		JumpMultiplier: jumpMultiplier.Clone(),
		Kink:           kink.Clone(),
	}, nil
}

// percent returns n% as a 1e18-scaled fraction.
func percent(n uint64) *uint256.Int {
	p := uint256.NewInt(n)
	p.Mul(p, scale)
	return p.Div(p, uint256.NewInt(100))
}

// Utilization returns borrowed/total as a 1e18-scaled fraction, capped at
// 1e18. A total of zero means an empty market, which reads as zero
// utilization rather than an error.
func (m *Model) Utilization(borrowed, total *big.Int) *big.Int {
	return m.utilization(fromBig(borrowed), fromBig(total)).ToBig()
}

// BorrowRate returns the per-annum borrow rate (1e18-scaled) for the given
// borrowed and total liquidity. Pure and total-order deterministic.
func (m *Model) BorrowRate(borrowed, total *big.Int) *big.Int {
	u := m.utilization(fromBig(borrowed), fromBig(total))

	rate := new(uint256.Int).Set(m.Base)
	if u.Cmp(m.Kink) <= 0 {
		return rate.Add(rate, slopeTerm(u, m.Multiplier)).ToBig()
	}

	rate.Add(rate, slopeTerm(m.Kink, m.Multiplier))
	excess := new(uint256.Int).Sub(u, m.Kink)
	return rate.Add(rate, slopeTerm(excess, m.JumpMultiplier)).ToBig()
}

func (m *Model) utilization(borrowed, total *uint256.Int) *uint256.Int {
	if total.IsZero() || borrowed.IsZero() {
		return new(uint256.Int)
	}
	if !borrowed.Lt(total) {
		return new(uint256.Int).Set(scale)
	}

	// borrowed < total, so the quotient is below the base and cannot overflow.
	u, _ := new(uint256.Int).MulDivOverflow(borrowed, scale, total)
	return u
}

// slopeTerm computes u * slope / 1e18 at full intermediate width.
func slopeTerm(u, slope *uint256.Int) *uint256.Int {
	t, _ := new(uint256.Int).MulDivOverflow(u, slope, scale)
	return t
}

// fromBig converts a non-negative big.Int, clamping anything unrepresentable
// to zero. Market quantities are 256-bit by construction, so the clamp only
// fires on misuse.
func fromBig(v *big.Int) *uint256.Int {
	if v == nil || v.Sign() <= 0 {
		return new(uint256.Int)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int)
	}
	return u
}
