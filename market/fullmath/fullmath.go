package fullmath

import (
	"errors"
	"math/big"
	"sync"
)

var (
	// maxUint256 is the maximum value representable in the native 256-bit width (2^256 - 1).
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// one is a pre-computed big.Int for the value 1.
	one = big.NewInt(1)

	ErrDivisionByZero = errors.New("denominator must be greater than zero")
	ErrOverflow       = errors.New("quotient overflows 256 bits")
	ErrNegativeInput  = errors.New("inputs must be non-negative")
)

// FullMath holds reusable big.Int objects to avoid memory allocations.
// Instances are managed by a sync.Pool for safe concurrent use.
type FullMath struct {
	product *big.Int
	rem     *big.Int
}

// pool manages a pool of FullMath objects.
var pool = sync.Pool{
	New: func() any {
		return &FullMath{
			product: new(big.Int),
			rem:     new(big.Int),
		}
	},
}

// MulDiv writes floor(a * b / denominator) into dest. The intermediate
// product is computed at full width, so a*b may exceed 256 bits as long as
// the final quotient does not. Returns ErrDivisionByZero when denominator is
// zero and ErrOverflow when the quotient does not fit in 256 bits.
func MulDiv(dest, a, b, denominator *big.Int) error {
	f := pool.Get().(*FullMath)
	defer pool.Put(f)
	return f.mulDiv(dest, a, b, denominator)
}

// MulDivRoundingUp writes ceil(a * b / denominator) into dest. Identical to
// MulDiv except the quotient is rounded toward positive infinity when the
// division leaves a nonzero remainder.
func MulDivRoundingUp(dest, a, b, denominator *big.Int) error {
	f := pool.Get().(*FullMath)
	defer pool.Put(f)
	return f.mulDivRoundingUp(dest, a, b, denominator)
}

// DivRoundingUp writes ceil(a / b) into dest.
func DivRoundingUp(dest, a, b *big.Int) error {
	f := pool.Get().(*FullMath)
	defer pool.Put(f)
	return f.divRoundingUp(dest, a, b)
}

// --- Internal Implementations ---

func (f *FullMath) mulDiv(dest, a, b, denominator *big.Int) error {
	if denominator.Sign() == 0 {
		return ErrDivisionByZero
	}
	if a.Sign() < 0 || b.Sign() < 0 || denominator.Sign() < 0 {
		return ErrNegativeInput
	}

	f.product.Mul(a, b)
	dest.Div(f.product, denominator)

	if dest.Cmp(maxUint256) > 0 {
		return ErrOverflow
	}
	return nil
}

func (f *FullMath) mulDivRoundingUp(dest, a, b, denominator *big.Int) error {
	if denominator.Sign() == 0 {
		return ErrDivisionByZero
	}
	if a.Sign() < 0 || b.Sign() < 0 || denominator.Sign() < 0 {
		return ErrNegativeInput
	}

	f.product.Mul(a, b)
	dest.QuoRem(f.product, denominator, f.rem)
	if f.rem.Sign() > 0 {
		dest.Add(dest, one)
	}

	// The round-up itself can push the quotient past the width limit.
	if dest.Cmp(maxUint256) > 0 {
		return ErrOverflow
	}
	return nil
}

func (f *FullMath) divRoundingUp(dest, a, b *big.Int) error {
	if b.Sign() == 0 {
		return ErrDivisionByZero
	}
	if a.Sign() < 0 || b.Sign() < 0 {
		return ErrNegativeInput
	}

	dest.QuoRem(a, b, f.rem)
	if f.rem.Sign() > 0 {
		dest.Add(dest, one)
	}
	if dest.Cmp(maxUint256) > 0 {
		return ErrOverflow
	}
	return nil
}
