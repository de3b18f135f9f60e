package fullmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBigIntFromString is a helper function to create a big.Int from a string,
// which is necessary for numbers larger than a standard int64.
func newBigIntFromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("failed to set string for big.Int")
	}
	return n
}

var (
	maxUint256Str = "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	q128          = new(big.Int).Lsh(big.NewInt(1), 128)
)

func TestMulDiv(t *testing.T) {
	testCases := []struct {
		name        string
		a           *big.Int
		b           *big.Int
		denominator *big.Int
		expected    *big.Int
		expectedErr error
	}{
		{
			name:        "Exact Division",
			a:           big.NewInt(6),
			b:           big.NewInt(7),
			denominator: big.NewInt(21),
			expected:    big.NewInt(2),
		},
		{
			name:        "Truncates Toward Zero",
			a:           big.NewInt(10),
			b:           big.NewInt(10),
			denominator: big.NewInt(3),
			expected:    big.NewInt(33),
		},
		{
			name:        "Intermediate Product Exceeds 256 Bits",
			a:           new(big.Int).Set(q128),
			b:           new(big.Int).Set(q128),
			denominator: new(big.Int).Set(q128),
			expected:    new(big.Int).Set(q128),
		},
		{
			name:        "Max Value Round Trip",
			a:           newBigIntFromString(maxUint256Str),
			b:           newBigIntFromString(maxUint256Str),
			denominator: newBigIntFromString(maxUint256Str),
			expected:    newBigIntFromString(maxUint256Str),
		},
		{
			name:        "Zero Numerator",
			a:           big.NewInt(0),
			b:           newBigIntFromString(maxUint256Str),
			denominator: big.NewInt(5),
			expected:    big.NewInt(0),
		},
		{
			name:        "Division By Zero",
			a:           big.NewInt(1),
			b:           big.NewInt(1),
			denominator: big.NewInt(0),
			expectedErr: ErrDivisionByZero,
		},
		{
			name:        "Quotient Overflows",
			a:           newBigIntFromString(maxUint256Str),
			b:           big.NewInt(2),
			denominator: big.NewInt(1),
			expectedErr: ErrOverflow,
		},
		{
			name:        "Negative Input Rejected",
			a:           big.NewInt(-1),
			b:           big.NewInt(1),
			denominator: big.NewInt(1),
			expectedErr: ErrNegativeInput,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dest := new(big.Int)
			err := MulDiv(dest, tc.a, tc.b, tc.denominator)

			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tc.expected.Cmp(dest), "expected %s, got %s", tc.expected, dest)
		})
	}
}

func TestMulDivRoundingUp(t *testing.T) {
	testCases := []struct {
		name        string
		a           *big.Int
		b           *big.Int
		denominator *big.Int
		expected    *big.Int
		expectedErr error
	}{
		{
			name:        "Exact Division Does Not Round",
			a:           big.NewInt(6),
			b:           big.NewInt(7),
			denominator: big.NewInt(21),
			expected:    big.NewInt(2),
		},
		{
			name:        "Nonzero Remainder Rounds Up",
			a:           big.NewInt(10),
			b:           big.NewInt(10),
			denominator: big.NewInt(3),
			expected:    big.NewInt(34),
		},
		{
			name:        "One Wei Remainder Rounds Up",
			a:           newBigIntFromString("1000000000000000001"),
			b:           big.NewInt(1),
			denominator: newBigIntFromString("1000000000000000000"),
			expected:    big.NewInt(2),
		},
		{
			name:        "Division By Zero",
			a:           big.NewInt(1),
			b:           big.NewInt(1),
			denominator: big.NewInt(0),
			expectedErr: ErrDivisionByZero,
		},
		{
			name:        "Exact Quotient At Width Limit",
			a:           newBigIntFromString(maxUint256Str),
			b:           big.NewInt(3),
			denominator: big.NewInt(3),
			expected:    newBigIntFromString(maxUint256Str),
		},
		{
			name:        "Quotient Overflows",
			a:           newBigIntFromString(maxUint256Str),
			b:           newBigIntFromString(maxUint256Str),
			denominator: big.NewInt(1),
			expectedErr: ErrOverflow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dest := new(big.Int)
			err := MulDivRoundingUp(dest, tc.a, tc.b, tc.denominator)

			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tc.expected.Cmp(dest), "expected %s, got %s", tc.expected, dest)
		})
	}
}

// The round-up branch must push a quotient of exactly 2^256-1 over the edge
// when the remainder is nonzero.
func TestMulDivRoundingUpOverflowOnRound(t *testing.T) {
	max := newBigIntFromString(maxUint256Str)

	dest := new(big.Int)
	// max * 2 / 2 == max exactly, no rounding, no overflow.
	require.NoError(t, MulDivRoundingUp(dest, max, big.NewInt(2), big.NewInt(2)))
	assert.Equal(t, 0, max.Cmp(dest))

	// (max*3 + 1) / 3 rounds up to max+1, which does not fit.
	a := new(big.Int).Mul(max, big.NewInt(3))
	a.Add(a, big.NewInt(1))
	err := DivRoundingUp(dest, a, big.NewInt(3))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestDivRoundingUp(t *testing.T) {
	dest := new(big.Int)
	require.NoError(t, DivRoundingUp(dest, big.NewInt(7), big.NewInt(2)))
	assert.Equal(t, int64(4), dest.Int64())

	require.NoError(t, DivRoundingUp(dest, big.NewInt(8), big.NewInt(2)))
	assert.Equal(t, int64(4), dest.Int64())

	assert.ErrorIs(t, DivRoundingUp(dest, big.NewInt(1), big.NewInt(0)), ErrDivisionByZero)
}

// Rounding directions must differ by at most one unit and only when the
// division is inexact.
func TestRoundingBias(t *testing.T) {
	for _, denominator := range []int64{1, 3, 7, 1000, 31536000} {
		down := new(big.Int)
		up := new(big.Int)
		a := big.NewInt(987654321)
		b := big.NewInt(123456789)
		d := big.NewInt(denominator)

		require.NoError(t, MulDiv(down, a, b, d))
		require.NoError(t, MulDivRoundingUp(up, a, b, d))

		gap := new(big.Int).Sub(up, down)
		assert.True(t, gap.Sign() >= 0)
		assert.True(t, gap.Cmp(big.NewInt(1)) <= 0, "gap must be at most one unit")

		rem := new(big.Int).Mul(a, b)
		rem.Rem(rem, d)
		if rem.Sign() == 0 {
			assert.Equal(t, 0, gap.Sign(), "exact division must not round")
		} else {
			assert.Equal(t, int64(1), gap.Int64())
		}
	}
}
