package ratemodel

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestUtilization(t *testing.T) {
	m := Default()

	testCases := []struct {
		name     string
		borrowed *big.Int
		total    *big.Int
		expected *big.Int
	}{
		{
			name:     "Empty Market",
			borrowed: big.NewInt(0),
			total:    big.NewInt(0),
			expected: big.NewInt(0),
		},
		{
			name:     "Zero Borrowed",
			borrowed: big.NewInt(0),
			total:    ether(10),
			expected: big.NewInt(0),
		},
		{
			name:     "Half Utilized",
			borrowed: ether(5),
			total:    ether(10),
			expected: ether(1).Div(ether(1), big.NewInt(2)),
		},
		{
			name:     "Fully Utilized",
			borrowed: ether(10),
			total:    ether(10),
			expected: ether(1),
		},
		{
			name:     "Borrowed Above Total Caps At One",
			borrowed: ether(11),
			total:    ether(10),
			expected: ether(1),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u := m.Utilization(tc.borrowed, tc.total)
			assert.Equal(t, 0, tc.expected.Cmp(u), "expected %s, got %s", tc.expected, u)
		})
	}
}

func TestBorrowRate(t *testing.T) {
	m := Default()

	// Below the kink: rate = u * 4%.
	halfRate := m.BorrowRate(ether(1), ether(2))
	expectedHalf := new(big.Int).Div(ether(4), big.NewInt(100))
	expectedHalf.Div(expectedHalf, big.NewInt(2)) // 2%
	assert.Equal(t, 0, expectedHalf.Cmp(halfRate), "expected %s, got %s", expectedHalf, halfRate)

	// At the kink: rate = 0.8 * 4% = 3.2%.
	kinkRate := m.BorrowRate(ether(8), ether(10))
	expectedKink := new(big.Int).Mul(big.NewInt(32), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
	assert.Equal(t, 0, expectedKink.Cmp(kinkRate), "expected %s, got %s", expectedKink, kinkRate)

	// Fully utilized: 3.2% + 0.2 * 75% = 18.2%.
	fullRate := m.BorrowRate(ether(10), ether(10))
	expectedFull := new(big.Int).Mul(big.NewInt(182), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
	assert.Equal(t, 0, expectedFull.Cmp(fullRate), "expected %s, got %s", expectedFull, fullRate)

	// Empty market reads as zero utilization, i.e. the base rate.
	emptyRate := m.BorrowRate(big.NewInt(0), big.NewInt(0))
	assert.Equal(t, 0, m.Base.ToBig().Cmp(emptyRate))
}

// The curve must be monotonically non-decreasing across the whole
// utilization range, including across the kink.
func TestBorrowRateMonotonic(t *testing.T) {
	m := Default()

	total := ether(100)
	prev := big.NewInt(-1)
	for borrowed := int64(0); borrowed <= 100; borrowed++ {
		rate := m.BorrowRate(ether(borrowed), total)
		assert.True(t, rate.Cmp(prev) >= 0, "rate decreased at utilization %d%%", borrowed)
		prev = rate
	}
}

func TestNewRejectsKinkAboveOne(t *testing.T) {
	_, err := New(
		uint256.NewInt(0),
		uint256.NewInt(0),
		uint256.NewInt(0),
		new(uint256.Int).Mul(uint256.NewInt(2), uint256.NewInt(1e18)),
	)
	require.ErrorIs(t, err, ErrKinkOutOfRange)
}

func TestNewClonesParameters(t *testing.T) {
	base := uint256.NewInt(7)
	m, err := New(base, uint256.NewInt(1), uint256.NewInt(2), uint256.NewInt(3))
	require.NoError(t, err)

	base.SetUint64(99)
	assert.Equal(t, uint64(7), m.Base.Uint64(), "model must own its parameter memory")
}
