package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/liquidity-market-go/events"
	"github.com/defistate/liquidity-market-go/market/fullmath"
)

var (
	// ErrInvalidAmount is returned when an operation is requested with a nil,
	// zero, or negative amount.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	// ErrInsufficientPosition is returned when a withdrawal or repayment
	// exceeds the caller's recorded claim.
	ErrInsufficientPosition = errors.New("insufficient position")
	// ErrCompleteUtilization is returned when the requested liquidity exceeds
	// what is physically unborrowed.
	ErrCompleteUtilization = errors.New("complete utilization")
	// ErrReentrancy is returned when a settlement callback re-enters the
	// market before the current operation completed.
	ErrReentrancy = errors.New("reentrant call")
	// ErrBrokenInvariant indicates the post-operation accounting check failed.
	// It is a bug, not a user input error; the operation's mutations are not
	// committed.
	ErrBrokenInvariant = errors.New("market invariant broken")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RateModel maps borrowed and total liquidity to a per-annum borrow rate
// scaled by 1e18. Implementations must be pure, monotonically non-decreasing
// in utilization, and defined for the whole utilization range [0, 1].
type RateModel interface {
	BorrowRate(borrowed, total *big.Int) *big.Int
}

// Pair settles underlying asset movements for the market and enforces its own
// bonding-curve invariant. Mint pulls assets from payer against the
// instructed liquidity and returns the amounts actually received; Burn
// releases the proportional assets to the recipient. TotalLiquidity reports
// the liquidity currently backed by the pair's reserves.
type Pair interface {
	Mint(ctx context.Context, payer common.Address, liquidity, amount0, amount1 *big.Int, data []byte) (amount0In, amount1In *big.Int, err error)
	Burn(ctx context.Context, to common.Address, liquidity *big.Int) (amount0Out, amount1Out *big.Int, err error)
	TotalLiquidity() *big.Int
}

// Clock supplies the current time. Injected so accrual is deterministic in
// tests and under replay.
type Clock func() time.Time

// CollateralFunc is an optional hook invoked when liquidity is borrowed or
// repaid, letting the outer system post or release borrower collateral. The
// data payload is forwarded untouched from the caller.
type CollateralFunc func(ctx context.Context, owner common.Address, liquidity *big.Int, data []byte) error

// Config holds the market's dependencies.
type Config struct {
	Logger     Logger
	Registry   prometheus.Registerer
	Emitter    *events.Broadcaster // optional; nil disables events
	Clock      Clock               // optional; defaults to time.Now
	Rate       RateModel
	Pair       Pair
	Collateral CollateralFunc // optional
}

// validate checks if the configuration is valid, ensuring required
// dependencies are present.
func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Rate == nil {
		return errors.New("config: Rate is required")
	}
	if c.Pair == nil {
		return errors.New("config: Pair is required")
	}
	return nil
}

// Market is the position-accounting and interest-accrual core of one lending
// market over an AMM pair. Lenders deposit liquidity for shares, borrowers
// draw liquidity out against collateral, and interest continuously dilutes
// the share-to-liquidity conversion rate in the lenders' collective favor.
//
// Operations are admitted one at a time: a second call made while one is in
// flight, including a settlement callback calling back in, is rejected with
// ErrReentrancy rather than queued. Callers needing queueing serialize
// externally, mirroring the ordered log the accounting model assumes.
type Market struct {
	latch atomic.Bool
	mu    sync.RWMutex

	logger     Logger
	metrics    *Metrics
	emitter    *events.Broadcaster
	clock      Clock
	rate       RateModel
	pair       Pair
	collateral CollateralFunc

	reserve0                *big.Int
	reserve1                *big.Int
	totalLiquidity          *big.Int
	totalLiquidityBorrowed  *big.Int
	totalPositionSize       *big.Int
	rewardPerPositionStored *big.Int
	lastUpdate              time.Time

	positions map[common.Address]*Position
}

// New constructs an empty market from a configuration, returning an error if
// the configuration is invalid.
func New(cfg *Config) (*Market, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Market{
		logger:                  cfg.Logger,
		metrics:                 NewMetrics(cfg.Registry),
		emitter:                 cfg.Emitter,
		clock:                   clock,
		rate:                    cfg.Rate,
		pair:                    cfg.Pair,
		collateral:              cfg.Collateral,
		reserve0:                new(big.Int),
		reserve1:                new(big.Int),
		totalLiquidity:          new(big.Int),
		totalLiquidityBorrowed:  new(big.Int),
		totalPositionSize:       new(big.Int),
		rewardPerPositionStored: new(big.Int),
		lastUpdate:              clock(),
		positions:               make(map[common.Address]*Position),
	}, nil
}

// Deposit supplies liquidity to the market, minting shares to the recipient.
// The sender pays amount0/amount1 of the underlying assets through the pair's
// settlement protocol; paying more than required is accepted and simply
// retained as extra reserve. Shares are derived from the liquidity amount
// only, truncated so the pool is never over-minted. Returns the shares
// minted.
func (m *Market) Deposit(ctx context.Context, sender, to common.Address, liquidity, amount0, amount1 *big.Int, data []byte) (*big.Int, error) {
	if err := validateAmount(liquidity); err != nil {
		return nil, m.reject("deposit", err)
	}
	if amount0 == nil || amount0.Sign() < 0 || amount1 == nil || amount1.Sign() < 0 {
		return nil, m.reject("deposit", ErrInvalidAmount)
	}
	if !m.latch.CompareAndSwap(false, true) {
		return nil, m.reject("deposit", ErrReentrancy)
	}
	defer m.latch.Store(false)

	if err := m.accrue(m.clock()); err != nil {
		return nil, m.reject("deposit", err)
	}

	m.mu.Lock()
	pos, err := m.settle(to)
	if err != nil {
		m.mu.Unlock()
		return nil, m.reject("deposit", err)
	}

	shares := new(big.Int)
	if m.totalPositionSize.Sign() == 0 {
		shares.Set(liquidity)
	} else if err := fullmath.MulDiv(shares, liquidity, m.totalPositionSize, m.totalLiquidity); err != nil {
		m.mu.Unlock()
		return nil, m.reject("deposit", err)
	}
	// Too small to mint a share.
	if shares.Sign() == 0 {
		m.mu.Unlock()
		return nil, m.reject("deposit", ErrInvalidAmount)
	}
	m.mu.Unlock()

	in0, in1, err := m.pair.Mint(ctx, sender, liquidity, amount0, amount1, data)
	if err != nil {
		return nil, m.reject("deposit", err)
	}

	m.mu.Lock()
	newReserve0 := new(big.Int).Add(m.reserve0, in0)
	newReserve1 := new(big.Int).Add(m.reserve1, in1)
	newTotalLiquidity := new(big.Int).Add(m.totalLiquidity, liquidity)
	newTotalPositionSize := new(big.Int).Add(m.totalPositionSize, shares)

	if err := m.checkInvariant(newReserve0, newReserve1, newTotalLiquidity, m.totalLiquidityBorrowed, newTotalPositionSize); err != nil {
		m.mu.Unlock()
		return nil, m.reject("deposit", err)
	}

	m.reserve0.Set(newReserve0)
	m.reserve1.Set(newReserve1)
	m.totalLiquidity.Set(newTotalLiquidity)
	m.totalPositionSize.Set(newTotalPositionSize)
	pos.Size.Add(pos.Size, shares)
	m.mu.Unlock()

	m.logger.Debug("deposit", "sender", sender, "to", to, "liquidity", liquidity, "shares", shares)
	m.observe("deposit")
	if m.emitter != nil {
		m.emitter.Emit(events.Deposit{
			Sender:    sender,
			Shares:    new(big.Int).Set(shares),
			Liquidity: new(big.Int).Set(liquidity),
			To:        to,
		})
	}
	return shares, nil
}

// Withdraw redeems shares from the caller's position, releasing the
// corresponding liquidity's assets to the recipient. The liquidity debited is
// rounded up against the withdrawer, mirroring the truncation applied when
// shares were minted. Returns the asset amounts released.
func (m *Market) Withdraw(ctx context.Context, from, to common.Address, shares *big.Int) (*big.Int, *big.Int, error) {
	if err := validateAmount(shares); err != nil {
		return nil, nil, m.reject("withdraw", err)
	}
	if !m.latch.CompareAndSwap(false, true) {
		return nil, nil, m.reject("withdraw", ErrReentrancy)
	}
	defer m.latch.Store(false)

	if err := m.accrue(m.clock()); err != nil {
		return nil, nil, m.reject("withdraw", err)
	}

	m.mu.Lock()
	pos, err := m.settle(from)
	if err != nil {
		m.mu.Unlock()
		return nil, nil, m.reject("withdraw", err)
	}
	if shares.Cmp(pos.Size) > 0 {
		m.mu.Unlock()
		return nil, nil, m.reject("withdraw", ErrInsufficientPosition)
	}

	liquidity := new(big.Int)
	if err := fullmath.MulDivRoundingUp(liquidity, shares, m.totalLiquidity, m.totalPositionSize); err != nil {
		m.mu.Unlock()
		return nil, nil, m.reject("withdraw", err)
	}

	unborrowed := new(big.Int).Sub(m.totalLiquidity, m.totalLiquidityBorrowed)
	if liquidity.Cmp(unborrowed) > 0 {
		m.mu.Unlock()
		return nil, nil, m.reject("withdraw", ErrCompleteUtilization)
	}
	m.mu.Unlock()

	amount0, amount1, err := m.pair.Burn(ctx, to, liquidity)
	if err != nil {
		return nil, nil, m.reject("withdraw", err)
	}

	m.mu.Lock()
	newReserve0 := new(big.Int).Sub(m.reserve0, amount0)
	newReserve1 := new(big.Int).Sub(m.reserve1, amount1)
	newTotalLiquidity := new(big.Int).Sub(m.totalLiquidity, liquidity)
	newTotalPositionSize := new(big.Int).Sub(m.totalPositionSize, shares)

	if err := m.checkInvariant(newReserve0, newReserve1, newTotalLiquidity, m.totalLiquidityBorrowed, newTotalPositionSize); err != nil {
		m.mu.Unlock()
		return nil, nil, m.reject("withdraw", err)
	}

	m.reserve0.Set(newReserve0)
	m.reserve1.Set(newReserve1)
	m.totalLiquidity.Set(newTotalLiquidity)
	m.totalPositionSize.Set(newTotalPositionSize)
	pos.Size.Sub(pos.Size, shares)
	m.mu.Unlock()

	m.logger.Debug("withdraw", "from", from, "to", to, "shares", shares, "liquidity", liquidity)
	m.observe("withdraw")
	if m.emitter != nil {
		m.emitter.Emit(events.Withdraw{
			Sender:    from,
			Shares:    new(big.Int).Set(shares),
			Liquidity: new(big.Int).Set(liquidity),
			To:        to,
		})
	}
	return amount0, amount1, nil
}

// Mint borrows liquidity: the proportional share of both reserves is released
// to the borrower through the pair's burn path, funded by collateral posted
// via the optional collateral hook. Returns the asset amounts released.
func (m *Market) Mint(ctx context.Context, to common.Address, liquidity *big.Int, data []byte) (*big.Int, *big.Int, error) {
	if err := validateAmount(liquidity); err != nil {
		return nil, nil, m.reject("mint", err)
	}
	if !m.latch.CompareAndSwap(false, true) {
		return nil, nil, m.reject("mint", ErrReentrancy)
	}
	defer m.latch.Store(false)

	if err := m.accrue(m.clock()); err != nil {
		return nil, nil, m.reject("mint", err)
	}

	m.mu.Lock()
	if _, err := m.settle(to); err != nil {
		m.mu.Unlock()
		return nil, nil, m.reject("mint", err)
	}
	unborrowed := new(big.Int).Sub(m.totalLiquidity, m.totalLiquidityBorrowed)
	if liquidity.Cmp(unborrowed) > 0 {
		m.mu.Unlock()
		return nil, nil, m.reject("mint", ErrCompleteUtilization)
	}
	m.mu.Unlock()

	if m.collateral != nil {
		if err := m.collateral(ctx, to, liquidity, data); err != nil {
			return nil, nil, m.reject("mint", fmt.Errorf("collateral: %w", err))
		}
	}

	amount0, amount1, err := m.pair.Burn(ctx, to, liquidity)
	if err != nil {
		return nil, nil, m.reject("mint", err)
	}

	m.mu.Lock()
	newReserve0 := new(big.Int).Sub(m.reserve0, amount0)
	newReserve1 := new(big.Int).Sub(m.reserve1, amount1)
	newBorrowed := new(big.Int).Add(m.totalLiquidityBorrowed, liquidity)

	if err := m.checkInvariant(newReserve0, newReserve1, m.totalLiquidity, newBorrowed, m.totalPositionSize); err != nil {
		m.mu.Unlock()
		return nil, nil, m.reject("mint", err)
	}

	m.reserve0.Set(newReserve0)
	m.reserve1.Set(newReserve1)
	m.totalLiquidityBorrowed.Set(newBorrowed)
	m.mu.Unlock()

	m.logger.Debug("mint", "to", to, "liquidity", liquidity, "amount0", amount0, "amount1", amount1)
	m.observe("mint")
	return amount0, amount1, nil
}

// Burn repays borrowed liquidity. The payer settles amount0/amount1 of the
// underlying assets through the pair's mint protocol before the repayment
// finalizes; collateral release is the outer system's concern via the
// collateral hook.
func (m *Market) Burn(ctx context.Context, payer common.Address, liquidity, amount0, amount1 *big.Int, data []byte) error {
	if err := validateAmount(liquidity); err != nil {
		return m.reject("burn", err)
	}
	if amount0 == nil || amount0.Sign() < 0 || amount1 == nil || amount1.Sign() < 0 {
		return m.reject("burn", ErrInvalidAmount)
	}
	if !m.latch.CompareAndSwap(false, true) {
		return m.reject("burn", ErrReentrancy)
	}
	defer m.latch.Store(false)

	if err := m.accrue(m.clock()); err != nil {
		return m.reject("burn", err)
	}

	m.mu.Lock()
	if _, err := m.settle(payer); err != nil {
		m.mu.Unlock()
		return m.reject("burn", err)
	}
	if liquidity.Cmp(m.totalLiquidityBorrowed) > 0 {
		m.mu.Unlock()
		return m.reject("burn", ErrInsufficientPosition)
	}
	m.mu.Unlock()

	if m.collateral != nil {
		if err := m.collateral(ctx, payer, liquidity, data); err != nil {
			return m.reject("burn", fmt.Errorf("collateral: %w", err))
		}
	}

	in0, in1, err := m.pair.Mint(ctx, payer, liquidity, amount0, amount1, data)
	if err != nil {
		return m.reject("burn", err)
	}

	m.mu.Lock()
	newReserve0 := new(big.Int).Add(m.reserve0, in0)
	newReserve1 := new(big.Int).Add(m.reserve1, in1)
	newBorrowed := new(big.Int).Sub(m.totalLiquidityBorrowed, liquidity)

	if err := m.checkInvariant(newReserve0, newReserve1, m.totalLiquidity, newBorrowed, m.totalPositionSize); err != nil {
		m.mu.Unlock()
		return m.reject("burn", err)
	}

	m.reserve0.Set(newReserve0)
	m.reserve1.Set(newReserve1)
	m.totalLiquidityBorrowed.Set(newBorrowed)
	m.mu.Unlock()

	m.logger.Debug("burn", "payer", payer, "liquidity", liquidity, "amount0In", in0, "amount1In", in1)
	m.observe("burn")
	return nil
}

// Collect claims interest credited to the caller's position, up to the amount
// requested. The accounting credit is cleared here; the asset-side payout of
// the collected interest is performed by the outer system. Returns the amount
// collected.
func (m *Market) Collect(ctx context.Context, from, to common.Address, amountRequested *big.Int) (*big.Int, error) {
	if err := validateAmount(amountRequested); err != nil {
		return nil, m.reject("collect", err)
	}
	if !m.latch.CompareAndSwap(false, true) {
		return nil, m.reject("collect", ErrReentrancy)
	}
	defer m.latch.Store(false)

	if err := m.accrue(m.clock()); err != nil {
		return nil, m.reject("collect", err)
	}

	m.mu.Lock()
	pos, err := m.settle(from)
	if err != nil {
		m.mu.Unlock()
		return nil, m.reject("collect", err)
	}

	amount := new(big.Int).Set(amountRequested)
	if amount.Cmp(pos.TokensOwed) > 0 {
		amount.Set(pos.TokensOwed)
	}
	pos.TokensOwed.Sub(pos.TokensOwed, amount)
	m.mu.Unlock()

	m.logger.Debug("collect", "from", from, "to", to, "amount", amount)
	m.observe("collect")
	if m.emitter != nil {
		m.emitter.Emit(events.Collect{
			Sender: from,
			To:     to,
			Amount: new(big.Int).Set(amount),
		})
	}
	return amount, nil
}

// checkInvariant re-validates the market's conservation rules against the
// candidate post-operation state. A violation indicates a bug; the caller
// must not commit.
func (m *Market) checkInvariant(reserve0, reserve1, totalLiquidity, borrowed, totalPositionSize *big.Int) error {
	if reserve0.Sign() < 0 || reserve1.Sign() < 0 || totalLiquidity.Sign() < 0 || borrowed.Sign() < 0 || totalPositionSize.Sign() < 0 {
		return fmt.Errorf("%w: negative balance", ErrBrokenInvariant)
	}
	if borrowed.Cmp(totalLiquidity) > 0 {
		return fmt.Errorf("%w: borrowed %s exceeds total liquidity %s", ErrBrokenInvariant, borrowed, totalLiquidity)
	}
	if (totalPositionSize.Sign() == 0) != (totalLiquidity.Sign() == 0) {
		return fmt.Errorf("%w: position size %s and liquidity %s must be zero together", ErrBrokenInvariant, totalPositionSize, totalLiquidity)
	}

	unborrowed := new(big.Int).Sub(totalLiquidity, borrowed)
	if backed := m.pair.TotalLiquidity(); unborrowed.Cmp(backed) != 0 {
		return fmt.Errorf("%w: unborrowed liquidity %s does not match pair backing %s", ErrBrokenInvariant, unborrowed, backed)
	}
	return nil
}

func (m *Market) reject(op string, err error) error {
	m.metrics.operationsTotal.WithLabelValues(op, "error").Inc()
	return err
}

func (m *Market) observe(op string) {
	m.metrics.operationsTotal.WithLabelValues(op, "ok").Inc()
	m.metrics.setUtilization(m.Utilization())
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
