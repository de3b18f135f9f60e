package pair

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/liquidity-market-go/events"
	"github.com/defistate/liquidity-market-go/market/fullmath"
)

var (
	// scale is the 1e18 fixed-point base shared with the market core.
	scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	two  = big.NewInt(2)
	four = big.NewInt(4)

	// ErrInvariant is returned when the post-transfer reserves do not satisfy
	// the bonding-curve invariant, i.e. the asset payment was insufficient for
	// the liquidity requested.
	ErrInvariant = errors.New("bonding curve invariant violated")
	// ErrInsufficientLiquidity is returned when a burn requests more liquidity
	// than the pair holds.
	ErrInsufficientLiquidity = errors.New("insufficient pair liquidity")
	// ErrInvalidLiquidity is returned when a mint or burn requests zero or
	// negative liquidity.
	ErrInvalidLiquidity = errors.New("liquidity must be greater than zero")
	// ErrReentrancy is returned when a settlement callback calls back into the
	// pair before the current operation completed.
	ErrReentrancy = errors.New("reentrant call")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SettlementFunc proves payment of the underlying assets: it must move at
// least amount0/amount1 from payer to the pair's ledger account before
// returning. The data payload is forwarded untouched from the caller.
type SettlementFunc func(ctx context.Context, payer common.Address, amount0, amount1 *big.Int, data []byte) error

// Config holds the pair's dependencies and curve parameters.
type Config struct {
	Logger      Logger
	Emitter     *events.Broadcaster // optional; nil disables events
	Ledger      *Ledger
	Address     common.Address // the pair's reserve account on the ledger
	Token0Scale *big.Int       // 1e18-scaled decimal adjuster for token0
	Token1Scale *big.Int       // 1e18-scaled decimal adjuster for token1
	UpperBound  *big.Int       // 1e18-scaled price bound of the curve
	Settlement  SettlementFunc // optional; defaults to plain ledger transfers
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Token0Scale == nil || c.Token0Scale.Sign() <= 0 {
		return errors.New("config: Token0Scale must be greater than zero")
	}
	if c.Token1Scale == nil || c.Token1Scale.Sign() <= 0 {
		return errors.New("config: Token1Scale must be greater than zero")
	}
	if c.UpperBound == nil || c.UpperBound.Sign() <= 0 {
		return errors.New("config: UpperBound must be greater than zero")
	}
	return nil
}

// Pair holds two-asset reserves backing unborrowed liquidity and settles
// asset movements for the market. The bonding curve it enforces is the
// capped-quadratic invariant
//
//	scale0*1e18 + scale1*upperBound >= scale1^2/4 + upperBound^2
//
// where scale0 and scale1 are the per-liquidity-unit reserves adjusted to
// 1e18 precision. Payment sufficiency for a mint falls out of the invariant
// check; over-payment is accepted and retained as extra reserve.
type Pair struct {
	latch  atomic.Bool
	mu     sync.RWMutex
	logger Logger

	emitter    *events.Broadcaster
	ledger     *Ledger
	address    common.Address
	settlement SettlementFunc

	token0Scale *big.Int
	token1Scale *big.Int
	upperBound  *big.Int

	reserve0       *big.Int
	reserve1       *big.Int
	totalLiquidity *big.Int
}

// New constructs an empty pair from a configuration, returning an error if
// the configuration is invalid.
func New(cfg *Config) (*Pair, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Pair{
		logger:         cfg.Logger,
		emitter:        cfg.Emitter,
		ledger:         cfg.Ledger,
		address:        cfg.Address,
		settlement:     cfg.Settlement,
		token0Scale:    new(big.Int).Set(cfg.Token0Scale),
		token1Scale:    new(big.Int).Set(cfg.Token1Scale),
		upperBound:     new(big.Int).Set(cfg.UpperBound),
		reserve0:       new(big.Int),
		reserve1:       new(big.Int),
		totalLiquidity: new(big.Int),
	}
	if p.settlement == nil {
		p.settlement = func(_ context.Context, payer common.Address, amount0, amount1 *big.Int, _ []byte) error {
			if err := p.ledger.Transfer0(payer, p.address, amount0); err != nil {
				return err
			}
			return p.ledger.Transfer1(payer, p.address, amount1)
		}
	}
	return p, nil
}

// Reserves returns copies of the current reserves.
func (p *Pair) Reserves() (*big.Int, *big.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
}

// TotalLiquidity returns a copy of the liquidity currently backed by reserves.
func (p *Pair) TotalLiquidity() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.totalLiquidity)
}

// Mint pulls amount0/amount1 of the underlying assets from payer via the
// settlement callback, credits the instructed liquidity, and verifies the
// post-transfer reserves satisfy the bonding-curve invariant. It returns the
// asset amounts actually received, which may exceed the amounts requested.
// On invariant failure the pulled assets are returned to payer and no state
// changes.
func (p *Pair) Mint(ctx context.Context, payer common.Address, liquidity, amount0, amount1 *big.Int, data []byte) (*big.Int, *big.Int, error) {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return nil, nil, ErrInvalidLiquidity
	}
	if amount0 == nil || amount0.Sign() < 0 || amount1 == nil || amount1.Sign() < 0 {
		return nil, nil, ErrInvalidAmount
	}

	if !p.latch.CompareAndSwap(false, true) {
		return nil, nil, ErrReentrancy
	}
	defer p.latch.Store(false)

	before0 := p.ledger.Balance0(p.address)
	before1 := p.ledger.Balance1(p.address)

	if err := p.settlement(ctx, payer, amount0, amount1, data); err != nil {
		return nil, nil, fmt.Errorf("settlement: %w", err)
	}

	in0 := new(big.Int).Sub(p.ledger.Balance0(p.address), before0)
	in1 := new(big.Int).Sub(p.ledger.Balance1(p.address), before1)
	if in0.Sign() < 0 || in1.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: settlement reduced pair balances", ErrInvariant)
	}

	newReserve0 := new(big.Int).Add(p.reserve0, in0)
	newReserve1 := new(big.Int).Add(p.reserve1, in1)
	newLiquidity := new(big.Int).Add(p.totalLiquidity, liquidity)

	if !p.invariantHolds(newReserve0, newReserve1, newLiquidity) {
		// Unwind the settlement so a rejected mint leaves no trace.
		if err := p.refund(payer, in0, in1); err != nil {
			p.logger.Error("failed to refund rejected mint", "payer", payer, "error", err)
		}
		return nil, nil, ErrInvariant
	}

	p.mu.Lock()
	p.reserve0.Set(newReserve0)
	p.reserve1.Set(newReserve1)
	p.totalLiquidity.Set(newLiquidity)
	p.mu.Unlock()

	p.logger.Debug("pair mint", "liquidity", liquidity, "amount0In", in0, "amount1In", in1)
	if p.emitter != nil {
		p.emitter.Emit(events.Mint{
			Amount0In: new(big.Int).Set(in0),
			Amount1In: new(big.Int).Set(in1),
			Liquidity: new(big.Int).Set(liquidity),
		})
	}
	return in0, in1, nil
}

// Burn releases the proportional share of both reserves to the recipient,
// decreasing the pair's liquidity. Amounts are truncated in the pair's favor.
func (p *Pair) Burn(ctx context.Context, to common.Address, liquidity *big.Int) (*big.Int, *big.Int, error) {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return nil, nil, ErrInvalidLiquidity
	}

	if !p.latch.CompareAndSwap(false, true) {
		return nil, nil, ErrReentrancy
	}
	defer p.latch.Store(false)

	if liquidity.Cmp(p.totalLiquidity) > 0 {
		return nil, nil, ErrInsufficientLiquidity
	}

	amount0 := new(big.Int)
	amount1 := new(big.Int)
	if err := fullmath.MulDiv(amount0, p.reserve0, liquidity, p.totalLiquidity); err != nil {
		return nil, nil, err
	}
	if err := fullmath.MulDiv(amount1, p.reserve1, liquidity, p.totalLiquidity); err != nil {
		return nil, nil, err
	}

	if err := p.ledger.Transfer0(p.address, to, amount0); err != nil {
		return nil, nil, err
	}
	if err := p.ledger.Transfer1(p.address, to, amount1); err != nil {
		// Put the first leg back; a burn either pays out both assets or none.
		if refundErr := p.ledger.Transfer0(to, p.address, amount0); refundErr != nil {
			p.logger.Error("failed to unwind partial burn", "to", to, "error", refundErr)
		}
		return nil, nil, err
	}

	p.mu.Lock()
	p.reserve0.Sub(p.reserve0, amount0)
	p.reserve1.Sub(p.reserve1, amount1)
	p.totalLiquidity.Sub(p.totalLiquidity, liquidity)
	p.mu.Unlock()

	p.logger.Debug("pair burn", "liquidity", liquidity, "amount0Out", amount0, "amount1Out", amount1, "to", to)
	if p.emitter != nil {
		p.emitter.Emit(events.Burn{
			Amount0Out: new(big.Int).Set(amount0),
			Amount1Out: new(big.Int).Set(amount1),
			Liquidity:  new(big.Int).Set(liquidity),
			To:         to,
		})
	}
	return amount0, amount1, nil
}

// invariantHolds checks the bonding curve at the given reserves and
// liquidity. An empty pair must hold no reserves.
func (p *Pair) invariantHolds(reserve0, reserve1, liquidity *big.Int) bool {
	if liquidity.Sign() == 0 {
		return reserve0.Sign() == 0 && reserve1.Sign() == 0
	}

	scale0 := new(big.Int)
	scale1 := new(big.Int)
	if err := fullmath.MulDiv(scale0, reserve0, p.token0Scale, liquidity); err != nil {
		return false
	}
	if err := fullmath.MulDiv(scale1, reserve1, p.token1Scale, liquidity); err != nil {
		return false
	}

	// The curve is only defined up to a price of 2*upperBound.
	if scale1.Cmp(new(big.Int).Mul(two, p.upperBound)) > 0 {
		return false
	}

	// scale0*1e18 + scale1*upperBound >= scale1^2/4 + upperBound^2
	// The quarter term rounds up: required backing is never understated.
	lhs := new(big.Int).Mul(scale0, scale)
	lhs.Add(lhs, new(big.Int).Mul(scale1, p.upperBound))

	rhs := new(big.Int).Mul(scale1, scale1)
	if err := fullmath.DivRoundingUp(rhs, rhs, four); err != nil {
		return false
	}
	rhs.Add(rhs, new(big.Int).Mul(p.upperBound, p.upperBound))

	return lhs.Cmp(rhs) >= 0
}

func (p *Pair) refund(payer common.Address, amount0, amount1 *big.Int) error {
	if err := p.ledger.Transfer0(p.address, payer, amount0); err != nil {
		return err
	}
	return p.ledger.Transfer1(p.address, payer, amount1)
}
