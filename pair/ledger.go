package pair

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the payer's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount is returned when an amount is nil or negative.
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
)

// Ledger is an in-memory balance book for the pair's two underlying assets.
// It stands in for the external token contracts the settlement callback moves
// funds on. All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	balance0 map[common.Address]*big.Int
	balance1 map[common.Address]*big.Int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balance0: make(map[common.Address]*big.Int),
		balance1: make(map[common.Address]*big.Int),
	}
}

// Credit0 mints amount of token0 to addr. Used to fund accounts.
func (l *Ledger) Credit0(addr common.Address, amount *big.Int) error {
	return l.credit(l.balance0, addr, amount)
}

// Credit1 mints amount of token1 to addr.
func (l *Ledger) Credit1(addr common.Address, amount *big.Int) error {
	return l.credit(l.balance1, addr, amount)
}

// Transfer0 moves amount of token0 from one account to another.
func (l *Ledger) Transfer0(from, to common.Address, amount *big.Int) error {
	return l.transfer(l.balance0, from, to, amount)
}

// Transfer1 moves amount of token1 from one account to another.
func (l *Ledger) Transfer1(from, to common.Address, amount *big.Int) error {
	return l.transfer(l.balance1, from, to, amount)
}

// Balance0 returns a copy of addr's token0 balance.
func (l *Ledger) Balance0(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceOf(l.balance0, addr)
}

// Balance1 returns a copy of addr's token1 balance.
func (l *Ledger) Balance1(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceOf(l.balance1, addr)
}

func (l *Ledger) balanceOf(book map[common.Address]*big.Int, addr common.Address) *big.Int {
	if b, ok := book[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *Ledger) credit(book map[common.Address]*big.Int, addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := book[addr]
	if !ok {
		b = new(big.Int)
		book[addr] = b
	}
	b.Add(b, amount)
	return nil
}

func (l *Ledger) transfer(book map[common.Address]*big.Int, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBalance, ok := book[from]
	if !ok || fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	toBalance, ok := book[to]
	if !ok {
		toBalance = new(big.Int)
		book[to] = toBalance
	}

	fromBalance.Sub(fromBalance, amount)
	toBalance.Add(toBalance, amount)
	return nil
}
