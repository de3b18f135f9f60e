package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Event is implemented by every observable market and pair event.
type Event interface {
	Name() string
}

// Deposit is emitted by the market when a lender supplies liquidity.
// Sender and To are indexed for downstream consumers.
type Deposit struct {
	Sender    common.Address `json:"sender"`
	Shares    *big.Int       `json:"shares"`
	Liquidity *big.Int       `json:"liquidity"`
	To        common.Address `json:"to"`
}

// Withdraw is emitted by the market when a lender redeems shares.
// Sender and To are indexed.
type Withdraw struct {
	Sender    common.Address `json:"sender"`
	Shares    *big.Int       `json:"shares"`
	Liquidity *big.Int       `json:"liquidity"`
	To        common.Address `json:"to"`
}

// Collect is emitted by the market when accrued interest credit is claimed.
type Collect struct {
	Sender common.Address `json:"sender"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

// Mint is emitted by the pair when underlying assets are pulled in against
// newly credited liquidity. No fields are indexed.
type Mint struct {
	Amount0In *big.Int `json:"amount0In"`
	Amount1In *big.Int `json:"amount1In"`
	Liquidity *big.Int `json:"liquidity"`
}

// Burn is emitted by the pair when liquidity is released back into the
// underlying assets. To is indexed.
type Burn struct {
	Amount0Out *big.Int       `json:"amount0Out"`
	Amount1Out *big.Int       `json:"amount1Out"`
	Liquidity  *big.Int       `json:"liquidity"`
	To         common.Address `json:"to"`
}

func (Deposit) Name() string  { return "Deposit" }
func (Withdraw) Name() string { return "Withdraw" }
func (Collect) Name() string  { return "Collect" }
func (Mint) Name() string     { return "Mint" }
func (Burn) Name() string     { return "Burn" }

// Broadcaster fans committed events out to a single buffered consumer
// channel. Emission never blocks the operation that produced the event: when
// the consumer falls behind, the event is dropped and logged.
type Broadcaster struct {
	ch     chan Event
	logger Logger
}

// NewBroadcaster creates a broadcaster with the given buffer size.
func NewBroadcaster(logger Logger, bufferSize uint) *Broadcaster {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Broadcaster{
		ch:     make(chan Event, bufferSize),
		logger: logger,
	}
}

// Events returns the read-only consumer channel.
func (b *Broadcaster) Events() <-chan Event {
	return b.ch
}

// Emit publishes an event without blocking.
func (b *Broadcaster) Emit(e Event) {
	select {
	case b.ch <- e:
	default:
		if b.logger != nil {
			b.logger.Warn("event buffer full, dropping event", "event", e.Name())
		}
	}
}
