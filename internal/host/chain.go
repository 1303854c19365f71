package host

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
)

// ErrInsufficientBalance is returned when a native transfer exceeds the
// sender's balance.
var ErrInsufficientBalance = errors.New("insufficient balance for transfer")

// Msg is the call context seen by the callee: who called and how much native
// value was credited to the callee for this call.
type Msg struct {
	Sender common.Address
	Value  *big.Int
}

// Event is anything emitted during a transaction and delivered to
// subscribers after commit.
type Event interface {
	EventName() string
}

// Receipt describes a committed transaction. Balances holds the post-state
// balance of every account the transaction wrote.
type Receipt struct {
	TxID     uuid.UUID
	Height   uint64
	Time     uint64
	Origin   common.Address
	Events   []Event
	Balances map[common.Address]*big.Int
}

// Subscriber is notified after each commit, while the chain lock is still
// held. Subscribers must not execute transactions.
type Subscriber func(ctx context.Context, receipt Receipt)

// Option configures a Chain.
type Option func(*Chain)

// WithClock overrides the wall clock used for block timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Chain) { c.clock = clock }
}

// WithLogger sets the chain logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Chain) { c.logger = logger }
}

// WithHeight sets the height of the next block.
func WithHeight(height uint64) Option {
	return func(c *Chain) { c.height = height }
}

// Chain serialises transactions and owns native balances.
type Chain struct {
	mu       deadlock.RWMutex
	balances map[common.Address]*big.Int
	height   uint64
	clock    func() time.Time
	logger   *zap.SugaredLogger
	subs     []Subscriber
}

// NewChain returns an empty chain at height 1.
func NewChain(opts ...Option) *Chain {
	c := &Chain{
		balances: make(map[common.Address]*big.Int),
		height:   1,
		clock:    time.Now,
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn for commit notifications.
func (c *Chain) Subscribe(fn Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Fund credits amount to addr outside of any transaction (genesis allocation).
func (c *Chain) Fund(addr common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bal := c.balanceLocked(addr)
	c.balances[addr] = new(big.Int).Add(bal, amount)
}

// Balance returns the committed native balance of addr.
func (c *Chain) Balance(addr common.Address) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(big.Int).Set(c.balanceLocked(addr))
}

// Restore sets the next height and the balance of every account in balances
// outside of any transaction. It is used when loading persisted state.
func (c *Chain) Restore(height uint64, balances map[common.Address]*big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height > c.height {
		c.height = height
	}
	for addr, bal := range balances {
		c.balances[addr] = new(big.Int).Set(bal)
	}
}

// Height returns the height the next committed transaction will get.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

func (c *Chain) balanceLocked(addr common.Address) *big.Int {
	if bal, ok := c.balances[addr]; ok {
		return bal
	}
	return new(big.Int)
}

// Execute runs fn as one atomic transaction sent by origin to the account
// `to`, crediting value to `to` before fn runs. If fn returns an error every
// journaled change is reverted and no event is delivered. A panic in fn is
// reverted the same way before it propagates.
func (c *Chain) Execute(ctx context.Context, origin, to common.Address, value *big.Int, fn func(tx *Tx, msg Msg) error) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return Receipt{}, fmt.Errorf("negative value %s", value)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.newTx(ctx, origin)
	logger := c.logger.With("tx", tx.id, "height", tx.height)

	err := revertOnPanic(tx, func() error {
		if err := tx.Transfer(origin, to, value); err != nil {
			return err
		}
		return fn(tx, Msg{Sender: origin, Value: new(big.Int).Set(value)})
	})
	if err != nil {
		tx.RevertToSnapshot(0)
		logger.Debugw("transaction reverted", "origin", origin, "error", err)
		return Receipt{}, err
	}

	receipt := Receipt{
		TxID:     tx.id,
		Height:   tx.height,
		Time:     tx.time,
		Origin:   origin,
		Events:   tx.events,
		Balances: tx.touched(),
	}
	c.height++
	logger.Debugw("transaction committed", "origin", origin, "events", len(tx.events))

	for _, sub := range c.subs {
		sub(ctx, receipt)
	}
	return receipt, nil
}

// View runs fn against the current state under the chain lock. Any mutation
// fn makes is discarded.
func (c *Chain) View(fn func(tx *Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.newTx(context.Background(), common.Address{})
	defer tx.RevertToSnapshot(0)
	return revertOnPanic(tx, func() error { return fn(tx) })
}

// revertOnPanic runs fn and undoes everything tx journaled if fn panics,
// then re-panics with the same value.
func revertOnPanic(tx *Tx, fn func() error) error {
	defer func() {
		if p := recover(); p != nil {
			tx.RevertToSnapshot(0)
			panic(p)
		}
	}()
	return fn()
}

func (c *Chain) newTx(ctx context.Context, origin common.Address) *Tx {
	return &Tx{
		ctx:    ctx,
		id:     uuid.New(),
		chain:  c,
		origin: origin,
		height: c.height,
		time:   uint64(c.clock().Unix()),
		dirty:  make(map[common.Address]struct{}),
	}
}
