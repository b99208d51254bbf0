package exchange

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"vela/domain/ledger"
	"vela/domain/orderbook"
	"vela/engine"
	"vela/events"
)

var ErrPairNotEmpty = errors.New("exchange: trading pair still has resting orders")

// BookSnapshot is a consistent top-of-book view. Seq is the pair's sequence
// number at the moment the view was taken.
type BookSnapshot struct {
	Pair string
	Seq  uint64
	Bids []orderbook.LevelView
	Asks []orderbook.LevelView
}

// Option tweaks gateway-wide engine settings.
type Option func(*Gateway)

// WithSelfTradePolicy sets the self-trade prevention policy for all pairs.
func WithSelfTradePolicy(p engine.STPPolicy) Option {
	return func(g *Gateway) { g.stp = p }
}

// WithFees installs the fee hook applied to every trade.
func WithFees(f engine.FeeFunc) Option {
	return func(g *Gateway) { g.fees = f }
}

// Gateway is the public façade: it routes commands by trading pair to the
// owning engine and carries the admin operations that change the pair set.
// Pairs run independently; nothing here blocks one pair on another.
type Gateway struct {
	mu      sync.RWMutex
	reg     *Registry
	led     *ledger.Ledger
	sink    events.Sink
	stp     engine.STPPolicy
	fees    engine.FeeFunc
	engines map[string]*engine.Engine
}

// NewGateway builds one engine per enabled pair already in the registry.
func NewGateway(reg *Registry, led *ledger.Ledger, sink events.Sink, opts ...Option) *Gateway {
	g := &Gateway{
		reg:     reg,
		led:     led,
		sink:    sink,
		engines: make(map[string]*engine.Engine),
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, spec := range reg.List() {
		if spec.Enabled {
			g.engines[spec.Symbol] = g.newEngine(spec)
		}
	}
	return g
}

func (g *Gateway) newEngine(spec PairSpec) *engine.Engine {
	return engine.New(engine.Config{
		Pair:                 spec.Symbol,
		Base:                 spec.Base,
		Quote:                spec.Quote,
		STP:                  g.stp,
		Fees:                 g.fees,
		BaseUnitsPerLot:      spec.BaseUnitsPerLot,
		QuoteUnitsPerTickLot: spec.QuoteUnitsPerTickLot,
	}, g.led, g.sink)
}

func (g *Gateway) engine(pair string) (*engine.Engine, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.engines[pair]
	if !ok {
		return nil, ErrUnknownPair
	}
	return e, nil
}

// PlaceOrder routes an order to its pair's engine.
func (g *Gateway) PlaceOrder(pair string, req engine.PlaceRequest) (*orderbook.Order, []*events.Trade, error) {
	e, err := g.engine(pair)
	if err != nil {
		return nil, nil, err
	}
	return e.PlaceOrder(req)
}

// CancelOrder cancels a resting order on a pair.
func (g *Gateway) CancelOrder(pair string, orderID uint64) (*orderbook.Order, error) {
	e, err := g.engine(pair)
	if err != nil {
		return nil, err
	}
	return e.Cancel(orderID)
}

// OrderBookSnapshot returns up to depth levels per side.
func (g *Gateway) OrderBookSnapshot(pair string, depth int) (*BookSnapshot, error) {
	e, err := g.engine(pair)
	if err != nil {
		return nil, err
	}
	bids, asks, seq := e.Snapshot(depth)
	return &BookSnapshot{Pair: pair, Seq: seq, Bids: bids, Asks: asks}, nil
}

// TradeHistory returns up to limit recent trades, oldest first.
func (g *Gateway) TradeHistory(pair string, limit int) ([]*events.Trade, error) {
	e, err := g.engine(pair)
	if err != nil {
		return nil, err
	}
	return e.Trades(limit), nil
}

// Balance reads a user's entry for one asset.
func (g *Gateway) Balance(userID, asset string) ledger.Entry {
	return g.led.Balance(userID, asset)
}

// UserBalances collects a user's entries across all assets.
func (g *Gateway) UserBalances(userID string) map[string]ledger.Entry {
	out := make(map[string]ledger.Entry)
	for asset, users := range g.led.Entries() {
		if e, ok := users[userID]; ok {
			out[asset] = e
		}
	}
	return out
}

// AddPair registers a new trading pair and starts its engine.
func (g *Gateway) AddPair(spec PairSpec) error {
	spec.Enabled = true
	if err := g.reg.Add(spec); err != nil {
		return err
	}
	g.mu.Lock()
	g.engines[spec.Symbol] = g.newEngine(spec)
	g.mu.Unlock()
	log.WithField("pair", spec.Symbol).Info("trading pair added")
	return nil
}

// RemovePair retires a pair. The book must be empty; suspend trading and
// let participants cancel first.
func (g *Gateway) RemovePair(symbol string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.engines[symbol]
	if !ok {
		return ErrUnknownPair
	}
	e.SetOpen(false)
	if e.Book().Len() > 0 {
		e.SetOpen(true)
		return ErrPairNotEmpty
	}
	delete(g.engines, symbol)
	g.reg.Remove(symbol)
	log.WithField("pair", symbol).Info("trading pair removed")
	return nil
}

// SetPairOpen suspends or resumes trading on one pair.
func (g *Gateway) SetPairOpen(pair string, open bool) error {
	e, err := g.engine(pair)
	if err != nil {
		return err
	}
	e.SetOpen(open)
	return nil
}

// Engines returns the live engines keyed by pair, for snapshot jobs.
func (g *Gateway) Engines() map[string]*engine.Engine {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]*engine.Engine, len(g.engines))
	for k, v := range g.engines {
		out[k] = v
	}
	return out
}
