package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"vela/domain/ledger"
	"vela/domain/orderbook"
	"vela/events"
)

// STPPolicy controls what happens when an incoming order would trade
// against a resting order of the same user.
type STPPolicy uint8

const (
	// STPAllow permits self-trades; funds move between the user's own
	// locked and available buckets. This is the default.
	STPAllow STPPolicy = iota
	// STPCancelTaker stops matching when the next maker belongs to the
	// taker's user; the unmatched remainder is treated like an unfilled
	// market remainder.
	STPCancelTaker
)

// FeeFunc computes fees for one trade: the buyer's fee in base minor units
// and the seller's fee in quote minor units. Fees are deducted from each
// side's settlement credit. A nil FeeFunc charges nothing.
type FeeFunc func(t *events.Trade) (buyerFeeBase, sellerFeeQuote int64)

const defaultHistory = 1024

type Config struct {
	Pair  string
	Base  string
	Quote string
	STP   STPPolicy
	Fees  FeeFunc

	// BaseUnitsPerLot and QuoteUnitsPerTickLot scale the book's abstract
	// lots and ticks into ledger minor units, so assets shared by several
	// pairs settle in one denomination. Zero means 1.
	BaseUnitsPerLot      int64
	QuoteUnitsPerTickLot int64

	// TradeHistory caps the in-memory trade ring. Zero means the default.
	TradeHistory int
}

// PlaceRequest is one incoming order. Price is ignored for market orders.
type PlaceRequest struct {
	UserID   string
	Side     orderbook.Side
	Kind     orderbook.Kind
	Price    int64
	Quantity int64
}

type reservation struct {
	asset  string
	amount int64
}

// Engine matches orders for a single trading pair. All commands and reads
// are serialized on one mutex held for a whole match loop, so no caller can
// observe a partially applied match. Engines for different pairs are
// independent.
type Engine struct {
	mu   sync.Mutex
	cfg  Config
	book *orderbook.OrderBook
	led  *ledger.Ledger
	sink events.Sink
	log  *log.Entry

	seq      uint64
	nextID   uint64
	open     bool
	halted   bool
	reserved map[uint64]*reservation
	trades   []*events.Trade
}

func New(cfg Config, led *ledger.Ledger, sink events.Sink) *Engine {
	if cfg.TradeHistory <= 0 {
		cfg.TradeHistory = defaultHistory
	}
	if cfg.BaseUnitsPerLot <= 0 {
		cfg.BaseUnitsPerLot = 1
	}
	if cfg.QuoteUnitsPerTickLot <= 0 {
		cfg.QuoteUnitsPerTickLot = 1
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Engine{
		cfg:      cfg,
		book:     orderbook.New(cfg.Pair),
		led:      led,
		sink:     sink,
		log:      log.WithField("pair", cfg.Pair),
		open:     true,
		reserved: make(map[uint64]*reservation),
	}
}

// SetOpen suspends or resumes trading on the pair. Suspension rejects new
// orders; resting orders stay and can still be cancelled.
func (e *Engine) SetOpen(open bool) {
	e.mu.Lock()
	e.open = open
	e.mu.Unlock()
}

// Halted reports whether the pair stopped after an invariant violation.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// PlaceOrder runs one order through validate, reserve, match and rest. It
// returns the order in its final state and the trades it produced.
func (e *Engine) PlaceOrder(req PlaceRequest) (*orderbook.Order, []*events.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted {
		return nil, nil, ErrHalted
	}
	if err := e.validate(req); err != nil {
		o := e.newOrder(req)
		o.Status = orderbook.Rejected
		e.emitOrder(events.OrderRejected, o, err.Error())
		return o, nil, err
	}

	o := e.newOrder(req)
	res, err := e.reserve(o)
	if err != nil {
		o.Status = orderbook.Rejected
		e.emitOrder(events.OrderRejected, o, err.Error())
		return o, nil, err
	}
	e.reserved[o.ID] = res
	e.emitOrder(events.OrderAccepted, o, "")

	trades, stpStopped, matchErr := e.match(o, res)
	if matchErr != nil {
		return o, trades, matchErr
	}

	switch {
	case o.Remaining == 0:
		o.Status = orderbook.Filled
		e.releaseResidue(o, res)
		e.emitOrder(events.OrderFilled, o, "")
	case stpStopped:
		// Resting the remainder would cross the user's own order.
		o.Status = orderbook.Cancelled
		e.releaseResidue(o, res)
		e.emitOrder(events.OrderCancelled, o, "self-trade prevented")
	case o.Kind == orderbook.Limit:
		if err := e.book.Insert(o); err != nil {
			return o, trades, e.fatal("book insert", err)
		}
	default:
		// Market remainders never rest.
		if o.FilledQty() == 0 {
			o.Status = orderbook.Rejected
		} else {
			o.Status = orderbook.PartiallyFilled
		}
		e.releaseResidue(o, res)
		e.emitOrder(events.OrderRejected, o, "market order liquidity exhausted")
	}
	return o, trades, nil
}

// Cancel removes a resting order and releases its remaining reservation.
// Orders that already filled, or never rested, come back as not found; a
// cancel racing a fill is expected and harmless.
func (e *Engine) Cancel(orderID uint64) (*orderbook.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted {
		return nil, ErrHalted
	}
	o, ok := e.book.RemoveByID(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.Status = orderbook.Cancelled
	if res := e.reserved[orderID]; res != nil {
		delete(e.reserved, orderID)
		if err := e.led.Release(o.UserID, res.asset, res.amount); err != nil {
			return o, e.fatal("cancel release", err)
		}
	}
	e.emitOrder(events.OrderCancelled, o, "")
	return o, nil
}

// Snapshot returns up to depth aggregated levels per side and the sequence
// number the view is consistent with.
func (e *Engine) Snapshot(depth int) (bids, asks []orderbook.LevelView, seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bids, asks = e.book.Depth(depth)
	return bids, asks, e.seq
}

// Trades returns up to limit most recent trades, oldest first.
func (e *Engine) Trades(limit int) []*events.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.trades)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*events.Trade, n)
	copy(out, e.trades[len(e.trades)-n:])
	return out
}

// Book exposes the underlying book for snapshot persistence. The caller
// must hold no engine commands concurrently; the gateway guarantees this.
func (e *Engine) Book() *orderbook.OrderBook { return e.book }

// RestingOrders copies every resting order, best price first, along with
// the pair's current sequence number.
func (e *Engine) RestingOrders() ([]orderbook.Order, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]orderbook.Order, 0, e.book.Len())
	visit := func(lvl *orderbook.PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			out = append(out, *o)
		}
		return true
	}
	e.book.WalkBids(visit)
	e.book.WalkAsks(visit)
	return out, e.seq
}

// Restore reinstates a resting limit order from a snapshot, rebuilding its
// reservation bookkeeping. The ledger must already hold the matching locked
// funds.
func (e *Engine) Restore(o *orderbook.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o.Kind != orderbook.Limit || !o.Resting() {
		return &ValidationError{Field: "order", Reason: "only resting limit orders can be restored"}
	}
	if err := e.book.Insert(o); err != nil {
		return err
	}
	res := &reservation{asset: e.cfg.Base, amount: o.Remaining * e.cfg.BaseUnitsPerLot}
	if o.Side == orderbook.Bid {
		res = &reservation{asset: e.cfg.Quote, amount: o.Remaining * o.Price * e.cfg.QuoteUnitsPerTickLot}
	}
	e.reserved[o.ID] = res
	if o.ID > e.nextID {
		e.nextID = o.ID
	}
	if o.Seq > e.seq {
		e.seq = o.Seq
	}
	return nil
}

// BumpSeq advances the sequence counter past a restored snapshot's.
func (e *Engine) BumpSeq(seq uint64) {
	e.mu.Lock()
	if seq > e.seq {
		e.seq = seq
	}
	e.mu.Unlock()
}

func (e *Engine) validate(req PlaceRequest) error {
	if !e.open {
		return &ValidationError{Field: "pair", Reason: "trading suspended"}
	}
	if req.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "missing"}
	}
	if req.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if req.Kind == orderbook.Limit && req.Price <= 0 {
		return &ValidationError{Field: "price", Reason: "must be positive for limit orders"}
	}
	return nil
}

func (e *Engine) newOrder(req PlaceRequest) *orderbook.Order {
	e.nextID++
	price := req.Price
	if req.Kind == orderbook.Market {
		price = 0
	}
	return &orderbook.Order{
		ID:        e.nextID,
		UserID:    req.UserID,
		Pair:      e.cfg.Pair,
		Side:      req.Side,
		Kind:      req.Kind,
		Price:     price,
		Quantity:  req.Quantity,
		Remaining: req.Quantity,
		Seq:       e.nextSeq(),
		Status:    orderbook.Open,
	}
}

// reserve locks the worst-case funds an order can consume. Limit orders
// reserve remaining*price in quote (buy) or remaining in base (sell).
// Market orders reserve against the opposite side's current depth; a market
// order facing an empty book is rejected here with no side effects.
func (e *Engine) reserve(o *orderbook.Order) (*reservation, error) {
	var res reservation
	switch {
	case o.Kind == orderbook.Limit && o.Side == orderbook.Bid:
		res = reservation{asset: e.cfg.Quote, amount: o.Remaining * o.Price * e.cfg.QuoteUnitsPerTickLot}
	case o.Kind == orderbook.Limit:
		res = reservation{asset: e.cfg.Base, amount: o.Remaining * e.cfg.BaseUnitsPerLot}
	case o.Side == orderbook.Bid:
		cost, fillable := e.projectCost(o.Remaining)
		if fillable == 0 {
			return nil, &ValidationError{Field: "book", Reason: "no liquidity for market order"}
		}
		res = reservation{asset: e.cfg.Quote, amount: cost * e.cfg.QuoteUnitsPerTickLot}
	default:
		fillable := e.projectFillable(o.Remaining)
		if fillable == 0 {
			return nil, &ValidationError{Field: "book", Reason: "no liquidity for market order"}
		}
		res = reservation{asset: e.cfg.Base, amount: fillable * e.cfg.BaseUnitsPerLot}
	}
	if err := e.led.Reserve(o.UserID, res.asset, res.amount); err != nil {
		return nil, err
	}
	return &res, nil
}

// projectCost walks the ask side and prices out filling qty, level by level.
func (e *Engine) projectCost(qty int64) (cost, fillable int64) {
	e.book.WalkAsks(func(lvl *orderbook.PriceLevel) bool {
		take := min64(qty-fillable, lvl.TotalQty)
		cost += take * lvl.Price
		fillable += take
		return fillable < qty
	})
	return cost, fillable
}

func (e *Engine) projectFillable(qty int64) (fillable int64) {
	e.book.WalkBids(func(lvl *orderbook.PriceLevel) bool {
		fillable += min64(qty-fillable, lvl.TotalQty)
		return fillable < qty
	})
	return fillable
}

func (e *Engine) crosses(taker *orderbook.Order, makerPrice int64) bool {
	if taker.Kind == orderbook.Market {
		return true
	}
	if taker.Side == orderbook.Bid {
		return taker.Price >= makerPrice
	}
	return taker.Price <= makerPrice
}

// match runs the price-time priority loop. Each fill settles atomically in
// the ledger before book state changes; a settlement failure leaves earlier
// fills intact, halts the pair and surfaces an internal error.
func (e *Engine) match(taker *orderbook.Order, takerRes *reservation) (trades []*events.Trade, stpStopped bool, err error) {
	for taker.Remaining > 0 {
		var best *orderbook.PriceLevel
		if taker.Side == orderbook.Bid {
			best = e.book.BestAsk()
		} else {
			best = e.book.BestBid()
		}
		if best == nil || !e.crosses(taker, best.Price) {
			break
		}
		maker := best.Head()
		if maker.UserID == taker.UserID && e.cfg.STP == STPCancelTaker {
			stpStopped = true
			break
		}

		qty := min64(taker.Remaining, maker.Remaining)
		price := maker.Price
		trade := e.newTrade(taker, maker, qty, price)

		var buyerFee, sellerFee int64
		if e.cfg.Fees != nil {
			buyerFee, sellerFee = e.cfg.Fees(trade)
		}

		buyer, seller := taker, maker
		if taker.Side == orderbook.Ask {
			buyer, seller = maker, taker
		}
		settleErr := e.led.Settle(buyer.UserID, seller.UserID, e.cfg.Base, e.cfg.Quote,
			qty*e.cfg.BaseUnitsPerLot, qty*price*e.cfg.QuoteUnitsPerTickLot,
			buyerFee, sellerFee)
		if settleErr != nil {
			return trades, false, e.fatal("settle", settleErr)
		}

		// Debit reservations. A limit buy taker reserved at its own
		// price; the spread over the maker price unlocks right away.
		if err := e.consume(taker, takerRes, qty, price); err != nil {
			return trades, false, e.fatal("reservation", err)
		}
		makerRes := e.reserved[maker.ID]
		if err := e.consume(maker, makerRes, qty, price); err != nil {
			return trades, false, e.fatal("reservation", err)
		}

		taker.Remaining -= qty
		if taker.Remaining > 0 {
			taker.Status = orderbook.PartiallyFilled
		}
		e.book.ApplyFill(maker, qty)
		if maker.Remaining == 0 {
			maker.Status = orderbook.Filled
			e.releaseResidue(maker, makerRes)
			e.emitOrder(events.OrderFilled, maker, "")
		} else {
			maker.Status = orderbook.PartiallyFilled
		}

		trades = append(trades, trade)
		e.recordTrade(trade)
	}
	return trades, stpStopped, nil
}

// consume debits one fill from an order's reservation and releases any
// price-improvement surplus back to available.
func (e *Engine) consume(o *orderbook.Order, res *reservation, qty, execPrice int64) error {
	if res == nil {
		return &ledger.InvariantError{Op: "consume", UserID: o.UserID,
			Detail: "missing reservation"}
	}
	var debit, surplus int64
	if o.Side == orderbook.Bid {
		if o.Kind == orderbook.Limit {
			debit = qty * o.Price * e.cfg.QuoteUnitsPerTickLot
			surplus = qty * (o.Price - execPrice) * e.cfg.QuoteUnitsPerTickLot
		} else {
			debit = qty * execPrice * e.cfg.QuoteUnitsPerTickLot
		}
	} else {
		debit = qty * e.cfg.BaseUnitsPerLot
	}
	if res.amount < debit {
		return &ledger.InvariantError{Op: "consume", UserID: o.UserID, Asset: res.asset,
			Detail: "reservation underflow"}
	}
	res.amount -= debit
	if surplus > 0 {
		return e.led.Release(o.UserID, res.asset, surplus)
	}
	return nil
}

// releaseResidue unlocks whatever is left of a retired order's reservation.
func (e *Engine) releaseResidue(o *orderbook.Order, res *reservation) {
	if res == nil {
		return
	}
	delete(e.reserved, o.ID)
	if res.amount == 0 {
		return
	}
	if err := e.led.Release(o.UserID, res.asset, res.amount); err != nil {
		e.log.WithError(err).Error("residual release failed")
		e.halted = true
	}
	res.amount = 0
}

func (e *Engine) newTrade(taker, maker *orderbook.Order, qty, price int64) *events.Trade {
	return &events.Trade{
		ID:           uuid.NewString(),
		Pair:         e.cfg.Pair,
		Price:        price,
		Quantity:     qty,
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
		TakerUserID:  taker.UserID,
		MakerUserID:  maker.UserID,
		TakerSide:    taker.Side.String(),
		Seq:          e.nextSeq(),
		Time:         time.Now().UTC(),
	}
}

func (e *Engine) recordTrade(t *events.Trade) {
	e.trades = append(e.trades, t)
	if len(e.trades) > e.cfg.TradeHistory {
		e.trades = e.trades[len(e.trades)-e.cfg.TradeHistory:]
	}
	e.sink.Publish(events.Event{
		Seq:   e.nextSeq(),
		Type:  events.TradeExecuted,
		Pair:  e.cfg.Pair,
		Time:  t.Time,
		Trade: t,
	})
}

func (e *Engine) emitOrder(typ events.Type, o *orderbook.Order, reason string) {
	e.sink.Publish(events.Event{
		Seq:  e.nextSeq(),
		Type: typ,
		Pair: e.cfg.Pair,
		Time: time.Now().UTC(),
		Order: &events.OrderInfo{
			OrderID:   o.ID,
			UserID:    o.UserID,
			Side:      o.Side.String(),
			Kind:      o.Kind.String(),
			Price:     o.Price,
			Quantity:  o.Quantity,
			Remaining: o.Remaining,
			Status:    o.Status.String(),
		},
		Reason: reason,
	})
}

// fatal halts the pair. Other pairs keep trading; this one needs an
// operator before it accepts commands again.
func (e *Engine) fatal(op string, err error) error {
	e.halted = true
	e.log.WithError(err).WithField("op", op).Error("pair halted")
	return &InternalError{Pair: e.cfg.Pair, Err: err}
}

func (e *Engine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
