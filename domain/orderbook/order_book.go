package orderbook

import "errors"

var (
	ErrDuplicateOrder = errors.New("orderbook: order already in book")
	ErrNotResting     = errors.New("orderbook: order not eligible to rest")
)

// OrderBook holds the resting orders of one trading pair: bids and asks in
// separate price trees, plus an ID index for cancellation.
type OrderBook struct {
	Pair string
	Bids *RBTree
	Asks *RBTree

	byID map[uint64]*Order
}

func New(pair string) *OrderBook {
	return &OrderBook{
		Pair: pair,
		Bids: NewRBTree(),
		Asks: NewRBTree(),
		byID: make(map[uint64]*Order),
	}
}

// Insert rests an order at the back of its price level queue.
func (b *OrderBook) Insert(o *Order) error {
	if _, ok := b.byID[o.ID]; ok {
		return ErrDuplicateOrder
	}
	if !o.Resting() || o.Price <= 0 {
		return ErrNotResting
	}
	lvl := b.tree(o.Side).UpsertLevel(o.Price)
	lvl.enqueue(o)
	b.byID[o.ID] = o
	return nil
}

// Lookup finds a resting order by ID.
func (b *OrderBook) Lookup(id uint64) (*Order, bool) {
	o, ok := b.byID[id]
	return o, ok
}

// RemoveByID unlinks a resting order. The second return is false when the
// order is unknown or already retired.
func (b *OrderBook) RemoveByID(id uint64) (*Order, bool) {
	o, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	b.remove(o)
	return o, true
}

// BestBid returns the highest bid level, or nil on an empty side.
func (b *OrderBook) BestBid() *PriceLevel { return b.Bids.MaxLevel() }

// BestAsk returns the lowest ask level, or nil on an empty side.
func (b *OrderBook) BestAsk() *PriceLevel { return b.Asks.MinLevel() }

// LevelAt returns the level queue at a price, front-to-back oldest first.
func (b *OrderBook) LevelAt(side Side, price int64) *PriceLevel {
	return b.tree(side).FindLevel(price)
}

// Len is the number of resting orders across both sides.
func (b *OrderBook) Len() int { return len(b.byID) }

// ApplyFill executes qty against a resting order and retires it when its
// remaining quantity reaches zero, pruning the level if it empties.
func (b *OrderBook) ApplyFill(o *Order, qty int64) {
	o.Remaining -= qty
	lvl := b.tree(o.Side).FindLevel(o.Price)
	if lvl != nil {
		lvl.reduce(qty)
	}
	if o.Remaining == 0 {
		b.remove(o)
	}
}

// WalkBids visits bid levels best (highest) first.
func (b *OrderBook) WalkBids(fn func(*PriceLevel) bool) {
	b.Bids.ForEachDescending(fn)
}

// WalkAsks visits ask levels best (lowest) first.
func (b *OrderBook) WalkAsks(fn func(*PriceLevel) bool) {
	b.Asks.ForEachAscending(fn)
}

// LevelView is an aggregated snapshot row of one price level.
type LevelView struct {
	Price      int64
	Qty        int64
	OrderCount int
}

// Depth returns up to n aggregated levels per side, best first.
func (b *OrderBook) Depth(n int) (bids, asks []LevelView) {
	b.WalkBids(func(lvl *PriceLevel) bool {
		bids = append(bids, LevelView{Price: lvl.Price, Qty: lvl.TotalQty, OrderCount: lvl.OrderCount})
		return n <= 0 || len(bids) < n
	})
	b.WalkAsks(func(lvl *PriceLevel) bool {
		asks = append(asks, LevelView{Price: lvl.Price, Qty: lvl.TotalQty, OrderCount: lvl.OrderCount})
		return n <= 0 || len(asks) < n
	})
	return bids, asks
}

func (b *OrderBook) tree(side Side) *RBTree {
	if side == Bid {
		return b.Bids
	}
	return b.Asks
}

func (b *OrderBook) remove(o *Order) {
	tree := b.tree(o.Side)
	if lvl := tree.FindLevel(o.Price); lvl != nil {
		lvl.unlink(o)
		if lvl.Empty() {
			tree.DeleteLevel(o.Price)
		}
	}
	delete(b.byID, o.ID)
}
