package orderbook

type Side uint8
type Kind uint8
type Status uint8

const (
	Bid Side = iota
	Ask
)

const (
	Limit Kind = iota
	Market
)

const (
	Open Status = iota
	PartiallyFilled
	Filled
	Cancelled
	Rejected
)

func (s Side) String() string {
	if s == Bid {
		return "BID"
	}
	return "ASK"
}

func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

func (k Kind) String() string {
	if k == Limit {
		return "LIMIT"
	}
	return "MARKET"
}

func (st Status) String() string {
	switch st {
	case Open:
		return "OPEN"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Order is a single buy or sell intent. Prices and quantities are integer
// ticks and lots. Seq is the arrival sequence number assigned by the engine;
// it is the time-priority key inside a price level.
type Order struct {
	ID        uint64
	UserID    string
	Pair      string
	Side      Side
	Kind      Kind
	Price     int64 // zero for market orders
	Quantity  int64
	Remaining int64
	Seq       uint64
	Status    Status

	next *Order
	prev *Order
}

// FilledQty is the quantity executed so far.
func (o *Order) FilledQty() int64 { return o.Quantity - o.Remaining }

// Resting reports whether the order is eligible to sit in a book.
func (o *Order) Resting() bool {
	return (o.Status == Open || o.Status == PartiallyFilled) && o.Remaining > 0
}

// Next returns the order behind this one in its price level queue.
func (o *Order) Next() *Order { return o.next }
