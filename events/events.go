package events

import "time"

type Type string

const (
	OrderAccepted  Type = "ORDER_ACCEPTED"
	OrderRejected  Type = "ORDER_REJECTED"
	OrderFilled    Type = "ORDER_FILLED"
	OrderCancelled Type = "ORDER_CANCELLED"
	TradeExecuted  Type = "TRADE_EXECUTED"
)

// Trade is the immutable record of one match. Price is always the resting
// (maker) order's price. Seq orders trades within their pair.
type Trade struct {
	ID           string    `json:"id"`
	Pair         string    `json:"pair"`
	Price        int64     `json:"price"`
	Quantity     int64     `json:"quantity"`
	TakerOrderID uint64    `json:"takerOrderId"`
	MakerOrderID uint64    `json:"makerOrderId"`
	TakerUserID  string    `json:"takerUserId"`
	MakerUserID  string    `json:"makerUserId"`
	TakerSide    string    `json:"takerSide"`
	Seq          uint64    `json:"seq"`
	Time         time.Time `json:"time"`
}

// OrderInfo is the order payload carried on order lifecycle events.
type OrderInfo struct {
	OrderID   uint64 `json:"orderId"`
	UserID    string `json:"userId"`
	Side      string `json:"side"`
	Kind      string `json:"kind"`
	Price     int64  `json:"price,omitempty"`
	Quantity  int64  `json:"quantity"`
	Remaining int64  `json:"remaining"`
	Status    string `json:"status"`
}

// Event is one element of the ordered per-pair stream the core emits for
// durable storage and broadcast.
type Event struct {
	Seq    uint64     `json:"seq"`
	Type   Type       `json:"type"`
	Pair   string     `json:"pair"`
	Time   time.Time  `json:"time"`
	Order  *OrderInfo `json:"order,omitempty"`
	Trade  *Trade     `json:"trade,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// Sink consumes the event stream. Publish is called while the emitting
// pair's engine lock is held, so implementations must not block.
type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }

// MultiSink fans one stream out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// NopSink drops everything.
type NopSink struct{}

func (NopSink) Publish(Event) {}
