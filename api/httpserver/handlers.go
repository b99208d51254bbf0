package httpserver

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"vela/domain/ledger"
	"vela/domain/orderbook"
	"vela/engine"
	"vela/events"
	"vela/exchange"
)

type placeOrderRequest struct {
	Pair     string `json:"pair"`
	UserID   string `json:"userId"`
	Side     string `json:"side"`
	Kind     string `json:"kind"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type orderView struct {
	ID        uint64 `json:"id"`
	UserID    string `json:"userId"`
	Pair      string `json:"pair"`
	Side      string `json:"side"`
	Kind      string `json:"kind"`
	Price     string `json:"price,omitempty"`
	Quantity  string `json:"quantity"`
	Remaining string `json:"remaining"`
	Status    string `json:"status"`
	Seq       uint64 `json:"seq"`
}

type tradeView struct {
	ID           string    `json:"id"`
	Pair         string    `json:"pair"`
	Price        string    `json:"price"`
	Quantity     string    `json:"quantity"`
	TakerOrderID uint64    `json:"takerOrderId"`
	MakerOrderID uint64    `json:"makerOrderId"`
	TakerSide    string    `json:"takerSide"`
	Seq          uint64    `json:"seq"`
	Time         time.Time `json:"time"`
}

type levelView struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Orders   int    `json:"orders"`
}

type balanceView struct {
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

func (s *Server) orderView(o *orderbook.Order) orderView {
	v := orderView{
		ID:        o.ID,
		UserID:    o.UserID,
		Pair:      o.Pair,
		Side:      o.Side.String(),
		Kind:      o.Kind.String(),
		Quantity:  s.reg.LotsToQty(o.Pair, o.Quantity).String(),
		Remaining: s.reg.LotsToQty(o.Pair, o.Remaining).String(),
		Status:    o.Status.String(),
		Seq:       o.Seq,
	}
	if o.Kind == orderbook.Limit {
		v.Price = s.reg.TicksToPrice(o.Pair, o.Price).String()
	}
	return v
}

func (s *Server) tradeView(t *events.Trade) tradeView {
	return tradeView{
		ID:           t.ID,
		Pair:         t.Pair,
		Price:        s.reg.TicksToPrice(t.Pair, t.Price).String(),
		Quantity:     s.reg.LotsToQty(t.Pair, t.Quantity).String(),
		TakerOrderID: t.TakerOrderID,
		MakerOrderID: t.MakerOrderID,
		TakerSide:    t.TakerSide,
		Seq:          t.Seq,
		Time:         t.Time,
	}
}

func (s *Server) tradeViews(ts []*events.Trade) []tradeView {
	out := make([]tradeView, len(ts))
	for i, t := range ts {
		out[i] = s.tradeView(t)
	}
	return out
}

func parseSide(v string) (orderbook.Side, error) {
	switch strings.ToUpper(v) {
	case "BID", "BUY":
		return orderbook.Bid, nil
	case "ASK", "SELL":
		return orderbook.Ask, nil
	}
	return 0, &engine.ValidationError{Field: "side", Reason: "must be BID or ASK"}
}

func parseKind(v string) (orderbook.Kind, error) {
	switch strings.ToUpper(v) {
	case "LIMIT", "":
		return orderbook.Limit, nil
	case "MARKET":
		return orderbook.Market, nil
	}
	return 0, &engine.ValidationError{Field: "kind", Reason: "must be LIMIT or MARKET"}
}

func (s *Server) placeOrder(c *fiber.Ctx) error {
	var req placeOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	side, err := parseSide(req.Side)
	if err != nil {
		return mapError(c, err)
	}
	kind, err := parseKind(req.Kind)
	if err != nil {
		return mapError(c, err)
	}

	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return mapError(c, &engine.ValidationError{Field: "quantity", Reason: "not a decimal"})
	}
	lots, err := s.reg.QtyToLots(req.Pair, qty)
	if err != nil {
		return mapError(c, err)
	}

	var ticks int64
	if kind == orderbook.Limit {
		price, err := decimal.NewFromString(req.Price)
		if err != nil {
			return mapError(c, &engine.ValidationError{Field: "price", Reason: "not a decimal"})
		}
		if ticks, err = s.reg.PriceToTicks(req.Pair, price); err != nil {
			return mapError(c, err)
		}
	}

	o, trades, err := s.gw.PlaceOrder(req.Pair, engine.PlaceRequest{
		UserID:   req.UserID,
		Side:     side,
		Kind:     kind,
		Price:    ticks,
		Quantity: lots,
	})
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, fiber.Map{
		"order":  s.orderView(o),
		"trades": s.tradeViews(trades),
	})
}

func (s *Server) cancelOrder(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	o, err := s.gw.CancelOrder(c.Params("pair"), id)
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, s.orderView(o))
}

func (s *Server) bookSnapshot(c *fiber.Ctx) error {
	depth := c.QueryInt("depth", 10)
	pair := c.Params("pair")
	snap, err := s.gw.OrderBookSnapshot(pair, depth)
	if err != nil {
		return mapError(c, err)
	}
	render := func(levels []orderbook.LevelView) []levelView {
		out := make([]levelView, len(levels))
		for i, lvl := range levels {
			out[i] = levelView{
				Price:    s.reg.TicksToPrice(pair, lvl.Price).String(),
				Quantity: s.reg.LotsToQty(pair, lvl.Qty).String(),
				Orders:   lvl.OrderCount,
			}
		}
		return out
	}
	return ok(c, fiber.Map{
		"pair": snap.Pair,
		"seq":  snap.Seq,
		"bids": render(snap.Bids),
		"asks": render(snap.Asks),
	})
}

// tradeHistory serves the engine's in-memory ring by default; ?source=db
// reads the persisted store instead, which survives restarts.
func (s *Server) tradeHistory(c *fiber.Ctx) error {
	pair := c.Params("pair")
	limit := c.QueryInt("limit", 50)

	if c.Query("source") == "db" && s.trades != nil {
		ts, err := s.trades.Recent(c.Context(), pair, limit)
		if err != nil {
			return mapError(c, err)
		}
		return ok(c, s.tradeViews(ts))
	}
	ts, err := s.gw.TradeHistory(pair, limit)
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, s.tradeViews(ts))
}

func (s *Server) userBalances(c *fiber.Ctx) error {
	entries := s.gw.UserBalances(c.Params("user"))
	out := make(map[string]balanceView, len(entries))
	for asset, e := range entries {
		out[asset] = s.balanceView(asset, e)
	}
	return ok(c, out)
}

func (s *Server) balanceView(asset string, e ledger.Entry) balanceView {
	return balanceView{
		Available: s.reg.UnitsToAmount(asset, e.Available).String(),
		Locked:    s.reg.UnitsToAmount(asset, e.Locked).String(),
	}
}

type addPairRequest struct {
	Symbol   string          `json:"symbol"`
	Base     string          `json:"base"`
	Quote    string          `json:"quote"`
	TickSize decimal.Decimal `json:"tickSize"`
	LotSize  decimal.Decimal `json:"lotSize"`
}

func (s *Server) addPair(c *fiber.Ctx) error {
	var req addPairRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	err := s.gw.AddPair(exchange.PairSpec{
		Symbol:   req.Symbol,
		Base:     req.Base,
		Quote:    req.Quote,
		TickSize: req.TickSize,
		LotSize:  req.LotSize,
	})
	switch {
	case err == nil:
	case errors.Is(err, exchange.ErrPairExists):
		return mapError(c, err)
	default:
		// Registry spec errors describe exactly what was wrong.
		return fail(c, fiber.StatusBadRequest, err)
	}
	return ok(c, fiber.Map{"pair": req.Symbol})
}

func (s *Server) removePair(c *fiber.Ctx) error {
	if err := s.gw.RemovePair(c.Params("pair")); err != nil {
		return mapError(c, err)
	}
	return ok(c, nil)
}

func (s *Server) suspendPair(c *fiber.Ctx) error {
	if err := s.gw.SetPairOpen(c.Params("pair"), false); err != nil {
		return mapError(c, err)
	}
	return ok(c, nil)
}

func (s *Server) resumePair(c *fiber.Ctx) error {
	if err := s.gw.SetPairOpen(c.Params("pair"), true); err != nil {
		return mapError(c, err)
	}
	return ok(c, nil)
}
