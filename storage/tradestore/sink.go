package tradestore

import (
	"context"

	log "github.com/sirupsen/logrus"

	"vela/events"
)

// Sink feeds executed trades into the store off the matching path. Publish
// never blocks the engine; if the buffer is full the trade is dropped here
// and recovered from the event journal instead.
type Sink struct {
	store *Store
	ch    chan *events.Trade
}

func NewSink(store *Store, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 4096
	}
	return &Sink{store: store, ch: make(chan *events.Trade, buffer)}
}

func (s *Sink) Publish(ev events.Event) {
	if ev.Type != events.TradeExecuted || ev.Trade == nil {
		return
	}
	select {
	case s.ch <- ev.Trade:
	default:
		log.WithField("pair", ev.Pair).Warn("tradestore: sink buffer full, trade dropped")
	}
}

// Run drains the sink until ctx is done.
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.ch:
			if err := s.store.Save(ctx, t); err != nil {
				log.WithError(err).WithField("trade", t.ID).Error("tradestore: save failed")
			}
		}
	}
}
