package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"vela/events"
)

// feed tails the exchange event topic and prints trades, a minimal consumer
// for watching a market or smoke-testing the broadcast pipeline end to end.
func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma separated kafka brokers")
	topic := flag.String("topic", "vela.events", "event topic")
	group := flag.String("group", "vela-feed", "consumer group id")
	pair := flag.String("pair", "", "only show this pair")
	all := flag.Bool("all", false, "print every event, not just trades")
	flag.Parse()

	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(*brokers, ","),
		Topic:   *topic,
		GroupID: *group,
	})
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigC
		cancel()
	}()

	log.WithField("topic", *topic).Info("feed started")
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("read failed")
			continue
		}
		var ev events.Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.WithError(err).Warn("skipping undecodable event")
			continue
		}
		if *pair != "" && ev.Pair != *pair {
			continue
		}
		switch {
		case ev.Type == events.TradeExecuted && ev.Trade != nil:
			log.WithFields(log.Fields{
				"pair":  ev.Pair,
				"price": ev.Trade.Price,
				"qty":   ev.Trade.Quantity,
				"taker": ev.Trade.TakerSide,
				"seq":   ev.Trade.Seq,
			}).Info("trade")
		case *all && ev.Order != nil:
			log.WithFields(log.Fields{
				"pair":   ev.Pair,
				"type":   ev.Type,
				"order":  ev.Order.OrderID,
				"status": ev.Order.Status,
				"reason": ev.Reason,
			}).Info("order")
		}
	}
}
