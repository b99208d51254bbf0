package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"vela/api/httpserver"
	"vela/config"
	"vela/domain/ledger"
	"vela/engine"
	"vela/events"
	"vela/exchange"
	"vela/infra/journal"
	"vela/infra/outbox"
	"vela/jobs/broadcaster"
	"vela/snapshot"
	"vela/storage/tradestore"
)

func main() {
	configureLog()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	reg := exchange.NewRegistry()
	for _, a := range cfg.Assets {
		if err := reg.AddAsset(a); err != nil {
			log.Fatalf("register asset: %v", err)
		}
	}
	for _, p := range cfg.Pairs {
		if err := reg.Add(p); err != nil {
			log.Fatalf("register pair: %v", err)
		}
	}

	jnl, err := journal.Open(journal.Config{Dir: cfg.JournalDir})
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	defer jnl.Close()

	ob, err := outbox.Open(cfg.OutboxDir)
	if err != nil {
		log.Fatalf("open outbox: %v", err)
	}
	defer ob.Close()

	store, err := tradestore.Open(cfg.TradeDB)
	if err != nil {
		log.Fatalf("open trade store: %v", err)
	}
	defer store.Close()
	tradeSink := tradestore.NewSink(store, 0)

	led := ledger.New()
	sink := events.MultiSink{journal.NewEventSink(jnl), ob, tradeSink}

	stp := engine.STPAllow
	if cfg.SelfTradePolicy == "cancel-taker" {
		stp = engine.STPCancelTaker
	}
	gw := exchange.NewGateway(reg, led, sink, exchange.WithSelfTradePolicy(stp))

	state, err := snapshot.Load(cfg.SnapshotDir)
	if err != nil {
		log.Fatalf("load snapshot: %v", err)
	}
	if state != nil {
		if err := snapshot.Restore(state, led, gw); err != nil {
			log.Fatalf("restore snapshot: %v", err)
		}
		log.WithField("created", state.Created).Info("snapshot restored")
	} else {
		seed(cfg, reg, led)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	go tradeSink.Run(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		bc, err := broadcaster.New(ob, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Interval)
		if err != nil {
			log.Fatalf("connect kafka: %v", err)
		}
		defer bc.Close()
		go bc.Run(ctx)
	} else {
		log.Warn("no kafka brokers configured, events stay in the outbox")
	}

	writer := &snapshot.Writer{Dir: cfg.SnapshotDir}
	job := &snapshot.Job{Writer: writer, Gateway: gw, Ledger: led, Interval: cfg.SnapshotInterval}
	go job.Run(ctx)

	srv := httpserver.New(gw, reg, store)
	go func() {
		if err := srv.Listen(cfg.Listen); err != nil {
			log.Errorf("http server: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Errorf("http shutdown: %v", err)
	}
	if err := writer.Write(gw, led); err != nil {
		log.Errorf("final snapshot: %v", err)
	}
	if err := jnl.Sync(); err != nil {
		log.Errorf("journal sync: %v", err)
	}
}

// seed funds development accounts on a cold start only; a restored snapshot
// already carries the real balances.
func seed(cfg *config.Config, reg *exchange.Registry, led *ledger.Ledger) {
	for _, s := range cfg.Seed {
		units, err := reg.AmountToUnits(s.Asset, s.Amount)
		if err != nil {
			log.Fatalf("seed balance %s/%s: %v", s.UserID, s.Asset, err)
		}
		if err := led.Deposit(s.UserID, s.Asset, units); err != nil {
			log.Fatalf("seed balance %s/%s: %v", s.UserID, s.Asset, err)
		}
	}
	if len(cfg.Seed) > 0 {
		log.WithField("entries", len(cfg.Seed)).Info("seeded balances")
	}
}

func configureLog() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if os.Getenv("VELA_DEBUG") != "" {
		log.SetLevel(log.DebugLevel)
	}
}

func setupSignalHandler(cancel context.CancelFunc) {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigC
		log.Info("received shutdown signal")
		cancel()
	}()
}
