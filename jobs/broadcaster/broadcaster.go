package broadcaster

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"vela/infra/outbox"
)

// Broadcaster drains the event outbox to Kafka. Records it fails to deliver
// stay pending and are retried on the next tick, so the stream reaches the
// broker at least once and in emit order.
type Broadcaster struct {
	out      *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
}

func New(out *outbox.Outbox, brokers []string, topic string, interval time.Duration) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(out, producer, topic, interval), nil
}

// NewWithProducer wires an existing producer; tests use sarama mocks here.
func NewWithProducer(out *outbox.Outbox, producer sarama.SyncProducer, topic string, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Broadcaster{out: out, producer: producer, topic: topic, interval: interval}
}

// Run ticks until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	log.WithField("topic", b.topic).Info("broadcaster started")
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.DrainOnce()
		}
	}
}

// DrainOnce pushes every pending record, marking SENT before the produce
// call and ACKED after the broker confirms.
func (b *Broadcaster) DrainOnce() {
	err := b.out.ScanPending(func(e outbox.Entry) error {
		if err := b.out.MarkSent(e.Seq); err != nil {
			return err
		}
		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(strconv.FormatUint(e.Seq, 10)),
			Value: sarama.ByteEncoder(e.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			log.WithError(err).WithField("seq", e.Seq).Warn("broadcast failed, will retry")
			return nil
		}
		return b.out.MarkAcked(e.Seq)
	})
	if err != nil {
		log.WithError(err).Error("outbox scan failed")
	}
}

func (b *Broadcaster) Close() error { return b.producer.Close() }
