package snapshot

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"vela/domain/ledger"
	"vela/exchange"
)

// Job writes periodic snapshots in the background.
type Job struct {
	Writer   *Writer
	Gateway  *exchange.Gateway
	Ledger   *ledger.Ledger
	Interval time.Duration
}

func (j *Job) Run(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := j.Writer.Write(j.Gateway, j.Ledger); err != nil {
				log.WithError(err).Error("snapshot write failed")
				continue
			}
			log.WithField("took", time.Since(start)).Debug("snapshot written")
		}
	}
}
