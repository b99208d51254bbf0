package journal

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"vela/events"
)

// EventSink journals the event stream as JSON payloads. A write failure is
// logged, not surfaced; the live engine state stays authoritative.
type EventSink struct {
	j *Journal
}

func NewEventSink(j *Journal) *EventSink { return &EventSink{j: j} }

func (s *EventSink) Publish(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).Error("journal: event marshal failed")
		return
	}
	rec := &Record{Seq: ev.Seq, Time: ev.Time.UnixNano(), Data: data}
	if err := s.j.Append(rec); err != nil {
		log.WithError(err).WithField("pair", ev.Pair).Error("journal: append failed")
	}
}
