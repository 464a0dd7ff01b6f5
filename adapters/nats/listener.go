package nats

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/coregx/subhub"
	"github.com/coregx/subhub/model"
)

// Listener receives fan-out events off the bus and applies them to the local
// registry through a subhub.Applier.
type Listener struct {
	sub    *nats.Subscription
	logger subhub.Logger
}

// NewListener subscribes to "<prefix>.events" and starts applying incoming
// events immediately. Close unsubscribes.
func NewListener(nc *nats.Conn, prefix string, applier *subhub.Applier, logger subhub.Logger) (*Listener, error) {
	if logger == nil {
		logger = &subhub.NoopLogger{}
	}

	subject := eventsSubject(prefix)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var event model.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Warnf("Discarding undecodable fan-out event on %s: %v", subject, err)
			return
		}
		applier.Apply(event)
	})
	if err != nil {
		return nil, subhub.NewErrorWithCause(subhub.ErrCodeConfiguration, "failed to subscribe to fan-out subject", err)
	}

	return &Listener{sub: sub, logger: logger}, nil
}

// Close stops receiving events.
func (l *Listener) Close() error {
	if err := l.sub.Unsubscribe(); err != nil {
		return subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to unsubscribe fan-out listener", err)
	}
	return nil
}
