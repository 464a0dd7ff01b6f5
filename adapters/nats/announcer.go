package nats

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/coregx/subhub"
	"github.com/coregx/subhub/model"
)

// DefaultSubjectPrefix is used when no prefix is given.
const DefaultSubjectPrefix = "subhub"

// eventsSubject builds the broadcast subject for lifecycle events.
func eventsSubject(prefix string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + ".events"
}

// Announcer implements subhub.Announcer by broadcasting JSON-encoded events
// on a NATS subject.
type Announcer struct {
	nc      *nats.Conn
	subject string
}

// NewAnnouncer creates an Announcer publishing on "<prefix>.events".
func NewAnnouncer(nc *nats.Conn, prefix string) *Announcer {
	return &Announcer{nc: nc, subject: eventsSubject(prefix)}
}

// Announce publishes the event to the broadcast subject.
func (a *Announcer) Announce(_ context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return subhub.NewErrorWithCause(subhub.ErrCodeValidation, "failed to encode fan-out event", err)
	}
	if err := a.nc.Publish(a.subject, data); err != nil {
		return subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to publish fan-out event", err)
	}
	return nil
}
