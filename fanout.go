package subhub

import (
	"context"

	"github.com/coregx/subhub/model"
)

// Announcer publishes subscription lifecycle events to the cluster-wide bus
// so sibling worker processes converge their in-memory registries. Delivery
// is at-least-once and there is no synchronous barrier: convergence is
// eventual, bounded by transport latency.
//
// Announce is called strictly after the subscription transaction commits;
// an announce failure is logged by the caller and never unwinds the
// committed subscription.
type Announcer interface {
	Announce(ctx context.Context, event model.Event) error
}

// NoopAnnouncer discards all events. Useful for single-process deployments
// and tests.
type NoopAnnouncer struct{}

// Announce implements Announcer as a no-op.
func (NoopAnnouncer) Announce(_ context.Context, _ model.Event) error { return nil }

// Applier applies incoming fan-out events to the local registry. It is the
// receive side of the convergence mechanism: the transport (see
// adapters/nats) decodes events off the bus and hands them here.
//
// Application is idempotent, so at-least-once delivery and replays are safe.
// Events originating from this process are skipped; local state was already
// updated under the topic lock before the event was published.
type Applier struct {
	registry  *Registry
	serverID  int64
	serverPID int
	logger    Logger
}

// NewApplier creates an Applier for the given local process identity.
func NewApplier(registry *Registry, serverID int64, serverPID int, logger Logger) *Applier {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Applier{
		registry:  registry,
		serverID:  serverID,
		serverPID: serverPID,
		logger:    logger,
	}
}

// Apply folds one event into the local registry.
func (a *Applier) Apply(event model.Event) {
	if event.ServerID == a.serverID && event.ServerPID == a.serverPID {
		return
	}

	switch event.Action {
	case model.EventSubscriptionCreated:
		if event.Subscription == nil {
			a.logger.Warnf("Discarding %s event without subscription payload", event.Action)
			return
		}
		a.registry.AddSubscription(*event.Subscription)
		a.logger.Debugf("Applied subscription sk=%s t=%s from server=%d pid=%d",
			event.Subscription.SubKey, event.Subscription.TopicName, event.ServerID, event.ServerPID)

	case model.EventSubscriptionDeleted:
		a.registry.DeleteSubscriptions(event.SubKeys)
		a.logger.Debugf("Applied deletion of %d sub key(s) from server=%d pid=%d",
			len(event.SubKeys), event.ServerID, event.ServerPID)

	case model.EventInteractionUpdated:
		// Interaction metadata lives in the durable store; registries
		// keep no copy of it, so there is nothing to fold in.

	default:
		a.logger.Warnf("Discarding fan-out event with unknown action %q", event.Action)
	}
}
