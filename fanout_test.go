package subhub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/subhub/model"
)

func snapshotForFanout(subKey string) model.Snapshot {
	return model.Snapshot{
		SubscriptionID: 1,
		SubKey:         subKey,
		TopicName:      "orders.created",
		EndpointID:     7,
		EndpointName:   "billing",
		EndpointType:   model.EndpointREST,
		HasGD:          true,
	}
}

func TestApplier_SkipsOwnEvents(t *testing.T) {
	registry := NewRegistry()
	applier := NewApplier(registry, 3, 999, &NoopLogger{})

	snap := snapshotForFanout("sk.rest.own")
	applier.Apply(model.Event{
		Action:       model.EventSubscriptionCreated,
		Subscription: &snap,
		ServerID:     3,
		ServerPID:    999,
	})

	_, ok := registry.Subscription("sk.rest.own")
	assert.False(t, ok, "events from this process were applied locally already")
}

func TestApplier_SamePIDDifferentServer(t *testing.T) {
	registry := NewRegistry()
	applier := NewApplier(registry, 3, 999, &NoopLogger{})

	snap := snapshotForFanout("sk.rest.sibling")
	applier.Apply(model.Event{
		Action:       model.EventSubscriptionCreated,
		Subscription: &snap,
		ServerID:     4,
		ServerPID:    999,
	})

	_, ok := registry.Subscription("sk.rest.sibling")
	assert.True(t, ok, "identity match requires both server ID and PID")
}

func TestApplier_AppliesCreated(t *testing.T) {
	registry := NewRegistry()
	applier := NewApplier(registry, 3, 999, &NoopLogger{})

	snap := snapshotForFanout("sk.rest.abc")
	event := model.Event{
		Action:       model.EventSubscriptionCreated,
		Subscription: &snap,
		ServerID:     4,
		ServerPID:    1000,
	}

	applier.Apply(event)

	got, ok := registry.Subscription("sk.rest.abc")
	require.True(t, ok)
	assert.Equal(t, "orders.created", got.TopicName)
	assert.Len(t, registry.SubscriptionsByTopic("orders.created"), 1)

	// At-least-once delivery: a replay changes nothing.
	applier.Apply(event)
	assert.Len(t, registry.SubscriptionsByTopic("orders.created"), 1)
}

func TestApplier_CreatedWithoutPayload(t *testing.T) {
	registry := NewRegistry()
	applier := NewApplier(registry, 3, 999, &NoopLogger{})

	applier.Apply(model.Event{
		Action:   model.EventSubscriptionCreated,
		ServerID: 4,
	})

	assert.Empty(t, registry.Subscriptions())
}

func TestApplier_AppliesDeleted(t *testing.T) {
	registry := NewRegistry()
	registry.AddSubscription(snapshotForFanout("sk.rest.abc"))
	applier := NewApplier(registry, 3, 999, &NoopLogger{})

	event := model.Event{
		Action:   model.EventSubscriptionDeleted,
		SubKeys:  []string{"sk.rest.abc", "sk.rest.never-existed"},
		ServerID: 4,
	}

	applier.Apply(event)

	_, ok := registry.Subscription("sk.rest.abc")
	assert.False(t, ok)

	// Replay is a no-op.
	applier.Apply(event)
	assert.Empty(t, registry.Subscriptions())
}

func TestApplier_InteractionEventKeepsRegistryUntouched(t *testing.T) {
	registry := NewRegistry()
	registry.AddSubscription(snapshotForFanout("sk.rest.abc"))
	applier := NewApplier(registry, 3, 999, &NoopLogger{})

	applier.Apply(model.Event{
		Action:          model.EventInteractionUpdated,
		SubKeys:         []string{"sk.rest.abc"},
		InteractionTime: 1700000000000,
		ServerID:        4,
	})

	_, ok := registry.Subscription("sk.rest.abc")
	assert.True(t, ok)
}

func TestApplier_UnknownAction(t *testing.T) {
	registry := NewRegistry()
	applier := NewApplier(registry, 3, 999, &NoopLogger{})

	applier.Apply(model.Event{
		Action:   model.EventAction("topic-exploded"),
		ServerID: 4,
	})

	assert.Empty(t, registry.Subscriptions())
}
