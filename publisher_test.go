package subhub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/subhub/model"
)

type publisherRig struct {
	publisher *Publisher
	backend   *memBackend
	transient *TransientStore
	registry  *Registry
}

func newPublisherRig(t *testing.T) *publisherRig {
	t.Helper()

	backend := newMemBackend()
	transient := NewTransientStore()
	registry := NewRegistry()

	publisher, err := NewPublisher(
		WithPublisherStores(backend, transient),
		WithPublisherRegistry(registry),
		WithPublisherLogger(&NoopLogger{}),
	)
	require.NoError(t, err)

	return &publisherRig{
		publisher: publisher,
		backend:   backend,
		transient: transient,
		registry:  registry,
	}
}

func (r *publisherRig) addTopic(id int64, name string, hasGD bool) {
	topic := model.NewTopic(name, hasGD, 1000)
	topic.ID = id
	r.registry.AddTopic(topic)
}

func (r *publisherRig) addSubscriber(subKey, topicName string, hasGD bool) {
	r.registry.AddSubscription(model.Snapshot{
		SubKey:    subKey,
		TopicName: topicName,
		HasGD:     hasGD,
	})
}

func TestNewPublisher_MissingDependencies(t *testing.T) {
	_, err := NewPublisher()
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestPublish_ValidationAndUnknownTopic(t *testing.T) {
	rig := newPublisherRig(t)

	_, err := rig.publisher.Publish(context.Background(), PublishRequest{})
	require.Error(t, err)
	assert.True(t, isCode(err, ErrCodeValidation))

	_, err = rig.publisher.Publish(context.Background(), PublishRequest{TopicName: "ghost"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestPublish_GDNoSubscribersPends(t *testing.T) {
	rig := newPublisherRig(t)
	rig.addTopic(1, "orders.created", true)

	res, err := rig.publisher.Publish(context.Background(), PublishRequest{
		TopicName: "orders.created",
		Data:      `{"order":1}`,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.MsgID)
	assert.True(t, res.IsPending)
	assert.False(t, res.WasDropped)
	assert.Equal(t, 0, res.Enqueued)

	// The pending row is unclaimed and waits for the first migration.
	require.Len(t, rig.backend.messages, 1)
	assert.True(t, rig.backend.messages[0].IsPending())
}

func TestPublish_NonGDNoSubscribersDrops(t *testing.T) {
	rig := newPublisherRig(t)
	rig.addTopic(1, "metrics.tick", false)

	res, err := rig.publisher.Publish(context.Background(), PublishRequest{
		TopicName: "metrics.tick",
		Data:      "42",
	})
	require.NoError(t, err)

	assert.True(t, res.WasDropped)
	assert.False(t, res.IsPending)
	assert.Empty(t, rig.backend.messages)
}

func TestPublish_RoutesPerSubscriberDurability(t *testing.T) {
	rig := newPublisherRig(t)
	rig.addTopic(1, "orders.created", true)
	rig.addSubscriber("sk.rest.durable", "orders.created", true)
	rig.addSubscriber("sk.wsx.transient", "orders.created", false)

	res, err := rig.publisher.Publish(context.Background(), PublishRequest{
		TopicName: "orders.created",
		Data:      `{"order":1}`,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Enqueued)
	assert.ElementsMatch(t, []string{"sk.rest.durable", "sk.wsx.transient"}, res.SubKeys)

	// Each subscriber got a copy in its own partition.
	depth, err := rig.backend.DepthDurable(context.Background(), "sk.rest.durable")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
	assert.Equal(t, 1, rig.transient.Depth("sk.wsx.transient"))

	// Copies share the message ID but are claimed individually.
	fetched, err := rig.backend.FetchDue(context.Background(), "sk.rest.durable", 10)
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	assert.Equal(t, res.MsgID, fetched[0].MsgID)
	assert.False(t, fetched[0].IsPending())
}

func TestPublish_GDOverride(t *testing.T) {
	rig := newPublisherRig(t)
	rig.addTopic(1, "orders.created", true)

	// Forcing non-GD on a GD topic with no subscribers drops instead of
	// pending.
	hasGD := false
	res, err := rig.publisher.Publish(context.Background(), PublishRequest{
		TopicName: "orders.created",
		Data:      "x",
		HasGD:     &hasGD,
	})
	require.NoError(t, err)
	assert.True(t, res.WasDropped)
	assert.Empty(t, rig.backend.messages)
}

func TestPublish_UniqueMessageIDs(t *testing.T) {
	rig := newPublisherRig(t)
	rig.addTopic(1, "orders.created", true)

	res1, err := rig.publisher.Publish(context.Background(), PublishRequest{TopicName: "orders.created"})
	require.NoError(t, err)
	res2, err := rig.publisher.Publish(context.Background(), PublishRequest{TopicName: "orders.created"})
	require.NoError(t, err)

	assert.NotEqual(t, res1.MsgID, res2.MsgID)
}
