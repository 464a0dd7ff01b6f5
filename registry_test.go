package subhub

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/subhub/model"
)

func testEndpoint(id int64, typ model.EndpointType, patterns ...string) model.Endpoint {
	e := model.NewEndpoint("endpoint", typ, patterns...)
	e.ID = id
	return e
}

func TestRegistry_Topic(t *testing.T) {
	r := NewRegistry()

	_, err := r.Topic("orders.created")
	assert.True(t, IsNotFound(err))

	topic := model.NewTopic("orders.created", true, 1000)
	topic.ID = 1
	r.AddTopic(topic)

	got, err := r.Topic("orders.created")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.True(t, got.HasGD)
}

func TestRegistry_EndpointID(t *testing.T) {
	r := NewRegistry()

	e := testEndpoint(7, model.EndpointREST, "orders.*")
	e.SecurityID = sql.NullInt64{Int64: 101, Valid: true}
	r.AddEndpoint(e)

	wsx := testEndpoint(8, model.EndpointWebSocket, "orders.*")
	wsx.ChannelID = sql.NullInt64{Int64: 202, Valid: true}
	r.AddEndpoint(wsx)

	srv := testEndpoint(9, model.EndpointService, "orders.*")
	srv.ServiceID = sql.NullInt64{Int64: 303, Valid: true}
	r.AddEndpoint(srv)

	tests := []struct {
		name       string
		descriptor Descriptor
		want       int64
	}{
		{"by endpoint ID", Descriptor{EndpointID: 7}, 7},
		{"by security ID", Descriptor{SecurityID: 101}, 7},
		{"by channel ID", Descriptor{ChannelID: 202}, 8},
		{"by service ID", Descriptor{ServiceID: 303}, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := r.EndpointID(tt.descriptor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestRegistry_EndpointID_Unresolvable(t *testing.T) {
	r := NewRegistry()

	// Empty descriptor and unknown IDs are caller bugs, not permission
	// denials.
	for _, d := range []Descriptor{{}, {EndpointID: 99}, {SecurityID: 99}} {
		_, err := r.EndpointID(d)
		require.Error(t, err)
		assert.True(t, IsConfiguration(err))
		assert.False(t, IsForbidden(err))
	}
}

func TestRegistry_IsSubscribeAllowed(t *testing.T) {
	r := NewRegistry()
	r.AddEndpoint(testEndpoint(1, model.EndpointREST, "orders.*", "invoices.sent"))

	pattern, err := r.IsSubscribeAllowed("orders.created", 1)
	require.NoError(t, err)
	assert.Equal(t, "orders.*", pattern)

	pattern, err = r.IsSubscribeAllowed("invoices.sent", 1)
	require.NoError(t, err)
	assert.Equal(t, "invoices.sent", pattern)

	_, err = r.IsSubscribeAllowed("users.created", 1)
	assert.True(t, IsForbidden(err))
}

func TestMatchTopicPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"orders.created", "orders.created", true},
		{"orders.created", "orders.deleted", false},
		{"orders.*", "orders.created", true},
		{"orders.*", "orders.eu.created", true},
		{"orders.*", "invoices.sent", false},
		{"*.created", "orders.created", true},
		{"*.created", "orders.deleted", false},
		{"*", "anything.at.all", true},
		{"orders.*.created", "orders.eu.created", true},
		{"orders.*.created", "orders.created", false},
		{"", "orders.created", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchTopicPattern(tt.pattern, tt.name))
		})
	}
}

func TestRegistry_Subscriptions(t *testing.T) {
	r := NewRegistry()

	snap := model.Snapshot{SubKey: "sk.rest.1", TopicName: "orders.created"}
	r.AddSubscription(snap)
	r.AddSubscription(model.Snapshot{SubKey: "sk.rest.2", TopicName: "orders.created"})
	r.AddSubscription(model.Snapshot{SubKey: "sk.rest.3", TopicName: "invoices.sent"})

	got, ok := r.Subscription("sk.rest.1")
	require.True(t, ok)
	assert.Equal(t, snap, got)

	assert.Len(t, r.SubscriptionsByTopic("orders.created"), 2)
	assert.Len(t, r.SubscriptionsByTopic("invoices.sent"), 1)
	assert.Nil(t, r.SubscriptionsByTopic("unknown"))
	assert.Len(t, r.Subscriptions(), 3)
	assert.True(t, r.HasSubscribers("orders.created"))
	assert.False(t, r.HasSubscribers("unknown"))
}

func TestRegistry_AddSubscription_Idempotent(t *testing.T) {
	r := NewRegistry()

	r.AddSubscription(model.Snapshot{SubKey: "sk.rest.1", TopicName: "orders.created"})
	r.AddSubscription(model.Snapshot{SubKey: "sk.rest.1", TopicName: "orders.created", DeliveryBatchSize: 10})

	assert.Len(t, r.SubscriptionsByTopic("orders.created"), 1)
	got, _ := r.Subscription("sk.rest.1")
	assert.Equal(t, 10, got.DeliveryBatchSize)
}

func TestRegistry_DeleteSubscriptions(t *testing.T) {
	r := NewRegistry()
	r.AddSubscription(model.Snapshot{SubKey: "sk.rest.1", TopicName: "orders.created"})
	r.AddSubscription(model.Snapshot{SubKey: "sk.rest.2", TopicName: "orders.created"})

	// Unknown keys are ignored so replayed deletes are no-ops.
	r.DeleteSubscriptions([]string{"sk.rest.1", "sk.unknown"})

	_, ok := r.Subscription("sk.rest.1")
	assert.False(t, ok)
	assert.Len(t, r.SubscriptionsByTopic("orders.created"), 1)

	r.DeleteSubscriptions([]string{"sk.rest.2"})
	assert.False(t, r.HasSubscribers("orders.created"))
}
