package subhub

import (
	"context"

	"github.com/coregx/subhub/model"
)

// TopicRepository defines the persistence interface for topics.
type TopicRepository interface {
	// Load retrieves a topic by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Topic, error)

	// Save creates a new topic (if ID=0) or updates an existing one.
	// Returns the saved topic with populated ID.
	Save(ctx context.Context, m model.Topic) (model.Topic, error)

	// GetByName retrieves a topic by its unique name.
	// Returns ErrNoData if not found.
	GetByName(ctx context.Context, name string) (model.Topic, error)

	// ListActive retrieves all active topics, used to warm per-process
	// registries at startup.
	ListActive(ctx context.Context) ([]model.Topic, error)
}

// EndpointRepository defines the persistence interface for endpoints.
type EndpointRepository interface {
	// Load retrieves an endpoint by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Endpoint, error)

	// Save creates a new endpoint (if ID=0) or updates an existing one.
	// Returns the saved endpoint with populated ID.
	Save(ctx context.Context, m model.Endpoint) (model.Endpoint, error)

	// ListActive retrieves all active endpoints, used to warm per-process
	// registries at startup.
	ListActive(ctx context.Context) ([]model.Endpoint, error)
}

// SubscriptionStore defines the persistence interface for subscriptions.
//
// The subscribe-time mutation path runs inside a SubscriptionTx so that the
// subscription insert and the pending-message migration commit or roll back
// as one unit; everything else operates on the store directly.
type SubscriptionStore interface {
	// Begin opens the transaction used by the subscribe operation.
	Begin(ctx context.Context) (SubscriptionTx, error)

	// HasActive reports whether the endpoint holds an active subscription
	// to the topic. Used as the idempotency guard for non-transient
	// endpoint types.
	HasActive(ctx context.Context, topicID, endpointID int64) (bool, error)

	// LoadBySubKey retrieves a subscription by subscriber key.
	// Returns ErrNoData if not found.
	LoadBySubKey(ctx context.Context, subKey string) (model.Subscription, error)

	// ListByEndpoint retrieves all subscriptions of an endpoint,
	// active or not.
	ListByEndpoint(ctx context.Context, endpointID int64) ([]model.Subscription, error)

	// DeleteBySubKeys removes the given subscription rows in one statement.
	DeleteBySubKeys(ctx context.Context, subKeys []string) error

	// UpdateInteraction refreshes last-interaction metadata on all rows
	// matching the given subscriber keys in one statement. The interaction
	// time is stored as Unix milliseconds.
	UpdateInteraction(ctx context.Context, subKeys []string, interaction model.Interaction) error
}

// SubscriptionTx is the transaction boundary of the subscribe operation.
// From the perspective of every other task the steps below are one atomic
// unit: nothing is observable between Insert and Commit, and a failed Commit
// leaves no subscription and no migrated messages behind.
type SubscriptionTx interface {
	// Insert persists the subscription and populates its ID, which the
	// WebSocket linkage needs before commit.
	//
	// Returns an error carrying ErrCodeKeyCollision if the subscriber key
	// already exists, and ErrCodeAlreadySubscribed if the exclusive-key
	// index rejects a duplicate non-transient subscription (the
	// cross-process race guard).
	Insert(ctx context.Context, m *model.Subscription) error

	// MigratePending claims all still-pending messages of the topic for
	// the given subscriber key, stamping now (Unix milliseconds) as each
	// row's queue-entry time, and returns how many were moved. The
	// update claims only rows not yet owned by any subscriber, so
	// concurrent or repeated migration of the same topic moves each
	// message exactly once; when earlier subscribers already claimed the
	// backlog this is a no-op.
	//
	// Must be called while holding the topic lock.
	MigratePending(ctx context.Context, topicID int64, subKey string, now int64) (int, error)

	// DepthDurable returns the durable queue depth for the subscriber key
	// as seen inside this transaction, i.e. including freshly migrated
	// messages.
	DepthDurable(ctx context.Context, subKey string) (int, error)

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. Safe to call after Commit.
	Rollback() error
}

// QueueStore defines the durable queue-partition interface used by delivery
// tasks and the unsubscribe path.
type QueueStore interface {
	// EnqueueDurable appends a GD message to the durable partition. A
	// claimed message lands in its subscriber queue; an unclaimed one is
	// stored pending until the first migration.
	EnqueueDurable(ctx context.Context, m *model.TopicMessage) error

	// DepthDurable returns the number of undelivered durable messages for
	// the subscriber key.
	DepthDurable(ctx context.Context, subKey string) (int, error)

	// FetchDue retrieves up to limit undelivered durable messages for the
	// subscriber key, oldest first.
	FetchDue(ctx context.Context, subKey string, limit int) ([]model.TopicMessage, error)

	// MarkDelivered records successful delivery of the given messages.
	MarkDelivered(ctx context.Context, ids []int64) error

	// DeleteQueues drops all durable messages of the given subscriber
	// keys in one statement, regardless of how many keys are passed.
	DeleteQueues(ctx context.Context, subKeys []string) error
}
