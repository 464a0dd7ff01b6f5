package subhub

import (
	"context"
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/subhub/model"
)

// Coordinator orchestrates the end-to-end subscribe operation: validation,
// permission check, idempotency enforcement, key allocation, persistence,
// pending-message migration and fan-out. It also owns the unsubscribe and
// interaction-metadata paths.
//
// Thread safety: safe for concurrent use. Subscribe operations against the
// same topic are serialized through the LockRegistry.
type Coordinator struct {
	subs      SubscriptionStore
	queues    QueueStore
	transient *TransientStore
	registry  *Registry
	locks     *LockRegistry
	announcer Announcer
	binder    *Binder
	logger    Logger

	serverID  int64
	serverPID int
}

// CoordinatorOption is a function that configures a Coordinator.
type CoordinatorOption func(*Coordinator) error

// NewCoordinator creates a new Coordinator with the provided options.
//
// Required options:
//   - WithStores: subscription store, durable queue store, transient store
//   - WithRegistry: per-process topic/endpoint registry
//   - WithLocks: per-topic lock registry
//   - WithCoordinatorLogger: logger instance
//
// Optional options:
//   - WithAnnouncer: fan-out client (default: NoopAnnouncer)
//   - WithBinder: WebSocket binding tool (required only when WebSocket
//     endpoints subscribe)
//   - WithServerIdentity: originating server ID and PID carried on fan-out
//     events (default: 0 and the current process ID)
func NewCoordinator(opts ...CoordinatorOption) (*Coordinator, error) {
	c := &Coordinator{
		announcer: NoopAnnouncer{},
		serverPID: os.Getpid(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply coordinator option", err)
		}
	}

	// Validate required dependencies
	if c.subs == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionStore is required (use WithStores)")
	}
	if c.queues == nil {
		return nil, NewError(ErrCodeConfiguration, "QueueStore is required (use WithStores)")
	}
	if c.transient == nil {
		return nil, NewError(ErrCodeConfiguration, "TransientStore is required (use WithStores)")
	}
	if c.registry == nil {
		return nil, NewError(ErrCodeConfiguration, "Registry is required (use WithRegistry)")
	}
	if c.locks == nil {
		return nil, NewError(ErrCodeConfiguration, "LockRegistry is required (use WithLocks)")
	}
	if c.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithCoordinatorLogger)")
	}

	return c, nil
}

// WithStores sets the persistence dependencies for the coordinator.
// All three stores are required and must not be nil.
func WithStores(subs SubscriptionStore, queues QueueStore, transient *TransientStore) CoordinatorOption {
	return func(c *Coordinator) error {
		if subs == nil {
			return fmt.Errorf("subscription store cannot be nil")
		}
		if queues == nil {
			return fmt.Errorf("queue store cannot be nil")
		}
		if transient == nil {
			return fmt.Errorf("transient store cannot be nil")
		}
		c.subs = subs
		c.queues = queues
		c.transient = transient
		return nil
	}
}

// WithRegistry sets the per-process registry.
func WithRegistry(registry *Registry) CoordinatorOption {
	return func(c *Coordinator) error {
		if registry == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		c.registry = registry
		return nil
	}
}

// WithLocks sets the per-topic lock registry.
func WithLocks(locks *LockRegistry) CoordinatorOption {
	return func(c *Coordinator) error {
		if locks == nil {
			return fmt.Errorf("lock registry cannot be nil")
		}
		c.locks = locks
		return nil
	}
}

// WithAnnouncer sets the fan-out client used to announce committed
// subscription changes to sibling processes.
func WithAnnouncer(announcer Announcer) CoordinatorOption {
	return func(c *Coordinator) error {
		if announcer == nil {
			return fmt.Errorf("announcer cannot be nil")
		}
		c.announcer = announcer
		return nil
	}
}

// WithBinder sets the WebSocket binding tool.
func WithBinder(binder *Binder) CoordinatorOption {
	return func(c *Coordinator) error {
		if binder == nil {
			return fmt.Errorf("binder cannot be nil")
		}
		c.binder = binder
		return nil
	}
}

// WithServerIdentity sets the originating server identity carried on
// fan-out events.
func WithServerIdentity(serverID int64, serverPID int) CoordinatorOption {
	return func(c *Coordinator) error {
		c.serverID = serverID
		c.serverPID = serverPID
		return nil
	}
}

// WithCoordinatorLogger sets the logger instance for the coordinator.
func WithCoordinatorLogger(logger Logger) CoordinatorOption {
	return func(c *Coordinator) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// SubscribeRequest represents a request to subscribe an endpoint to one
// topic.
type SubscribeRequest struct {
	TopicName  string     // Topic to subscribe to (required)
	Descriptor Descriptor // Identity of the subscribing principal (required)

	HasGD *bool // Explicit durability override; nil inherits the topic default

	DeliveryBatchSize int  // Optional; default model.DefaultDeliveryBatchSize
	MaxDeliveryRetry  int  // Optional; 0 means deliver once, no retry
	BlockOnError      bool // Wedge the queue on exhausted retries instead of dropping

	ExtClientID  string // External client ID, folded into the subscriber key
	UnsubOnClose bool   // WebSocket only: delete the subscription on disconnect
	Conn         Conn   // WebSocket only: the live connection to bind

	IsAPICall bool // Marks the fan-out event as API-triggered
}

// Validate checks the request shape. Identity resolution and permission
// checks happen later, inside Subscribe.
func (r SubscribeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TopicName, validation.Required),
		validation.Field(&r.DeliveryBatchSize, validation.Min(0), validation.Max(10000)),
		validation.Field(&r.MaxDeliveryRetry, validation.Min(0)),
	)
}

// SubscribeResult is the response of a successful subscribe.
type SubscribeResult struct {
	SubKey     string // Allocated subscriber key
	QueueDepth int    // Queue depth evaluated post-migration
	Migrated   int    // Pending messages migrated into the new queue
}

// Subscribe creates one subscription.
//
// The operation is serialized per topic through the lock registry and runs
// its persistence steps (insert, pending-message migration, depth read) in a
// single transaction: a failed commit leaves no subscription and no migrated
// messages behind. The fan-out announcement happens strictly after commit.
//
// Depth accounting: WebSocket subscribers report durable + transient depth;
// other subscribers report the durable partition only, matching the
// reference behavior this engine replaces.
//
// Errors: CONFIGURATION_ERROR (descriptor unresolvable), LOCK_TIMEOUT
// (retryable), FORBIDDEN (ACL miss, nothing mutated), NOT_FOUND (no such
// topic), ALREADY_SUBSCRIBED (non-transient duplicate), PERSISTENCE_FAILURE
// (rolled back, retryable), KEY_COLLISION (fatal).
func (c *Coordinator) Subscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid subscribe request", err)
	}

	// Resolve the endpoint before anything else; an unresolvable
	// descriptor is a caller bug, not a permission denial.
	endpointID, err := c.registry.EndpointID(req.Descriptor)
	if err != nil {
		return nil, err
	}

	release, err := c.locks.Acquire(ctx, req.TopicName)
	if err != nil {
		return nil, err
	}
	defer release()

	return c.subscribeLocked(ctx, req, endpointID)
}

// subscribeLocked runs the subscribe algorithm while holding the topic lock.
func (c *Coordinator) subscribeLocked(ctx context.Context, req SubscribeRequest, endpointID int64) (*SubscribeResult, error) {
	pattern, err := c.registry.IsSubscribeAllowed(req.TopicName, endpointID)
	if err != nil {
		return nil, err
	}

	topic, err := c.registry.Topic(req.TopicName)
	if err != nil {
		return nil, err
	}

	endpoint, err := c.registry.Endpoint(endpointID)
	if err != nil {
		return nil, err
	}
	isSocket := endpoint.Type == model.EndpointWebSocket
	if isSocket && c.binder == nil {
		return nil, NewError(ErrCodeConfiguration, "WebSocket subscription without a configured binder")
	}
	if isSocket && req.Conn == nil {
		return nil, NewError(ErrCodeConfiguration, "WebSocket subscription without a live connection")
	}

	// Effective durability: explicit override, else the topic default.
	hasGD := topic.HasGD
	if req.HasGD != nil {
		hasGD = *req.HasGD
	}

	// Non-transient endpoint types hold at most one active subscription
	// per topic. Transient types skip the check: a new physical
	// connection always creates a new subscription.
	if !endpoint.Type.IsTransient() {
		exists, err := c.subs.HasActive(ctx, topic.ID, endpointID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, NewError(ErrCodeAlreadySubscribed,
				fmt.Sprintf("endpoint %q is already subscribed to topic %q", endpoint.Name, topic.Name))
		}
	}

	subKey := NewSubKey(endpoint.Type, req.ExtClientID)

	sub := model.NewSubscription(subKey, endpointID, topic.ID, endpoint.Type, hasGD, pattern)
	sub.ExtClientID = req.ExtClientID
	sub.UnsubOnClose = isSocket && req.UnsubOnClose
	sub.BlockOnError = req.BlockOnError
	if req.DeliveryBatchSize > 0 {
		sub.DeliveryBatchSize = req.DeliveryBatchSize
	}
	if req.MaxDeliveryRetry > 0 {
		sub.MaxDeliveryRetry = req.MaxDeliveryRetry
	}

	tx, err := c.subs.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// The subscription ID is needed before commit for socket linkage, so
	// the insert flushes immediately.
	if err := tx.Insert(ctx, &sub); err != nil {
		return nil, err
	}

	// There may be several cases depending on whether the topic already
	// has subscribers or messages:
	//
	//   - other subscribers exist: their subscribe calls already claimed
	//     the backlog, so nothing moves here
	//   - no subscribers but pending messages: this subscriber becomes
	//     their sole recipient
	//   - neither: a no-op
	migrated, err := tx.MigratePending(ctx, topic.ID, subKey, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}

	depth, err := tx.DepthDurable(ctx, subKey)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, NewErrorWithCause(ErrCodePersistence, "subscription transaction commit failed", err)
	}

	snapshot := sub.Snapshot(topic.Name, endpoint.Name)
	c.registry.AddSubscription(snapshot)

	c.logger.Infof("Subscription created id=%d t=%s sk=%s patt=%s", sub.ID, topic.Name, subKey, pattern)

	// Fan-out strictly after commit: sibling processes must never observe
	// a subscription that could still be rolled back. A failed announce
	// is logged only; the subscription is durable and the bus converges
	// eventually.
	c.announce(ctx, model.Event{
		Action:       model.EventSubscriptionCreated,
		Subscription: &snapshot,
		IsAPICall:    req.IsAPICall,
	})

	if isSocket {
		c.binder.Bind(subKey, req.Conn, sub.UnsubOnClose)

		// A brand-new subscription can only have durable backlog: non-GD
		// messages cannot exist before the first subscriber does.
		if migrated > 0 {
			if err := c.binder.Drain(ctx, subKey); err != nil {
				c.logger.Warnf("Initial drain of sk=%s failed: %v", subKey, err)
			}
			var derr error
			depth, derr = c.queues.DepthDurable(ctx, subKey)
			if derr != nil {
				return nil, derr
			}
		}
		depth += c.transient.Depth(subKey)
	}

	return &SubscribeResult{SubKey: subKey, QueueDepth: depth, Migrated: migrated}, nil
}

// SubscribeManyRequest represents the batch subscribe form: an ordered list
// of topics subscribed with otherwise identical parameters.
type SubscribeManyRequest struct {
	TopicNames []string
	Request    SubscribeRequest // TopicName field ignored
}

// TopicResult reports the per-topic outcome of a batch subscribe.
type TopicResult struct {
	TopicName  string
	SubKey     string
	QueueDepth int
	Err        error
}

// SubscribeMany subscribes to every topic in the list.
//
// Permission is validated for every topic before any subscription is
// attempted; if any topic fails the gate, the whole batch aborts with
// FORBIDDEN and nothing is created. After the gate passes, topics are
// subscribed sequentially and a later failure (e.g. ALREADY_SUBSCRIBED)
// does not roll back earlier successes: batching is deliberately
// best-effort, and the caller receives one result per topic.
func (c *Coordinator) SubscribeMany(ctx context.Context, req SubscribeManyRequest) ([]TopicResult, error) {
	if len(req.TopicNames) == 0 {
		return nil, NewError(ErrCodeValidation, "no topics to subscribe to were given on input")
	}

	endpointID, err := c.registry.EndpointID(req.Request.Descriptor)
	if err != nil {
		return nil, err
	}

	// All-or-nothing admission gate.
	for _, name := range req.TopicNames {
		if _, err := c.registry.IsSubscribeAllowed(name, endpointID); err != nil {
			c.logger.Warnf("Batch subscribe rejected: endpoint=%d topic=%s: %v", endpointID, name, err)
			return nil, err
		}
	}

	results := make([]TopicResult, 0, len(req.TopicNames))
	for _, name := range req.TopicNames {
		single := req.Request
		single.TopicName = name

		res, err := c.Subscribe(ctx, single)
		if err != nil {
			results = append(results, TopicResult{TopicName: name, Err: err})
			continue
		}
		results = append(results, TopicResult{TopicName: name, SubKey: res.SubKey, QueueDepth: res.QueueDepth})
	}
	return results, nil
}

// UnsubscribeEndpoint deletes all subscriptions of the endpoint. Queue
// deletion is batched: one durable delete call carries every subscriber key
// regardless of how many subscriptions the endpoint held.
//
// Returns the deleted subscriber keys.
func (c *Coordinator) UnsubscribeEndpoint(ctx context.Context, endpointID int64) ([]string, error) {
	subs, err := c.subs.ListByEndpoint(ctx, endpointID)
	if err != nil {
		if IsNoData(err) {
			return nil, nil
		}
		return nil, err
	}

	subKeys := make([]string, 0, len(subs))
	for _, s := range subs {
		subKeys = append(subKeys, s.SubKey)
	}
	return subKeys, c.deleteSubKeys(ctx, subKeys)
}

// Unsubscribe deletes a single subscription by subscriber key.
func (c *Coordinator) Unsubscribe(ctx context.Context, subKey string) error {
	if _, err := c.subs.LoadBySubKey(ctx, subKey); err != nil {
		if IsNoData(err) {
			return NewError(ErrCodeNotFound, fmt.Sprintf("no subscription with key %q", subKey))
		}
		return err
	}
	return c.deleteSubKeys(ctx, []string{subKey})
}

// HandleSocketClose is invoked when a WebSocket connection closes. It
// unbinds every subscriber key bound to the connection and deletes the
// subscriptions that were created with unsubscribe-on-close enabled.
func (c *Coordinator) HandleSocketClose(ctx context.Context, connKey string) error {
	if c.binder == nil {
		return nil
	}
	unsub := c.binder.HandleClose(connKey)
	if len(unsub) == 0 {
		return nil
	}
	return c.deleteSubKeys(ctx, unsub)
}

// deleteSubKeys removes subscription rows, both queue partitions, bindings
// and registry entries for the given keys, then announces one delete event
// carrying the whole key list.
func (c *Coordinator) deleteSubKeys(ctx context.Context, subKeys []string) error {
	if len(subKeys) == 0 {
		return nil
	}

	if err := c.subs.DeleteBySubKeys(ctx, subKeys); err != nil {
		return err
	}
	if err := c.queues.DeleteQueues(ctx, subKeys); err != nil {
		return err
	}
	c.transient.DeleteQueues(subKeys)

	if c.binder != nil {
		for _, key := range subKeys {
			c.binder.Unbind(key)
		}
	}
	c.registry.DeleteSubscriptions(subKeys)

	c.logger.Infof("Deleted %d subscription(s): %v", len(subKeys), subKeys)

	c.announce(ctx, model.Event{
		Action:  model.EventSubscriptionDeleted,
		SubKeys: subKeys,
	})
	return nil
}

// UpdateInteraction refreshes last-interaction metadata (remote address,
// user agent, source, time) on every subscription row matching the given
// keys, in one statement. Timestamps are normalized to Unix milliseconds
// before storage.
func (c *Coordinator) UpdateInteraction(ctx context.Context, subKeys []string, interaction model.Interaction) error {
	if len(subKeys) == 0 {
		return NewError(ErrCodeValidation, "at least one subscriber key is required")
	}
	if interaction.Time.IsZero() {
		interaction.Time = time.Now()
	}

	if err := c.subs.UpdateInteraction(ctx, subKeys, interaction); err != nil {
		return err
	}

	c.announce(ctx, model.Event{
		Action:             model.EventInteractionUpdated,
		SubKeys:            subKeys,
		InteractionTime:    interaction.TimeMS(),
		InteractionSource:  interaction.Source,
		InteractionDetails: interaction.Details(),
	})
	return nil
}

func (c *Coordinator) announce(ctx context.Context, event model.Event) {
	event.ServerID = c.serverID
	event.ServerPID = c.serverPID
	if err := c.announcer.Announce(ctx, event); err != nil {
		c.logger.Errorf("Fan-out announce failed for %s: %v", event.Action, err)
	}
}
