package subhub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/subhub/model"
	"github.com/coregx/subhub/retry"
)

// DeliveryGateway hands a batch of messages to a subscriber endpoint. The
// transport behind it (HTTP callback, internal service invocation, socket
// push) is outside this engine; implementations return an error for any
// failed delivery to trigger the retry mechanism.
type DeliveryGateway interface {
	Deliver(ctx context.Context, sub model.Snapshot, messages []model.TopicMessage) error
}

// DeliveryTask drains subscriber queues and hands their messages to a
// DeliveryGateway, with bounded retries. When a subscriber exhausts its
// retry budget the per-subscription policy decides what happens: a
// block-on-error subscription wedges (no further attempts until the
// subscriber is explicitly unblocked), otherwise the failed batch is
// dropped and delivery continues.
//
// Socket-delivered subscriptions are skipped; their backlog is pushed by
// the Binder.
//
// Thread safety: safe for concurrent use. Each batch is processed
// sequentially.
type DeliveryTask struct {
	queues    QueueStore
	transient *TransientStore
	registry  *Registry
	gateway   DeliveryGateway
	strategy  retry.Strategy
	logger    Logger

	mu      sync.Mutex
	blocked map[string]struct{} // wedged subscriber keys
}

// DeliveryOption is a function that configures a DeliveryTask.
type DeliveryOption func(*DeliveryTask) error

// NewDeliveryTask creates a new delivery task with the provided options.
//
// Required options:
//   - WithDeliveryStores: durable queue store and transient store
//   - WithDeliveryRegistry: per-process registry
//   - WithGateway: delivery gateway
//   - WithDeliveryLogger: logger instance
//
// Optional options:
//   - WithRetryStrategy: custom retry strategy (default: retry.DefaultStrategy())
func NewDeliveryTask(opts ...DeliveryOption) (*DeliveryTask, error) {
	t := &DeliveryTask{
		strategy: retry.DefaultStrategy(),
		blocked:  make(map[string]struct{}),
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply delivery option", err)
		}
	}

	if t.queues == nil || t.transient == nil {
		return nil, NewError(ErrCodeConfiguration, "queue stores are required (use WithDeliveryStores)")
	}
	if t.registry == nil {
		return nil, NewError(ErrCodeConfiguration, "Registry is required (use WithDeliveryRegistry)")
	}
	if t.gateway == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryGateway is required (use WithGateway)")
	}
	if t.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithDeliveryLogger)")
	}

	return t, nil
}

// WithDeliveryStores sets the queue partitions drained by the task.
func WithDeliveryStores(queues QueueStore, transient *TransientStore) DeliveryOption {
	return func(t *DeliveryTask) error {
		if queues == nil {
			return fmt.Errorf("queue store cannot be nil")
		}
		if transient == nil {
			return fmt.Errorf("transient store cannot be nil")
		}
		t.queues = queues
		t.transient = transient
		return nil
	}
}

// WithDeliveryRegistry sets the per-process registry the task enumerates
// subscriptions from.
func WithDeliveryRegistry(registry *Registry) DeliveryOption {
	return func(t *DeliveryTask) error {
		if registry == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		t.registry = registry
		return nil
	}
}

// WithGateway sets the delivery gateway.
func WithGateway(gateway DeliveryGateway) DeliveryOption {
	return func(t *DeliveryTask) error {
		if gateway == nil {
			return fmt.Errorf("gateway cannot be nil")
		}
		t.gateway = gateway
		return nil
	}
}

// WithRetryStrategy sets a custom retry strategy.
func WithRetryStrategy(strategy retry.Strategy) DeliveryOption {
	return func(t *DeliveryTask) error {
		t.strategy = strategy
		return nil
	}
}

// WithDeliveryLogger sets the logger instance.
func WithDeliveryLogger(logger Logger) DeliveryOption {
	return func(t *DeliveryTask) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		t.logger = logger
		return nil
	}
}

// IsBlocked reports whether the subscriber key is wedged after exhausting
// its retry budget with block-on-error enabled.
func (t *DeliveryTask) IsBlocked(subKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.blocked[subKey]
	return ok
}

// Unblock clears the wedged state of a subscriber key so delivery attempts
// resume on the next cycle.
func (t *DeliveryTask) Unblock(subKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.blocked, subKey)
}

// ProcessAll runs one delivery cycle over every known subscription.
// Returns the number of messages delivered. Individual subscriber failures
// are logged and do not stop the cycle.
func (t *DeliveryTask) ProcessAll(ctx context.Context) (int, error) {
	delivered := 0
	for _, sub := range t.registry.Subscriptions() {
		if sub.DeliveryMethod == model.DeliveryWebSocket || sub.DeliveryMethod == model.DeliveryPull {
			continue
		}
		n, err := t.ProcessSubscriber(ctx, sub)
		delivered += n
		if err != nil {
			t.logger.Errorf("Delivery cycle failed for sk=%s: %v", sub.SubKey, err)
		}
	}
	return delivered, nil
}

// ProcessSubscriber drains one subscriber's queue: the durable partition in
// batches, then the transient partition.
func (t *DeliveryTask) ProcessSubscriber(ctx context.Context, sub model.Snapshot) (int, error) {
	if t.IsBlocked(sub.SubKey) {
		return 0, nil
	}

	batchSize := sub.DeliveryBatchSize
	if batchSize <= 0 {
		batchSize = model.DefaultDeliveryBatchSize
	}

	delivered := 0
	for {
		batch, err := t.queues.FetchDue(ctx, sub.SubKey, batchSize)
		if err != nil && !IsNoData(err) {
			return delivered, err
		}
		if len(batch) == 0 {
			break
		}

		if err := t.deliverWithRetry(ctx, sub, batch); err != nil {
			return delivered, err
		}

		ids := make([]int64, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
		}
		if err := t.queues.MarkDelivered(ctx, ids); err != nil {
			return delivered, err
		}
		delivered += len(batch)

		if len(batch) < batchSize {
			break
		}
	}

	if transientBatch := t.transient.Dequeue(sub.SubKey, batchSize); len(transientBatch) > 0 {
		if err := t.deliverWithRetry(ctx, sub, transientBatch); err != nil {
			// Transient messages are gone either way; the dequeue was
			// their one shot unless the subscriber wedged first.
			return delivered, err
		}
		delivered += len(transientBatch)
	}

	return delivered, nil
}

// deliverWithRetry attempts one batch with exponential backoff. On
// exhaustion it applies the subscription's failure policy.
func (t *DeliveryTask) deliverWithRetry(ctx context.Context, sub model.Snapshot, batch []model.TopicMessage) error {
	maxAttempts := sub.MaxDeliveryRetry
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := t.strategy.CalculateRetryDelay(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = t.gateway.Deliver(ctx, sub, batch); lastErr == nil {
			return nil
		}
		t.logger.Warnf("Delivery attempt %d/%d failed for sk=%s: %v", attempt+1, maxAttempts, sub.SubKey, lastErr)
	}

	if sub.BlockOnError {
		t.mu.Lock()
		t.blocked[sub.SubKey] = struct{}{}
		t.mu.Unlock()
		t.logger.Errorf("Subscriber sk=%s blocked after %d failed attempt(s)", sub.SubKey, maxAttempts)
		return NewErrorWithCause(ErrCodeDelivery,
			fmt.Sprintf("subscriber %s blocked after exhausted retries", sub.SubKey), lastErr)
	}

	// Drop-and-continue policy: clear the failed durable batch so the
	// queue keeps moving.
	ids := make([]int64, 0, len(batch))
	for i := range batch {
		if batch[i].ID != 0 {
			ids = append(ids, batch[i].ID)
		}
	}
	t.logger.Warnf("Dropped %d message(s) for sk=%s after exhausted retries", len(batch), sub.SubKey)
	if len(ids) > 0 {
		return t.queues.MarkDelivered(ctx, ids)
	}
	return nil
}

// Run processes delivery cycles at the given interval until the context is
// cancelled.
func (t *DeliveryTask) Run(ctx context.Context, interval time.Duration) {
	t.logger.Infof("Delivery task started, interval %v", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Delivery task stopped")
			return
		case <-ticker.C:
			if n, err := t.ProcessAll(ctx); err != nil {
				t.logger.Errorf("Delivery cycle error: %v", err)
			} else if n > 0 {
				t.logger.Debugf("Delivery cycle moved %d message(s)", n)
			}
		}
	}
}
