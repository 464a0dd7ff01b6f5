package subhub

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/coregx/subhub/model"
)

// Publisher publishes messages to topics, routing each into the queues of
// all known subscribers — the durable partition for GD subscriptions, the
// transient store for best-effort ones. A GD message published to a topic
// with no subscribers at all is persisted as pending and claimed later by
// the first subscriber's migration.
type Publisher struct {
	registry  *Registry
	queues    QueueStore
	transient *TransientStore
	logger    Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// NewPublisher creates a new Publisher with the provided options.
//
// Required options:
//   - WithPublisherStores: durable queue store and transient store
//   - WithPublisherRegistry: per-process registry
//   - WithPublisherLogger: logger instance
func NewPublisher(opts ...PublisherOption) (*Publisher, error) {
	p := &Publisher{}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	if p.queues == nil || p.transient == nil {
		return nil, NewError(ErrCodeConfiguration, "queue stores are required (use WithPublisherStores)")
	}
	if p.registry == nil {
		return nil, NewError(ErrCodeConfiguration, "Registry is required (use WithPublisherRegistry)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithPublisherLogger)")
	}

	return p, nil
}

// WithPublisherStores sets the queue partitions written by the publisher.
func WithPublisherStores(queues QueueStore, transient *TransientStore) PublisherOption {
	return func(p *Publisher) error {
		if queues == nil {
			return fmt.Errorf("queue store cannot be nil")
		}
		if transient == nil {
			return fmt.Errorf("transient store cannot be nil")
		}
		p.queues = queues
		p.transient = transient
		return nil
	}
}

// WithPublisherRegistry sets the per-process registry.
func WithPublisherRegistry(registry *Registry) PublisherOption {
	return func(p *Publisher) error {
		if registry == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		p.registry = registry
		return nil
	}
}

// WithPublisherLogger sets the logger instance.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(p *Publisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// PublishRequest represents a request to publish a message.
type PublishRequest struct {
	TopicName string // Topic to publish to (required)
	Data      string // Message payload
	HasGD     *bool  // Explicit durability override; nil inherits the topic default
}

// PublishResult represents the result of a publish operation.
type PublishResult struct {
	MsgID      string   // Assigned message ID
	Enqueued   int      // Queues the message was routed into
	SubKeys    []string // Subscriber keys that received a copy
	IsPending  bool     // True when the message was stored unclaimed (GD, no subscribers)
	WasDropped bool     // True when a non-GD message found no subscribers
}

// Publish routes one message to the topic's subscribers.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if req.TopicName == "" {
		return nil, NewError(ErrCodeValidation, "topic name is required")
	}

	topic, err := p.registry.Topic(req.TopicName)
	if err != nil {
		return nil, err
	}

	hasGD := topic.HasGD
	if req.HasGD != nil {
		hasGD = *req.HasGD
	}

	msgID := uuid.NewString()
	result := &PublishResult{MsgID: msgID}

	subs := p.registry.SubscriptionsByTopic(topic.Name)
	if len(subs) == 0 {
		if !hasGD {
			// Best-effort messages cannot pend: with no subscriber to
			// claim them they are dropped.
			p.logger.Debugf("Dropped non-GD message %s: topic %s has no subscribers", msgID, topic.Name)
			result.WasDropped = true
			return result, nil
		}

		m := model.NewTopicMessage(msgID, topic.ID, true, req.Data)
		if err := p.queues.EnqueueDurable(ctx, &m); err != nil {
			return nil, err
		}
		result.IsPending = true
		p.logger.Debugf("Stored pending message %s for topic %s", msgID, topic.Name)
		return result, nil
	}

	for _, sub := range subs {
		m := model.NewTopicMessage(msgID, topic.ID, sub.HasGD, req.Data)
		m.Claim(sub.SubKey)

		if sub.HasGD {
			if err := p.queues.EnqueueDurable(ctx, &m); err != nil {
				return nil, err
			}
		} else {
			p.transient.Enqueue(sub.SubKey, m)
		}
		result.Enqueued++
		result.SubKeys = append(result.SubKeys, sub.SubKey)
	}

	p.logger.Infof("Published %s to t=%s, %d queue(s)", msgID, topic.Name, result.Enqueued)
	return result, nil
}
