package model

// EventAction identifies the kind of subscription lifecycle event carried on
// the fan-out bus.
type EventAction string

const (
	// EventSubscriptionCreated announces a freshly committed subscription.
	EventSubscriptionCreated EventAction = "subscription-created"

	// EventSubscriptionDeleted announces deletion of one or more
	// subscriptions; the event carries a subscriber key list.
	EventSubscriptionDeleted EventAction = "subscription-deleted"

	// EventInteractionUpdated announces refreshed last-interaction
	// metadata for a set of subscriber keys.
	EventInteractionUpdated EventAction = "interaction-updated"
)

// Snapshot is the registry-visible view of a subscription, carried in full
// by creation events so sibling processes can converge their in-memory
// registries without querying the database.
type Snapshot struct {
	SubscriptionID int64        `json:"subscriptionID"`
	SubKey         string       `json:"subKey"`
	TopicName      string       `json:"topicName"`
	EndpointID     int64        `json:"endpointID"`
	EndpointName   string       `json:"endpointName"`
	EndpointType   EndpointType `json:"endpointType"`
	HasGD          bool         `json:"hasGD"`
	SubPattern     string       `json:"subPattern"`
	DeliveryMethod string       `json:"deliveryMethod"`

	DeliveryBatchSize int  `json:"deliveryBatchSize"`
	MaxDeliveryRetry  int  `json:"maxDeliveryRetry"`
	BlockOnError      bool `json:"blockOnError"`

	UnsubOnClose bool   `json:"unsubOnClose"`
	ExtClientID  string `json:"extClientID"`
	CreationTime int64  `json:"creationTime"` // Unix milliseconds
}

// Event is a subscription lifecycle event published to the cluster-wide bus.
// Delivery is at-least-once; receivers apply events idempotently, so a
// replayed event is a no-op.
//
// ServerID and ServerPID identify the originating process, letting receivers
// skip state they already hold locally.
type Event struct {
	Action EventAction `json:"action"`

	// Subscription is set for creation events.
	Subscription *Snapshot `json:"subscription,omitempty"`

	// SubKeys is set for deletion and interaction events.
	SubKeys []string `json:"subKeys,omitempty"`

	// Interaction metadata for EventInteractionUpdated.
	InteractionTime    int64  `json:"interactionTime,omitempty"` // Unix milliseconds
	InteractionSource  string `json:"interactionSource,omitempty"`
	InteractionDetails string `json:"interactionDetails,omitempty"`

	ServerID  int64 `json:"serverID"`
	ServerPID int   `json:"serverPID"`

	// IsAPICall distinguishes API-triggered events from internal ones.
	IsAPICall bool `json:"isAPICall"`
}
