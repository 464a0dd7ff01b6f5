package model

import (
	"database/sql"
	"fmt"
	"time"
)

// Delivery methods understood by delivery tasks.
const (
	// DeliveryNotify pushes messages to the subscriber's callback endpoint.
	DeliveryNotify = "notify"

	// DeliveryPull leaves messages in the queue until the subscriber asks.
	DeliveryPull = "pull"

	// DeliveryWebSocket pushes messages over the bound socket connection.
	// Always used for WebSocket subscriptions.
	DeliveryWebSocket = "web-socket"
)

// DefaultDeliveryBatchSize is the number of messages handed to a delivery
// task per attempt when a subscription does not override it.
const DefaultDeliveryBatchSize = 50

// maxInteractionDetails caps the stored last-interaction details so that
// oversized user agents cannot grow subscription rows without bound.
const maxInteractionDetails = 2000

// Subscription is the persisted link between one endpoint and one topic,
// identified by a globally unique, immutable subscriber key.
//
// The GD flag is fixed at creation: an explicit override on the subscribe
// request, else the topic default. It never changes afterwards.
//
// ExclusiveKey guards the at-most-one-active-subscription rule for
// non-transient endpoints at the persistence layer: it holds
// "<endpointID>:<topicID>" under a unique index for REST/service rows and is
// NULL for WebSocket rows, which may repeat per connection.
type Subscription struct {
	ID           int64        `json:"id"`
	SubKey       string       `json:"subKey" db:"sub_key"`
	EndpointID   int64        `json:"endpointID" db:"endpoint_id"`
	TopicID      int64        `json:"topicID" db:"topic_id"`
	EndpointType EndpointType `json:"endpointType" db:"endpoint_type"`
	HasGD        bool         `json:"hasGD" db:"has_gd"`
	SubPattern   string       `json:"subPattern" db:"sub_pattern"` // ACL pattern that admitted this subscription

	DeliveryMethod    string `json:"deliveryMethod" db:"delivery_method"`
	DeliveryBatchSize int    `json:"deliveryBatchSize" db:"delivery_batch_size"`
	MaxDeliveryRetry  int    `json:"maxDeliveryRetry" db:"max_delivery_retry"`
	BlockOnError      bool   `json:"blockOnError" db:"block_on_error"` // Wedge the queue after exhausted retries instead of dropping

	UnsubOnClose bool           `json:"unsubOnClose" db:"unsub_on_close"` // WebSocket only: delete the subscription when the connection closes
	ExtClientID  string         `json:"extClientID" db:"ext_client_id"`
	ExclusiveKey sql.NullString `json:"-" db:"exclusive_key"`

	IsActive     bool  `json:"isActive" db:"is_active"`
	CreationTime int64 `json:"creationTime" db:"creation_time"` // Unix milliseconds

	LastInteractionTime    sql.NullInt64  `json:"lastInteractionTime" db:"last_interaction_time"` // Unix milliseconds
	LastInteractionType    sql.NullString `json:"lastInteractionType" db:"last_interaction_type"`
	LastInteractionDetails sql.NullString `json:"lastInteractionDetails" db:"last_interaction_details"`
}

// TableName returns the database table name for Subscription.
func (m Subscription) TableName() string {
	return tablePrefix + "subscription"
}

// ExclusiveKeyFor builds the uniqueness guard value for non-transient
// subscriptions of the given endpoint and topic.
func ExclusiveKeyFor(endpointID, topicID int64) string {
	return fmt.Sprintf("%d:%d", endpointID, topicID)
}

// NewSubscription creates a new active subscription. The subscriber key must
// already be allocated; the exclusive key is derived from the endpoint type.
func NewSubscription(subKey string, endpointID, topicID int64, typ EndpointType, hasGD bool, subPattern string) Subscription {
	s := Subscription{
		ID:                0,
		SubKey:            subKey,
		EndpointID:        endpointID,
		TopicID:           topicID,
		EndpointType:      typ,
		HasGD:             hasGD,
		SubPattern:        subPattern,
		DeliveryMethod:    DeliveryNotify,
		DeliveryBatchSize: DefaultDeliveryBatchSize,
		IsActive:          true,
		CreationTime:      time.Now().UnixMilli(),
	}
	if typ == EndpointWebSocket {
		s.DeliveryMethod = DeliveryWebSocket
	}
	if !typ.IsTransient() {
		s.ExclusiveKey = sql.NullString{String: ExclusiveKeyFor(endpointID, topicID), Valid: true}
	}
	return s
}

// Interaction describes one observed interaction with a subscriber, used to
// refresh last-interaction metadata on its subscription rows.
type Interaction struct {
	RemoteAddr string
	UserAgent  string
	Source     string
	Time       time.Time
}

// TimeMS returns the interaction time normalized to Unix milliseconds, the
// representation stored in the database.
func (i Interaction) TimeMS() int64 {
	return i.Time.UnixMilli()
}

// Details flattens address and user agent into the stored details string,
// capped at the maximum history length.
func (i Interaction) Details() string {
	details := i.RemoteAddr
	if i.UserAgent != "" {
		details += "; " + i.UserAgent
	}
	if len(details) > maxInteractionDetails {
		details = details[:maxInteractionDetails]
	}
	return details
}

// RecordInteraction updates the in-memory last-interaction fields. The
// durable update path writes the same values in one statement for many keys.
func (m *Subscription) RecordInteraction(i Interaction) {
	m.LastInteractionTime = sql.NullInt64{Int64: i.TimeMS(), Valid: true}
	m.LastInteractionType = sql.NullString{String: i.Source, Valid: i.Source != ""}
	m.LastInteractionDetails = sql.NullString{String: i.Details(), Valid: true}
}

// Snapshot builds the registry-visible view of the subscription, as carried
// by fan-out events and held by per-process registries.
func (m Subscription) Snapshot(topicName, endpointName string) Snapshot {
	return Snapshot{
		SubscriptionID:    m.ID,
		SubKey:            m.SubKey,
		TopicName:         topicName,
		EndpointID:        m.EndpointID,
		EndpointName:      endpointName,
		EndpointType:      m.EndpointType,
		HasGD:             m.HasGD,
		SubPattern:        m.SubPattern,
		DeliveryMethod:    m.DeliveryMethod,
		DeliveryBatchSize: m.DeliveryBatchSize,
		MaxDeliveryRetry:  m.MaxDeliveryRetry,
		BlockOnError:      m.BlockOnError,
		UnsubOnClose:      m.UnsubOnClose,
		ExtClientID:       m.ExtClientID,
		CreationTime:      m.CreationTime,
	}
}
