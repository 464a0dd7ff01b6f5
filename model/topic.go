package model

import "time"

// Topic represents a named message channel in the pub/sub system.
// Subscribers attach to topics; published messages are routed to the queues
// of all matching subscriptions.
//
// Topics define two defaults inherited by subscriptions that do not override
// them: the GD (guaranteed delivery) flag and the delivery interval used by
// delivery tasks draining subscriber queues.
//
// Topic names can be hierarchical using dot notation (e.g. "orders.created").
type Topic struct {
	ID               int64     `json:"id"`                                      // Unique topic ID
	Name             string    `json:"name" db:"name"`                          // Unique topic name (e.g. "orders.created")
	HasGD            bool      `json:"hasGD" db:"has_gd"`                       // Default durability class for new subscriptions
	DeliveryInterval int64     `json:"deliveryInterval" db:"delivery_interval"` // Default delivery interval in milliseconds
	IsActive         bool      `json:"isActive" db:"is_active"`                 // Only active topics accept subscriptions
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`               // Topic creation time
}

// TableName returns the database table name for Topic.
func (t Topic) TableName() string {
	return tablePrefix + "topic"
}

// NewTopic creates a new active topic.
//
// Parameters:
//   - name: unique topic name (e.g. "orders.created")
//   - hasGD: whether subscriptions inherit guaranteed delivery by default
//   - deliveryInterval: default delivery interval in milliseconds
func NewTopic(name string, hasGD bool, deliveryInterval int64) Topic {
	return Topic{
		ID:               0,
		Name:             name,
		HasGD:            hasGD,
		DeliveryInterval: deliveryInterval,
		IsActive:         true,
		CreatedAt:        time.Now(),
	}
}
