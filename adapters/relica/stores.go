package relica

import (
	"database/sql"

	"github.com/coregx/subhub"
)

// Stores holds all durable store implementations.
type Stores struct {
	Topic        subhub.TopicRepository
	Endpoint     subhub.EndpointRepository
	Subscription subhub.SubscriptionStore
	Queue        subhub.QueueStore
}

// NewStores creates all store implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "pubsub_" but can be customized.
func NewStores(db *sql.DB, driverName string) *Stores {
	return &Stores{
		Topic:        NewTopicRepository(db, driverName),
		Endpoint:     NewEndpointRepository(db, driverName),
		Subscription: NewSubscriptionStore(db, driverName),
		Queue:        NewQueueStore(db, driverName),
	}
}

// NewStoresWithPrefix creates all store implementations with a custom table prefix.
func NewStoresWithPrefix(db *sql.DB, driverName, prefix string) *Stores {
	return &Stores{
		Topic:        NewTopicRepositoryWithPrefix(db, driverName, prefix),
		Endpoint:     NewEndpointRepositoryWithPrefix(db, driverName, prefix),
		Subscription: NewSubscriptionStoreWithPrefix(db, driverName, prefix),
		Queue:        NewQueueStoreWithPrefix(db, driverName, prefix),
	}
}
