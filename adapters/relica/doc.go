// Package relica provides durable store implementations using the Relica
// query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database
// query builder for Go with zero production dependencies. This package
// implements the subhub store interfaces over it:
//
//   - TopicRepository
//   - EndpointRepository
//   - SubscriptionStore (including the subscribe transaction)
//   - QueueStore (durable partition)
//
// Query paths go through Relica; the subscribe-time transaction boundary
// (insert + pending migration + depth, one atomic unit) runs on a
// database/sql transaction directly, since its statements must share one tx.
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/subhub"
//	    "github.com/coregx/subhub/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/subhub?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// driverName should be "mysql", "postgres", or "sqlite3"
//	stores := relica.NewStores(db, "mysql")
//
//	coord, err := subhub.NewCoordinator(
//	    subhub.WithStores(stores.Subscription, stores.Queue, subhub.NewTransientStore()),
//	    ...
//	)
package relica
