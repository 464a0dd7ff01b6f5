// Package subhub implements the publish/subscribe subscription engine of a
// multi-process integration server: endpoints (REST callers, backend services,
// WebSocket clients) subscribe to named topics and receive messages through
// per-subscriber delivery queues, with a durability split between
// guaranteed-delivery (GD) and best-effort messages.
//
// # Features
//
//   - Idempotent subscription creation with per-topic serialization
//   - ACL pattern checks before any state is mutated
//   - Exactly-once migration of pending topic messages into the first
//     subscriber's queue, inside the same transaction as the insert
//   - Durable (SQL) and transient (in-memory) queue partitions per subscriber
//   - Cluster fan-out of subscription lifecycle events so sibling worker
//     processes converge without a consensus protocol
//   - WebSocket binding with immediate drain of migrated backlog
//   - Pluggable architecture: bring your own Logger, Announcer, stores
//
// # Quick Start
//
// Apply the embedded migrations, build the stores and the coordinator:
//
//	db, _ := sql.Open("mysql", "user:pass@tcp(localhost:3306)/subhub?parseTime=true")
//
//	stores := relica.NewStores(db, "mysql")
//	registry := subhub.NewRegistry()
//	locks := subhub.NewLockRegistry(90 * time.Second)
//
//	coord, _ := subhub.NewCoordinator(
//	    subhub.WithStores(stores.Subscription, stores.Queue, subhub.NewTransientStore()),
//	    subhub.WithRegistry(registry),
//	    subhub.WithLocks(locks),
//	    subhub.WithAnnouncer(announcer),
//	    subhub.WithCoordinatorLogger(logger),
//	)
//
//	res, err := coord.Subscribe(ctx, subhub.SubscribeRequest{
//	    TopicName:  "orders.created",
//	    Descriptor: subhub.Descriptor{SecurityID: 17},
//	})
//
// # Architecture
//
// A subscribe request flows through the coordinator:
//
//	Coordinator → LockRegistry (per-topic mutex, 90s timeout)
//	            → Registry (endpoint resolution + ACL match)
//	            → SubscriptionStore (insert + pending migration, one tx)
//	            → Announcer (fan-out, strictly after commit)
//	            → Binder (WebSocket bind + drain, when applicable)
//
// The per-topic lock is process-local; cross-process correctness of the
// "first subscriber" claim rests on the durable store's transaction and the
// unique indexes declared by the embedded migrations. The fan-out bus is
// eventually consistent by design: the persistence transaction, not the
// broker, is authoritative.
//
// # Durability classes
//
// Every subscription carries a GD flag fixed at creation time (explicit
// override, else inherited from the topic). GD messages live in the durable
// store and survive restarts; non-GD messages live in the process-local
// TransientStore and are lost with the process. Queue depth is the sum of
// both partitions.
//
// See cmd/subhub-server for the standalone server wiring SQL, NATS fan-out
// and the WebSocket adapter together.
package subhub
