// Package nats provides the cluster fan-out transport over NATS.
//
// Subscription lifecycle events are broadcast on a single subject; every
// worker process runs a Listener that folds incoming events into its local
// registry. Events are ephemeral: a process that missed them warms its
// registry from the durable store at startup, so no stream persistence is
// needed.
//
// Example usage:
//
//	nc, err := nats.Connect(nats.DefaultURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	announcer := subhubnats.NewAnnouncer(nc, "subhub")
//	listener, err := subhubnats.NewListener(nc, "subhub", applier, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer listener.Close()
package nats
