// Package model contains the domain models of the subscription engine:
// topics, endpoints, subscriptions, topic messages and fan-out events.
package model

// tablePrefix is prepended to all table names. Adapters with a custom prefix
// override the table name explicitly instead.
const tablePrefix = "pubsub_"
