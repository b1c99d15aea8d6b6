// Package natsclient wraps the NATS Go client for semflow.
//
// Client tracks connection status, exposes JetStream key-value buckets and
// plain subject publish/subscribe. Two parts of the runtime use it: the flow
// store persists flows, credentials and settings in a KV bucket, and the
// nats-broker config node holds one Client per broker definition so that
// nats-in and nats-out nodes can share it across redeploys.
//
// TestClient starts a disposable NATS server with testcontainers for tests
// built with the integration tag.
package natsclient
