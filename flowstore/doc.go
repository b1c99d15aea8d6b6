// Package flowstore persists the documents the editor saves: the flow
// definitions, node credentials and editor settings.
//
// The runtime treats each document as opaque JSON and hands it back
// verbatim. Two Store implementations are provided: MemoryStore for tests
// and single-process use, and KVStore backed by a NATS JetStream key/value
// bucket.
//
//	store, err := flowstore.NewKVStore(ctx, natsClient, flowstore.KVConfig{})
//	if err != nil {
//	    return err
//	}
//	raw, err := store.GetFlows(ctx)
//
// DecodeFlows and Split turn a saved flows document into the ordinary and
// config node definitions a deploy takes.
package flowstore
