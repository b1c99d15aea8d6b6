package flowstore

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/natsclient"
)

// DefaultBucket is the KV bucket used when KVConfig.Bucket is empty.
const DefaultBucket = "semflow_flows"

// KVConfig configures a KVStore.
type KVConfig struct {
	Bucket  string
	History uint8
	Timeout time.Duration
}

// KVStore keeps documents in a NATS JetStream key/value bucket, one key per
// document. The bucket keeps a short revision history.
type KVStore struct {
	documents
	bucket *natsclient.Bucket
}

var _ Store = (*KVStore)(nil)

// NewKVStore creates (or opens) the bucket on client.
func NewKVStore(ctx context.Context, client *natsclient.Client, cfg KVConfig) (*KVStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "KVStore", "NewKVStore", "nats client cannot be nil")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.History == 0 {
		cfg.History = 10 // keep last 10 revisions for recovery
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	bucket, err := client.OpenBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Flow definitions, credentials and editor settings",
		History:     cfg.History,
	}, cfg.Timeout)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "NewKVStore", "create KV bucket")
	}

	s := &KVStore{bucket: bucket}
	s.documents = documents{component: "KVStore", get: s.get, put: s.put}
	return s, nil
}

func (s *KVStore) get(ctx context.Context, key string) ([]byte, bool, error) {
	value, _, err := s.bucket.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *KVStore) put(ctx context.Context, key string, value []byte) error {
	_, err := s.bucket.Put(ctx, key, value)
	return err
}
