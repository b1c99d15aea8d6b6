package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/semflow/errors"
)

// ErrKVKeyNotFound is returned when a key is absent or deleted. It matches
// errors.ErrKeyNotFound as well.
var ErrKVKeyNotFound = fmt.Errorf("kv: %w", errors.ErrKeyNotFound)

// Bucket runs key/value operations against one JetStream bucket, bounding
// each call by a per-operation timeout.
type Bucket struct {
	kv      jetstream.KeyValue
	timeout time.Duration
	client  *Client
}

// OpenBucket creates the bucket described by cfg, or opens it if it exists.
// A zero timeout leaves caller contexts untouched.
func (c *Client) OpenBucket(ctx context.Context, cfg jetstream.KeyValueConfig, timeout time.Duration) (*Bucket, error) {
	kv, err := c.CreateKeyValueBucket(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Bucket{kv: kv, timeout: timeout, client: c}, nil
}

// Name is the JetStream bucket name.
func (b *Bucket) Name() string { return b.kv.Bucket() }

func (b *Bucket) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// Get returns the value of key and its revision.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()

	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		return nil, 0, b.fail("get", key, err)
	}
	return entry.Value(), entry.Revision(), nil
}

// Put writes value and returns the new revision.
func (b *Bucket) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()

	rev, err := b.kv.Put(ctx, key, value)
	if err != nil {
		return 0, b.fail("put", key, err)
	}
	b.client.logger.Debug("KV put", "bucket", b.Name(), "key", key, "revision", rev)
	return rev, nil
}

// Delete removes key. Deleting an absent key reports ErrKVKeyNotFound.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	ctx, cancel := b.bound(ctx)
	defer cancel()

	if err := b.kv.Delete(ctx, key); err != nil {
		return b.fail("delete", key, err)
	}
	return nil
}

func (b *Bucket) fail(op, key string, err error) error {
	if IsKVNotFoundError(err) {
		return ErrKVKeyNotFound
	}
	return errors.WrapTransient(err, "Bucket", op, "kv "+op+" "+key)
}

// IsKVNotFoundError reports whether err means the key does not exist. Older
// servers only signal this through the message text or API code 10037.
func IsKVNotFoundError(err error) bool {
	switch {
	case err == nil:
		return false
	case stderrors.Is(err, errors.ErrKeyNotFound), stderrors.Is(err, jetstream.ErrKeyNotFound):
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "10037")
}
