package store

import (
	"context"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/natsclient"
)

// DefaultBucket is the JetStream KV bucket used when none is named
const DefaultBucket = "mads"

// KVBackend keeps documents in a NATS JetStream key-value bucket
type KVBackend struct {
	client *natsclient.Client
	kv     *natsclient.KVStore
	owned  bool
}

// NewKVBackend creates or opens bucket over a connected client. The client stays
// owned by the caller.
func NewKVBackend(ctx context.Context, client *natsclient.Client, bucket string) (*KVBackend, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "KVBackend", "NewKVBackend", "nats client cannot be nil")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	kvBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "mads plugin persistent documents",
		History:     5,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVBackend", "NewKVBackend", "create KV bucket")
	}

	return &KVBackend{client: client, kv: client.NewKVStore(kvBucket)}, nil
}

// Kind returns "nats-kv"
func (b *KVBackend) Kind() string { return "nats-kv" }

// Bucket returns the bucket name
func (b *KVBackend) Bucket() string { return b.kv.Bucket() }

// Put stores data at key
func (b *KVBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := b.kv.Put(ctx, key, data); err != nil {
		return errors.Wrap(err, "KVBackend", "Put", "put to KV")
	}
	return nil
}

// Get returns the data at key
func (b *KVBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "KVBackend", "Get", "get from KV")
	}
	return entry.Value, nil
}

// List returns the keys starting with prefix
func (b *KVBackend) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := b.kv.Keys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "KVBackend", "List", "list KV keys")
	}
	out := []string{}
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes key
func (b *KVBackend) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := b.kv.Delete(ctx, key); err != nil {
		return errors.Wrap(err, "KVBackend", "Delete", "delete from KV")
	}
	return nil
}

// Close closes the client when the backend dialed it itself
func (b *KVBackend) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close(context.Background())
}
