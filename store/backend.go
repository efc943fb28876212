package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/natsclient"
)

// Backend is the pluggable storage behind a Document.
//
// Keys are document names. Values are the serialized documents. Implementations
// must be safe for concurrent use.
type Backend interface {
	// Put stores data at key, overwriting any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the data at key, or an error matching errors.ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys starting with prefix in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Kind names the backend in logs and metrics.
	Kind() string

	// Close releases connections owned by the backend.
	Close() error
}

// Dial opens a backend from a URI:
//
//	""  or file:///var/lib/mads   documents as JSON files in a directory
//	nats://host:4222/bucket       NATS JetStream key-value bucket (default "mads")
//	redis://host:6379/0           Redis keys under the "mads:" prefix
func Dial(ctx context.Context, uri string) (Backend, error) {
	if uri == "" {
		return dialFile("")
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.WrapInvalid(err, "store", "Dial", "parse backend URI")
	}

	switch u.Scheme {
	case "file":
		return dialFile(u.Path)

	case "nats", "tls":
		bucket := strings.Trim(u.Path, "/")
		if bucket == "" {
			bucket = DefaultBucket
		}
		server := *u
		server.Path = ""
		client, err := natsclient.NewClient(server.String(), natsclient.WithName("mads-store"))
		if err != nil {
			return nil, err
		}
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		backend, err := NewKVBackend(ctx, client, bucket)
		if err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		backend.owned = true
		return backend, nil

	case "redis", "rediss":
		backend, err := NewRedisBackendURL(ctx, uri, DefaultPrefix)
		if err != nil {
			return nil, err
		}
		return backend, nil

	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidConfig, u.Scheme),
			"store", "Dial", "select backend")
	}
}

func dialFile(dir string) (Backend, error) {
	backend, err := NewFileBackend(dir)
	if err != nil {
		return nil, err
	}
	return backend, nil
}
