//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pbosetti/mads-plugin/natsclient"
)

func TestKVBackend(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())

	n := 0
	suite.Run(t, &BackendSuite{newBackend: func(t *testing.T) Backend {
		n++
		b, err := NewKVBackend(context.Background(), tc.Client, fmt.Sprintf("mads-%d", n))
		require.NoError(t, err)
		return b
	}})
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	addr := startRedis(ctx, t)

	n := 0
	suite.Run(t, &BackendSuite{newBackend: func(t *testing.T) Backend {
		n++
		b, err := NewRedisBackendURL(ctx, "redis://"+addr+"/0", fmt.Sprintf("mads-%d:", n))
		require.NoError(t, err)
		return b
	}})
}

func TestDial_Redis(t *testing.T) {
	ctx := context.Background()
	addr := startRedis(ctx, t)

	b, err := Dial(ctx, "redis://"+addr+"/1")
	require.NoError(t, err)
	defer b.Close()
	require.Equal(t, "redis", b.Kind())

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 1})
	defer client.Close()
	require.NoError(t, b.Put(ctx, "doc", []byte(`{}`)))
	require.Equal(t, "{}", client.Get(ctx, DefaultPrefix+"doc").Val())
}

func TestDial_NATS(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	b, err := Dial(ctx, tc.URL+"/dialed")
	require.NoError(t, err)
	defer b.Close()

	kv, ok := b.(*KVBackend)
	require.True(t, ok)
	require.Equal(t, "dialed", kv.Bucket())
}

func startRedis(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}
