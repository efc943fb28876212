package natssub

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbosetti/mads-plugin/natsclient"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
	"github.com/pbosetti/mads-plugin/testutil"
)

func subscribed(t *testing.T, client *testutil.MockNATSClient, p params.Params) *Source {
	t.Helper()
	s := NewWithClient(client)().(*Source)
	s.SetParams(p)
	var out params.Params
	require.Equal(t, plugin.Retry, s.GetOutput(context.Background(), &out, nil), "nothing published yet")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetOutput(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockNATSClient()
	s := subscribed(t, client, params.Params{"subject": "sensors.temp", "timeout": "10ms"})

	require.NoError(t, client.Publish(ctx, "sensors.temp", []byte(`{"value": 21.5}`)))
	require.NoError(t, client.Publish(ctx, "sensors.temp", []byte(`garbage`)))

	var out params.Params
	require.Equal(t, plugin.Success, s.GetOutput(ctx, &out, nil))
	assert.Equal(t, params.Params{"value": 21.5, params.TopicKey: "sensors.temp"}, out)

	assert.Equal(t, plugin.Error, s.GetOutput(ctx, &out, nil))
	assert.Nil(t, out)
	assert.Contains(t, s.LastError(), "not a JSON object")

	assert.Equal(t, plugin.Retry, s.GetOutput(ctx, &out, nil))
	assert.Equal(t, "2", s.Info()["received"])
}

func TestGetOutput_DropsOldest(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockNATSClient()
	s := subscribed(t, client, params.Params{"subject": "s", "buffer": 2, "timeout": "10ms"})

	for i := range 5 {
		require.NoError(t, client.Publish(ctx, "s", []byte(fmt.Sprintf(`{"n": %d}`, i))))
	}
	assert.Equal(t, 2, s.Buffered())

	var out params.Params
	require.Equal(t, plugin.Success, s.GetOutput(ctx, &out, nil))
	assert.Equal(t, 3.0, out["n"])
	assert.Equal(t, "3", s.Info()["dropped"])
}

func TestGetOutput_ConnectionClosed(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockNATSClient()
	s := subscribed(t, client, params.Params{"subject": "s", "timeout": "10ms"})

	require.NoError(t, client.Publish(ctx, "s", []byte(`{"last": true}`)))
	require.NoError(t, client.Close(ctx))

	var out params.Params
	require.Equal(t, plugin.Success, s.GetOutput(ctx, &out, nil), "buffered messages drain first")
	assert.Equal(t, plugin.Critical, s.GetOutput(ctx, &out, nil))
	assert.Contains(t, s.LastError(), "connection closed")
	assert.True(t, s.Terminated())
}

func TestGetOutput_NoSubject(t *testing.T) {
	s := NewWithClient(testutil.NewMockNATSClient())()
	s.SetParams(nil)
	assert.Equal(t, "subject is required", s.LastError())

	var out params.Params
	assert.Equal(t, plugin.Error, s.GetOutput(context.Background(), &out, nil))
}

func TestClose_SharedClientStaysOpen(t *testing.T) {
	client := testutil.NewMockNATSClient()
	s := subscribed(t, client, params.Params{"subject": "s", "timeout": "10ms"})
	require.NoError(t, s.Close())
	assert.False(t, client.Closed())
}

func TestSetParams_InvalidKeyKeepsOthers(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockNATSClient()
	s := subscribed(t, client, params.Params{"subject": "sensors.temp", "buffer": 2, "timeout": "soon"})
	assert.Equal(t, "100ms", s.Params()["timeout"])
	assert.Equal(t, 2, s.cfg.Buffer)

	require.NoError(t, client.Publish(ctx, "sensors.temp", []byte(`{"value": 1}`)))
	var out params.Params
	require.Equal(t, plugin.Success, s.GetOutput(ctx, &out, nil))
	assert.Equal(t, 1.0, out["value"])
}

func TestClose_Unsubscribes(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockNATSClient()
	s := subscribed(t, client, params.Params{"subject": "s", "timeout": "10ms"})
	require.Equal(t, 1, client.Subscribers("s"))

	s.SetParams(params.Params{"subject": "other", "timeout": "10ms"})
	assert.Equal(t, 0, client.Subscribers("s"), "a new subject drops the old subscription")

	var out params.Params
	require.Equal(t, plugin.Retry, s.GetOutput(ctx, &out, nil))
	require.Equal(t, 1, client.Subscribers("other"))

	require.NoError(t, s.Close())
	assert.Equal(t, 0, client.Subscribers("other"))
	assert.False(t, client.Closed(), "a shared client stays open")
	require.NoError(t, client.Publish(ctx, "other", []byte(`{}`)))
}

func TestGetOutput_FailedConnectClosesClient(t *testing.T) {
	var built []*natsclient.Client
	defer func(orig func(string, ...natsclient.ClientOption) (*natsclient.Client, error)) { newClient = orig }(newClient)
	newClient = func(url string, opts ...natsclient.ClientOption) (*natsclient.Client, error) {
		c, err := natsclient.NewClient(url, opts...)
		built = append(built, c)
		return c, err
	}

	s := New()
	s.SetParams(params.Params{"url": "nats://127.0.0.1:1", "subject": "s"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out params.Params
	assert.Equal(t, plugin.Error, s.GetOutput(ctx, &out, nil))
	require.Len(t, built, 1)
	assert.True(t, built[0].Closed())
}
