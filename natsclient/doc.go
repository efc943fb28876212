// Package natsclient manages one NATS connection with circuit breaker protection and
// JetStream KV access. The NATS source and sink plugins and the KV persistence backend
// share it.
//
// # Connection lifecycle
//
// Disconnected → Connecting → Connected → Reconnecting → Connected, ending in Closed
// either through Close or when the server drops the connection with reconnects
// exhausted. Closed is terminal; plugins map it to a Critical status.
//
// After a threshold of consecutive failures (default 5) the circuit opens and Connect
// fails fast with ErrCircuitOpen until the backoff elapses. The backoff doubles on
// every round up to WithMaxBackoff.
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("mads-clock"),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	sub, err := client.Subscribe("sensors.>", "", func(subject string, data []byte) {
//	    // runs on the NATS dispatch goroutine
//	})
//	defer sub.Unsubscribe()
//	err = client.Publish(ctx, "sensors.temp", payload)
//
// # Key-value
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "mads"})
//	kv := client.NewKVStore(bucket)
//	rev, err := kv.Put(ctx, "runavg", doc)
//	entry, err := kv.Get(ctx, "runavg") // errors.ErrKeyNotFound when missing
//
// UpdateWithRetry performs read-modify-write under compare-and-swap, retrying with
// pkg/retry on concurrent modification.
//
// # Testing
//
// NewTestClient starts a nats container through testcontainers-go and registers its
// cleanup with t. Tests using it carry the integration build tag.
package natsclient
