// Package store is the persistence service available to plugins: a named JSON
// document that survives restarts.
//
// Prepare keeps the document in a file:
//
//	doc, err := store.Prepare("runavg")                 // $TMPDIR/runavg.json
//	doc, err := store.Prepare("runavg", "/var/lib/mads") // /var/lib/mads/runavg.json
//	doc, err := store.Prepare("runavg", "./state.json")  // ./state.json
//
// Open does the same over any Backend. Dial builds one from a URI:
//
//	backend, err := store.Dial(ctx, "nats://localhost:4222/mads")
//	doc, err := store.Open(ctx, backend, "runavg", store.WithOwnedBackend())
//
// Reads and writes act on an in-memory copy. Save writes it back pretty printed
// with two-space indentation, retrying transient backend failures with pkg/retry.
// Close saves once more and is safe to call twice.
//
//	doc.Set("window", []any{1.0, 2.0, 3.0})
//	v, ok := doc.Get("window")
//	if err := doc.Save(ctx); err != nil { ... }
//	defer doc.Close()
//
// Backends: FileBackend (default), KVBackend over NATS JetStream key-value, and
// RedisBackend over go-redis. Documents are not locked across processes; the last
// writer wins.
package store
