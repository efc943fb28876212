// Package testutil provides test doubles for plugins and their hosts.
//
// # Recording doubles
//
// Resource stands for anything a plugin owns. It counts writes and closes and
// records misuse, so a test can prove that a stage never writes to a closed
// resource and never closes it twice:
//
//	sink := testutil.NewRecordingSink[int]("out", plugin.Success, plugin.Critical)
//	// ... run the pipeline, then
//	assert.Empty(t, sink.Resource.Violations())
//	assert.Equal(t, 1, sink.Resource.Closes())
//
// # Scripted plugins
//
// ScriptedSource replays a list of Steps and returns Retry once they run out.
// MapFilter applies a function to each loaded value. RecordingSink and
// BlobRecordingSink keep everything they receive.
//
// # Transport and storage
//
// MockNATSClient has the Publish, Subscribe and Close signatures of
// natsclient.Client, so plugins that accept a small client interface can be tested
// without a server. MemoryBackend is an in-memory store.Backend.
//
// Use testcontainers (natsclient.NewTestClient) when the real server behaviour
// matters; those tests carry the integration build tag.
package testutil
