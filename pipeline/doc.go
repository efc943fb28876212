// Package pipeline runs typed Source -> Filter* -> Sink+ chains of plugin instances.
//
// Each instance is owned by a Stage, which enforces the lifecycle on the host side:
// a stage whose instance reported Critical, or panicked, refuses every further call
// without reaching the instance, and its Closer is called exactly once.
//
// A cycle is one pass through the chain:
//
//	source.GetOutput(&out, &blob)
//	for each filter: LoadData(out, topic); Process(&out)
//	for each sink:   LoadBlob(out, blob, topic) or LoadData(out, topic)
//
// Success and Warning are forwarded; Retry, Error and Critical end the pass at the
// stage that returned them. Run repeats cycles, waits with exponential backoff after
// a source Retry, and either stops or recreates a stage after Critical.
//
// Build assembles a Pipeline[params.Params] from configuration and a driver
// registry; BuildAll does the same for every configured pipeline and returns a Group.
package pipeline
