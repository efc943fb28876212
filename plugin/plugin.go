package plugin

import (
	"context"

	"github.com/pbosetti/mads-plugin/params"
)

// Plugin is the surface shared by every role.
//
// LastError returns the human-readable detail of the most recent failure, or NoError.
// It is deliberately not named Error so plugin instances never satisfy the error
// interface by accident.
type Plugin interface {
	Kind() string
	Info() map[string]string
	LastError() string
	SetParams(p params.Params)
}

// Source produces values of type Out, optionally with a blob.
//
// GetOutput clears out before producing. On Retry out stays cleared. A nil blob
// means the caller does not want one.
type Source[Out any] interface {
	Plugin
	GetOutput(ctx context.Context, out *Out, blob *Blob) ReturnType
}

// Filter transforms In values into Out values in two steps. LoadData stores the
// input (and its topic, "" for none) and Process emits the result.
//
// LoadData returns Error on a structurally unusable input and leaves the held state
// untouched. Process clears out first and must be callable without a prior LoadData.
type Filter[In, Out any] interface {
	Plugin
	LoadData(ctx context.Context, in In, topic string) ReturnType
	Process(ctx context.Context, out *Out) ReturnType
}

// Sink consumes In values.
type Sink[In any] interface {
	Plugin
	LoadData(ctx context.Context, in In, topic string) ReturnType
}

// BlobSink is implemented by sinks that consume the blob together with the value.
type BlobSink[In any] interface {
	Sink[In]
	LoadBlob(ctx context.Context, in In, blob Blob, topic string) ReturnType
}

// Closer is implemented by instances that hold resources to release on disposal.
type Closer interface {
	Close() error
}

// Configurable exposes the effective configuration of an instance.
type Configurable interface {
	Params() params.Params
}
