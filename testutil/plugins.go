package testutil

import (
	"context"
	"fmt"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

// Step scripts one call of a scripted plugin
type Step[T any] struct {
	Status plugin.ReturnType
	Value  T
	// Blob is attached by sources when the status is forwardable.
	Blob []byte
	// Err becomes the instance's last error.
	Err string
	// Panic makes the call panic instead of returning.
	Panic bool
}

// Ok is a Success step carrying v
func Ok[T any](v T) Step[T] {
	return Step[T]{Status: plugin.Success, Value: v}
}

// Fail is a step returning status with detail err
func Fail[T any](status plugin.ReturnType, err string) Step[T] {
	return Step[T]{Status: status, Err: err}
}

func runStep[T any](b *plugin.Base, step Step[T]) plugin.ReturnType {
	if step.Panic {
		panic(fmt.Sprintf("scripted panic: %s", step.Err))
	}
	if step.Err != "" {
		b.SetError(step.Err)
	}
	if step.Status == plugin.Critical {
		b.Terminate()
	}
	return step.Status
}

// ScriptedSource emits its steps in order, then Retry forever
type ScriptedSource[T any] struct {
	plugin.Base
	Steps    []Step[T]
	Calls    int
	Resource *Resource
}

// NewScriptedSource creates a source that replays steps
func NewScriptedSource[T any](steps ...Step[T]) *ScriptedSource[T] {
	s := &ScriptedSource[T]{Steps: steps}
	s.Init("scripted-source")
	return s
}

// GetOutput replays the next step
func (s *ScriptedSource[T]) GetOutput(_ context.Context, out *T, blob *plugin.Blob) plugin.ReturnType {
	var zero T
	*out = zero
	if blob != nil {
		blob.Reset()
	}
	if s.Calls >= len(s.Steps) {
		return plugin.Retry
	}
	step := s.Steps[s.Calls]
	s.Calls++

	status := runStep(&s.Base, step)
	if status.Forwardable() {
		*out = step.Value
		if blob != nil && len(step.Blob) > 0 {
			blob.Set("application/octet-stream", step.Blob)
		}
	}
	return status
}

// Close closes the resource, if any
func (s *ScriptedSource[T]) Close() error {
	if s.Resource == nil {
		return nil
	}
	return s.Resource.Close()
}

// MapFilter applies Fn to each loaded value
type MapFilter[T any] struct {
	plugin.Base
	Fn     func(T) (T, plugin.ReturnType)
	Panic  bool
	held   T
	loaded bool
	Topics []string
}

// NewMapFilter creates a filter around fn
func NewMapFilter[T any](fn func(T) (T, plugin.ReturnType)) *MapFilter[T] {
	f := &MapFilter[T]{Fn: fn}
	f.Init("map-filter")
	return f
}

// LoadData holds in
func (f *MapFilter[T]) LoadData(_ context.Context, in T, topic string) plugin.ReturnType {
	f.held, f.loaded = in, true
	f.Topics = append(f.Topics, topic)
	return plugin.Success
}

// Process applies Fn to the held value; without one it returns Warning
func (f *MapFilter[T]) Process(_ context.Context, out *T) plugin.ReturnType {
	var zero T
	*out = zero
	if f.Panic {
		panic("map filter panic")
	}
	if !f.loaded {
		return plugin.Warning
	}
	v, status := f.Fn(f.held)
	if status.Forwardable() {
		*out = v
	}
	return status
}

// RecordingSink writes every value it receives to its Resource and replays
// Statuses, one per call, returning Success once they run out
type RecordingSink[T any] struct {
	plugin.Base
	Resource *Resource
	Statuses []plugin.ReturnType
	Received []T
	Topics   []string
	calls    int
}

// NewRecordingSink creates a sink writing to a fresh resource
func NewRecordingSink[T any](name string, statuses ...plugin.ReturnType) *RecordingSink[T] {
	s := &RecordingSink[T]{Resource: NewResource(name), Statuses: statuses}
	s.Init("recording-sink")
	return s
}

// SetParams applies p with no defaults of its own
func (s *RecordingSink[T]) SetParams(p params.Params) {
	s.ApplyParams(nil, p)
}

// LoadData records in
func (s *RecordingSink[T]) LoadData(_ context.Context, in T, topic string) plugin.ReturnType {
	if _, err := fmt.Fprintf(s.Resource, "%v", in); err != nil {
		s.SetError(err.Error())
		return plugin.Critical
	}
	s.Received = append(s.Received, in)
	s.Topics = append(s.Topics, topic)
	return s.next()
}

func (s *RecordingSink[T]) next() plugin.ReturnType {
	status := plugin.Success
	if s.calls < len(s.Statuses) {
		status = s.Statuses[s.calls]
	}
	s.calls++
	if status.Failed() {
		s.SetErrorf("scripted %s", status)
	}
	if status == plugin.Critical {
		s.Terminate()
	}
	return status
}

// Calls returns how many values reached the sink
func (s *RecordingSink[T]) Calls() int { return s.calls }

// Close closes the resource
func (s *RecordingSink[T]) Close() error {
	return s.Resource.Close()
}

// BlobRecordingSink is a RecordingSink that also accepts blobs
type BlobRecordingSink[T any] struct {
	RecordingSink[T]
	Blobs []plugin.Blob
}

// NewBlobRecordingSink creates a blob accepting sink
func NewBlobRecordingSink[T any](name string) *BlobRecordingSink[T] {
	s := &BlobRecordingSink[T]{RecordingSink: RecordingSink[T]{Resource: NewResource(name)}}
	s.Init("blob-recording-sink")
	return s
}

// LoadBlob records in and blob
func (s *BlobRecordingSink[T]) LoadBlob(ctx context.Context, in T, blob plugin.Blob, topic string) plugin.ReturnType {
	s.Blobs = append(s.Blobs, blob)
	return s.LoadData(ctx, in, topic)
}
