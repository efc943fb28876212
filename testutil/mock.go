package testutil

import (
	"errors"
	"fmt"
	"sync"

	maderrors "github.com/pbosetti/mads-plugin/errors"
)

// Resource is a recording double for something a plugin owns: a file, a socket,
// a device. It counts writes and closes and records every misuse (a write after
// close or a second close) instead of failing silently.
type Resource struct {
	mu sync.Mutex

	Name string

	// WriteFunc, when set, replaces the default write behaviour for open resources.
	WriteFunc func(p []byte) error

	data       [][]byte
	closes     int
	violations []string
}

// NewResource creates an open resource
func NewResource(name string) *Resource {
	return &Resource{Name: name}
}

// Write records p. Writing to a closed resource is a violation.
func (r *Resource) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closes > 0 {
		r.violations = append(r.violations, fmt.Sprintf("%s: write after close", r.Name))
		return 0, maderrors.ErrAlreadyClosed
	}
	if r.WriteFunc != nil {
		if err := r.WriteFunc(p); err != nil {
			return 0, err
		}
	}
	r.data = append(r.data, append([]byte(nil), p...))
	return len(p), nil
}

// Close closes the resource. Closing twice is a violation.
func (r *Resource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closes++
	if r.closes > 1 {
		r.violations = append(r.violations, fmt.Sprintf("%s: close #%d", r.Name, r.closes))
		return maderrors.ErrAlreadyClosed
	}
	return nil
}

// Writes returns the number of successful writes
func (r *Resource) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// Data returns a copy of everything written
func (r *Resource) Data() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.data))
	copy(out, r.data)
	return out
}

// Closes returns how many times Close was called
func (r *Resource) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// Closed reports whether the resource was closed at least once
func (r *Resource) Closed() bool {
	return r.Closes() > 0
}

// Violations returns every misuse recorded so far
func (r *Resource) Violations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.violations...)
}

// Common test errors
var (
	ErrMockFailed     = errors.New("mock operation failed")
	ErrMockTimeout    = errors.New("mock operation timed out")
	ErrMockConnection = errors.New("mock connection error")
)
