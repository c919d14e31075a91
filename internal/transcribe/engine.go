// Package transcribe turns canonical mono 16kHz audio into text. A
// Dispatcher owns one engine per profile and runs every request on its own
// goroutine so the caller never waits on inference.
package transcribe

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProfile is returned when dispatching for a profile the
	// Dispatcher was not built with.
	ErrUnknownProfile = errors.New("transcribe: unknown profile")
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("transcribe: dispatcher closed")
)

// Params are fixed per profile when its engine loads.
type Params struct {
	Threads  int
	BeamSize int    // 1 selects greedy decoding
	Language string // empty keeps the model default, "auto" detects
}

// Spec describes the engine a profile needs.
type Spec struct {
	Profile   string
	ModelPath string
	Params    Params
	Preload   bool
}

// Engine transcribes canonical audio. A single Engine is never called
// concurrently.
type Engine interface {
	Transcribe(samples []float32) (string, error)
	Close() error
}

// Loader creates the engine for a spec.
type Loader func(Spec) (Engine, error)

// ModelLoadError means a profile's model could not be loaded. It is cached:
// the profile stays unusable while other profiles keep working.
type ModelLoadError struct {
	Profile string
	Path    string
	Err     error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("transcribe: profile %q: load model %q: %v", e.Profile, e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InferenceError is a failed request. The engine remains usable.
type InferenceError struct {
	Profile string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("transcribe: profile %q: %v", e.Profile, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
