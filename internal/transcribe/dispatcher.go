package transcribe

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Request is one captured utterance for a profile.
type Request struct {
	Profile string
	Cycle   string
	Samples []float32 // canonical mono 16kHz
}

// Result is delivered to the Dispatch callback on the worker goroutine.
// Err is a *ModelLoadError or *InferenceError.
type Result struct {
	Request
	Text     string
	Err      error
	Load     time.Duration // non-zero when this request loaded the model
	Duration time.Duration // inference time
}

// Dispatcher owns one engine handle per profile, loaded at Preload or on
// first use and kept until Close.
type Dispatcher struct {
	load   Loader
	logger *slog.Logger

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
	wg     sync.WaitGroup
}

// slot is one profile's engine. mu is held for the duration of a load so a
// preload and a first dispatch never load twice.
type slot struct {
	spec Spec

	mu     sync.Mutex
	engine Engine
	err    error
}

// NewDispatcher creates a Dispatcher for the given specs. Nothing loads
// until Preload or Dispatch.
func NewDispatcher(load Loader, specs []Spec, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		load:   load,
		logger: logger,
		slots:  make(map[string]*slot, len(specs)),
	}
	for _, s := range specs {
		d.slots[s.Profile] = &slot{spec: s}
	}
	return d
}

// Profiles returns the profile names in sorted order.
func (d *Dispatcher) Profiles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.slots))
	for name := range d.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preload loads every spec marked Preload and returns the failures keyed by
// profile. A failed profile stays failed; the rest are unaffected.
func (d *Dispatcher) Preload() map[string]error {
	failed := make(map[string]error)
	for _, name := range d.Profiles() {
		s := d.slot(name)
		if s == nil || !s.spec.Preload {
			continue
		}
		if _, _, err := d.engine(s); err != nil {
			failed[name] = err
		}
	}
	return failed
}

// Loaded reports whether profile has a ready engine.
func (d *Dispatcher) Loaded(profile string) bool {
	s := d.slot(profile)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine != nil
}

// Dispatch runs req on a new goroutine and calls done with the result from
// that goroutine. It returns immediately; the only synchronous errors are
// ErrUnknownProfile and ErrClosed, in which case done is never called.
func (d *Dispatcher) Dispatch(req Request, done func(Result)) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	s, ok := d.slots[req.Profile]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownProfile, req.Profile)
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		done(d.run(s, req))
	}()
	return nil
}

func (d *Dispatcher) run(s *slot, req Request) (res Result) {
	res.Request = req

	engine, loadTime, err := d.engine(s)
	res.Load = loadTime
	if err != nil {
		res.Err = err
		return res
	}

	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			res.Text = ""
			res.Err = &InferenceError{Profile: req.Profile, Err: fmt.Errorf("engine panicked: %v", r)}
		}
	}()

	text, err := engine.Transcribe(req.Samples)
	if err != nil {
		res.Err = &InferenceError{Profile: req.Profile, Err: err}
		return res
	}
	res.Text = text
	return res
}

// engine returns the slot's engine, loading it on first use. A load error
// is cached and returned on every later call.
func (d *Dispatcher) engine(s *slot) (Engine, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil || s.err != nil {
		return s.engine, 0, s.err
	}

	start := time.Now()
	engine, err := d.load(s.spec)
	elapsed := time.Since(start)
	if err != nil {
		s.err = &ModelLoadError{Profile: s.spec.Profile, Path: s.spec.ModelPath, Err: err}
		d.logger.Error("model load failed", "profile", s.spec.Profile, "stage", "load", "path", s.spec.ModelPath, "error", err)
		return nil, elapsed, s.err
	}
	s.engine = engine
	d.logger.Info("model loaded", "profile", s.spec.Profile, "stage", "load", "path", s.spec.ModelPath, "elapsed", elapsed.Round(time.Millisecond))
	return engine, elapsed, nil
}

func (d *Dispatcher) slot(profile string) *slot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[profile]
}

// Wait blocks until every dispatched request has called its callback.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close rejects new requests, waits for in-flight ones and releases every
// loaded engine.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()

	var firstErr error
	for _, name := range d.Profiles() {
		s := d.slot(name)
		s.mu.Lock()
		if s.engine != nil {
			if err := s.engine.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("transcribe: close %q: %w", name, err)
			}
			s.engine = nil
		}
		s.mu.Unlock()
	}
	return firstErr
}
