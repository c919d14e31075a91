package trigger

import (
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/voxhold/internal/audio"
	"github.com/chaz8081/voxhold/internal/status"
	"github.com/chaz8081/voxhold/internal/transcribe"
)

type fakeCapture struct {
	mu       sync.Mutex
	format   audio.Format
	samples  []float32 // returned by the next Stop
	dropped  uint64
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func newFakeCapture(samples []float32) *fakeCapture {
	return &fakeCapture{format: audio.Canonical, samples: samples}
}

func (f *fakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}

func (f *fakeCapture) Stop() (audio.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stopErr != nil {
		return audio.Capture{}, f.stopErr
	}
	c := audio.Capture{Samples: f.samples, Format: f.format, Dropped: f.dropped}
	return c, nil
}

func (f *fakeCapture) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// fakeTranscriber answers every request on its own goroutine. When gate is
// set each answer waits for a value on it.
type fakeTranscriber struct {
	mu          sync.Mutex
	requests    []transcribe.Request
	text        string
	err         error
	gate        chan struct{}
	dispatchErr error
}

func (f *fakeTranscriber) Dispatch(req transcribe.Request, done func(transcribe.Result)) error {
	if f.dispatchErr != nil {
		return f.dispatchErr
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	text, err, gate := f.text, f.err, f.gate
	f.mu.Unlock()

	go func() {
		if gate != nil {
			<-gate
		}
		res := transcribe.Result{Request: req, Text: text, Err: err, Duration: time.Millisecond}
		if err != nil {
			res.Text = ""
		}
		done(res)
	}()
	return nil
}

func (f *fakeTranscriber) snapshot() []transcribe.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcribe.Request(nil), f.requests...)
}

type fakeDeliverer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeDeliverer) Deliver(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeDeliverer) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeArchive struct {
	mu    sync.Mutex
	saved map[string]int // profile -> sample count
}

func (f *fakeArchive) Save(profile, _ string, samples []float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string]int)
	}
	f.saved[profile] = len(samples)
	return "/dev/null", nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []status.Event
}

func (r *recordingSink) Emit(ev status.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) find(kind status.Kind, profile string) []status.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []status.Event
	for _, ev := range r.events {
		if ev.Kind == kind && ev.Profile == profile {
			out = append(out, ev)
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitForState(t *testing.T, c *Coordinator, profile string, want State) {
	t.Helper()
	waitFor(t, profile+" to be "+want.String(), func() bool {
		s, _ := c.State(profile)
		return s == want
	})
}

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%100) / 100
	}
	return out
}
