package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chaz8081/voxhold/internal/alias"
	"github.com/chaz8081/voxhold/internal/audio"
	"github.com/chaz8081/voxhold/internal/hotkey"
	"github.com/chaz8081/voxhold/internal/status"
	"github.com/chaz8081/voxhold/internal/transcribe"
)

type harness struct {
	c    *Coordinator
	tr   *fakeTranscriber
	del  *fakeDeliverer
	sink *recordingSink
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		tr:   &fakeTranscriber{text: "hello world period"},
		del:  &fakeDeliverer{},
		sink: &recordingSink{},
	}
	opts := Options{
		Transcriber: h.tr,
		Deliverer:   h.del,
		Sink:        h.sink,
		Aliases: alias.Table{
			Enabled:   true,
			Threshold: 0.8,
			Entries:   []alias.Entry{{Phrase: "period", Replacement: "."}},
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.c = NewCoordinator(opts)
	t.Cleanup(h.c.Wait)
	return h
}

func (h *harness) register(t *testing.T, name string, key string, capture Capture) {
	t.Helper()
	p := Profile{Name: name, Combo: hotkey.MustParseCombo([]string{"Ctrl", "Option"}, key)}
	if err := h.c.Register(p, capture); err != nil {
		t.Fatalf("Register(%s) error = %v", name, err)
	}
}

func (h *harness) handle(t *testing.T, profile string, kind hotkey.Kind) {
	t.Helper()
	if err := h.c.Handle(hotkey.Event{Profile: profile, Kind: kind}); err != nil {
		t.Fatalf("Handle(%s %s) error = %v", profile, kind, err)
	}
}

func (h *harness) state(t *testing.T, profile string) State {
	t.Helper()
	s, ok := h.c.State(profile)
	if !ok {
		t.Fatalf("State(%s): unknown profile", profile)
	}
	return s
}

func TestPressTransitions(t *testing.T) {
	h := newHarness(t, nil)
	capture := newFakeCapture(seq(10))
	h.register(t, "base", "z", capture)

	if got := h.state(t, "base"); got != Idle {
		t.Fatalf("initial state = %v, want idle", got)
	}

	h.handle(t, "base", hotkey.Press)
	if got := h.state(t, "base"); got != Recording {
		t.Fatalf("state after press = %v, want recording", got)
	}

	// Key auto-repeat delivers more presses while held.
	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Press)
	if starts, _ := capture.counts(); starts != 1 {
		t.Errorf("capture started %d times, want 1", starts)
	}
	if got := h.state(t, "base"); got != Recording {
		t.Errorf("state after repeated press = %v, want recording", got)
	}
}

func TestReleaseWhileIdleIgnored(t *testing.T) {
	h := newHarness(t, nil)
	capture := newFakeCapture(seq(10))
	h.register(t, "base", "z", capture)

	h.handle(t, "base", hotkey.Release)
	if _, stops := capture.counts(); stops != 0 {
		t.Errorf("capture stopped %d times, want 0", stops)
	}
	if len(h.tr.snapshot()) != 0 {
		t.Error("release while idle dispatched a request")
	}
}

func TestScenarioSingleCycleDeliversAliasedText(t *testing.T) {
	h := newHarness(t, nil)
	capture := newFakeCapture(seq(48000)) // 3s of 16kHz mono
	h.register(t, "base", "z", capture)

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	waitForState(t, h.c, "base", Idle)
	h.c.Wait()

	reqs := h.tr.snapshot()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if len(reqs[0].Samples) != 48000 {
		t.Errorf("request samples = %d, want 48000", len(reqs[0].Samples))
	}
	if reqs[0].Profile != "base" || reqs[0].Cycle == "" {
		t.Errorf("request = %+v", reqs[0])
	}

	got := h.del.delivered()
	if len(got) != 1 || got[0] != "hello world." {
		t.Errorf("delivered = %q, want [\"hello world.\"]", got)
	}
	if n := len(h.sink.find(status.KindDelivered, "base")); n != 1 {
		t.Errorf("delivered events = %d, want 1", n)
	}
	if errs := h.sink.find(status.KindError, "base"); len(errs) != 0 {
		t.Errorf("unexpected errors: %+v", errs)
	}
}

func TestReleaseEnqueuesOnlyCurrentCycle(t *testing.T) {
	h := newHarness(t, nil)
	capture := newFakeCapture(seq(100))
	h.register(t, "base", "z", capture)

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	waitForState(t, h.c, "base", Idle)
	h.c.Wait()

	capture.mu.Lock()
	capture.samples = seq(250)
	capture.mu.Unlock()

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	waitForState(t, h.c, "base", Idle)
	h.c.Wait()

	reqs := h.tr.snapshot()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	if len(reqs[0].Samples) != 100 || len(reqs[1].Samples) != 250 {
		t.Errorf("sample counts = %d, %d; want 100, 250", len(reqs[0].Samples), len(reqs[1].Samples))
	}
	if reqs[0].Cycle == reqs[1].Cycle {
		t.Error("both cycles share an id")
	}
}

func TestScenarioEmptyCaptureSkipsTranscription(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "base", "z", newFakeCapture(nil))

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)

	// No worker is involved: Idle is reached before Handle returns.
	if got := h.state(t, "base"); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}
	if len(h.tr.snapshot()) != 0 {
		t.Error("empty capture dispatched a request")
	}
	warnings := h.sink.find(status.KindWarning, "base")
	if len(warnings) != 1 || warnings[0].Reason != status.ReasonEmptyCapture {
		t.Errorf("warnings = %+v, want one empty capture", warnings)
	}
	if errs := h.sink.find(status.KindError, "base"); len(errs) != 0 {
		t.Errorf("empty capture reported errors: %+v", errs)
	}
}

func TestScenarioConcurrentProfiles(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.tr.gate = gate

	fast := newFakeCapture(seq(16000))
	accurate := newFakeCapture(seq(32000))
	h.register(t, "fast", "z", fast)
	h.register(t, "accurate", "x", accurate)

	h.handle(t, "fast", hotkey.Press)
	h.handle(t, "accurate", hotkey.Press)
	if h.state(t, "fast") != Recording || h.state(t, "accurate") != Recording {
		t.Fatalf("states = %v, %v; want both recording", h.state(t, "fast"), h.state(t, "accurate"))
	}

	h.handle(t, "fast", hotkey.Release)
	if h.state(t, "fast") != Processing {
		t.Errorf("fast = %v, want processing", h.state(t, "fast"))
	}
	if h.state(t, "accurate") != Recording {
		t.Errorf("accurate = %v, want recording while fast processes", h.state(t, "accurate"))
	}

	h.handle(t, "accurate", hotkey.Release)
	close(gate)
	waitForState(t, h.c, "fast", Idle)
	waitForState(t, h.c, "accurate", Idle)
	h.c.Wait()

	got := map[string]int{}
	for _, r := range h.tr.snapshot() {
		got[r.Profile] = len(r.Samples)
	}
	if got["fast"] != 16000 || got["accurate"] != 32000 {
		t.Errorf("request sizes = %v, want fast:16000 accurate:32000", got)
	}
	if n := len(h.del.delivered()); n != 2 {
		t.Errorf("deliveries = %d, want 2", n)
	}
}

func TestScenarioDuplicateComboRejected(t *testing.T) {
	h := newHarness(t, nil)
	first := newFakeCapture(seq(10))
	h.register(t, "first", "z", first)

	dup := Profile{Name: "second", Combo: hotkey.MustParseCombo([]string{"control", "alt"}, "Z")}
	err := h.c.Register(dup, newFakeCapture(seq(10)))
	if !errors.Is(err, ErrDuplicateCombo) {
		t.Fatalf("Register(duplicate) error = %v, want ErrDuplicateCombo", err)
	}
	if _, ok := h.c.State("second"); ok {
		t.Error("rejected profile is registered")
	}
	if n := len(h.c.Profiles()); n != 1 {
		t.Errorf("Profiles() = %d, want 1", n)
	}

	h.handle(t, "first", hotkey.Press)
	if got := h.state(t, "first"); got != Recording {
		t.Errorf("first profile state = %v, want recording", got)
	}
}

func TestRegisterRejectsOverlappingCombo(t *testing.T) {
	h := newHarness(t, nil)
	first := newFakeCapture(seq(10))
	h.register(t, "first", "z", first)

	for _, mods := range [][]string{{"ctrl", "alt", "shift"}, {"ctrl"}, {"shift"}} {
		p := Profile{Name: "second", Combo: hotkey.MustParseCombo(mods, "z")}
		err := h.c.Register(p, newFakeCapture(seq(10)))
		if !errors.Is(err, ErrOverlappingCombo) {
			t.Fatalf("Register(%s) error = %v, want ErrOverlappingCombo", p.Combo, err)
		}
	}
	if _, ok := h.c.State("second"); ok {
		t.Error("rejected profile is registered")
	}

	other := Profile{Name: "other", Combo: hotkey.MustParseCombo([]string{"ctrl", "alt", "shift"}, "x")}
	if err := h.c.Register(other, newFakeCapture(nil)); err != nil {
		t.Fatalf("Register(%s) error = %v", other.Combo, err)
	}

	h.handle(t, "first", hotkey.Press)
	if got := h.state(t, "first"); got != Recording {
		t.Errorf("first profile state = %v, want recording", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "base", "z", newFakeCapture(nil))

	tests := []struct {
		name    string
		profile Profile
		capture Capture
		want    error
	}{
		{"duplicate name", Profile{Name: "base", Combo: hotkey.MustParseCombo(nil, "f1")}, newFakeCapture(nil), ErrDuplicateProfile},
		{"zero combo", Profile{Name: "other"}, newFakeCapture(nil), hotkey.ErrInvalidCombo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.c.Register(tt.profile, tt.capture); !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}
	if err := h.c.Register(Profile{Name: "", Combo: hotkey.MustParseCombo(nil, "f2")}, newFakeCapture(nil)); err == nil {
		t.Error("Register() accepted an empty name")
	}
	if err := h.c.Register(Profile{Name: "nocap", Combo: hotkey.MustParseCombo(nil, "f3")}, nil); err == nil {
		t.Error("Register() accepted a nil capture")
	}
}

func TestProcessingIgnoresTriggers(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.tr.gate = gate
	capture := newFakeCapture(seq(100))
	h.register(t, "base", "z", capture)

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	if got := h.state(t, "base"); got != Processing {
		t.Fatalf("state = %v, want processing", got)
	}

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	if got := h.state(t, "base"); got != Processing {
		t.Errorf("state after triggers = %v, want processing", got)
	}
	if starts, stops := capture.counts(); starts != 1 || stops != 1 {
		t.Errorf("capture starts/stops = %d/%d, want 1/1", starts, stops)
	}

	close(gate)
	waitForState(t, h.c, "base", Idle)
	h.c.Wait()
	if n := len(h.tr.snapshot()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}

	// Responsive again once Idle.
	h.handle(t, "base", hotkey.Press)
	if got := h.state(t, "base"); got != Recording {
		t.Errorf("state after idle press = %v, want recording", got)
	}
}

func TestDeviceErrorOnStartStaysIdle(t *testing.T) {
	h := newHarness(t, nil)
	capture := newFakeCapture(seq(10))
	capture.startErr = &audio.DeviceError{Op: "open capture device", Err: errors.New("no mic")}
	h.register(t, "base", "z", capture)

	h.handle(t, "base", hotkey.Press)
	if got := h.state(t, "base"); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}

	errs := h.sink.find(status.KindError, "base")
	if len(errs) != 1 || errs[0].Stage != status.StageCapture {
		t.Fatalf("errors = %+v, want one capture error", errs)
	}
	var devErr *audio.DeviceError
	if !errors.As(errs[0].Err, &devErr) {
		t.Errorf("error = %v, want *audio.DeviceError", errs[0].Err)
	}
	if states := h.sink.find(status.KindState, "base"); len(states) != 0 {
		t.Errorf("failed press emitted state changes: %+v", states)
	}
}

func TestDeviceErrorOnStopReturnsIdle(t *testing.T) {
	h := newHarness(t, nil)
	capture := newFakeCapture(seq(10))
	h.register(t, "base", "z", capture)

	h.handle(t, "base", hotkey.Press)
	capture.mu.Lock()
	capture.stopErr = &audio.DeviceError{Op: "capture", Err: audio.ErrDeviceLost}
	capture.mu.Unlock()
	h.handle(t, "base", hotkey.Release)

	if got := h.state(t, "base"); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}
	if len(h.tr.snapshot()) != 0 {
		t.Error("failed stop dispatched a request")
	}
	errs := h.sink.find(status.KindError, "base")
	if len(errs) != 1 || !errors.Is(errs[0].Err, audio.ErrDeviceLost) {
		t.Errorf("errors = %+v, want device lost", errs)
	}
}

func TestTranscriptionErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantStage status.Stage
	}{
		{"inference", &transcribe.InferenceError{Profile: "base", Err: errors.New("decoder failed")}, status.StageTranscribe},
		{"model load", &transcribe.ModelLoadError{Profile: "base", Path: "x.bin", Err: errors.New("corrupt")}, status.StageLoad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.tr.err = tt.err
			h.register(t, "base", "z", newFakeCapture(seq(100)))

			h.handle(t, "base", hotkey.Press)
			h.handle(t, "base", hotkey.Release)
			waitForState(t, h.c, "base", Idle)
			h.c.Wait()

			if got := h.del.delivered(); len(got) != 0 {
				t.Errorf("delivered %q after a failed transcription", got)
			}
			errs := h.sink.find(status.KindError, "base")
			if len(errs) != 1 || errs[0].Stage != tt.wantStage {
				t.Errorf("errors = %+v, want one at stage %s", errs, tt.wantStage)
			}
		})
	}
}

func TestDispatchRejectedReturnsIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.tr.dispatchErr = transcribe.ErrClosed
	h.register(t, "base", "z", newFakeCapture(seq(100)))

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)

	if got := h.state(t, "base"); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}
	errs := h.sink.find(status.KindError, "base")
	if len(errs) != 1 || !errors.Is(errs[0].Err, transcribe.ErrClosed) {
		t.Errorf("errors = %+v", errs)
	}
}

func TestDeliveryErrorReturnsIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.del.err = errors.New("no accessibility permission")
	h.register(t, "base", "z", newFakeCapture(seq(100)))

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	waitForState(t, h.c, "base", Idle)
	h.c.Wait()

	errs := h.sink.find(status.KindError, "base")
	if len(errs) != 1 || errs[0].Stage != status.StageDeliver {
		t.Errorf("errors = %+v, want one deliver error", errs)
	}
	if n := len(h.sink.find(status.KindDelivered, "base")); n != 0 {
		t.Errorf("delivered events = %d, want 0", n)
	}
}

func TestBlankTranscriptNotDelivered(t *testing.T) {
	h := newHarness(t, nil)
	h.tr.text = "   "
	h.register(t, "base", "z", newFakeCapture(seq(100)))

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	waitForState(t, h.c, "base", Idle)
	h.c.Wait()

	if got := h.del.delivered(); len(got) != 0 {
		t.Errorf("delivered %q", got)
	}
}

func TestStatsCountEveryCycle(t *testing.T) {
	stats := status.NewStats()
	h := newHarness(t, func(o *Options) { o.Sink = status.Multi(o.Sink, stats) })
	h.tr.text = "   "
	h.register(t, "empty", "z", newFakeCapture(nil))
	h.register(t, "blank", "x", newFakeCapture(seq(100)))

	for _, p := range []string{"empty", "blank"} {
		h.handle(t, p, hotkey.Press)
		h.handle(t, p, hotkey.Release)
		waitForState(t, h.c, p, Idle)
	}
	h.c.Wait()

	snap := stats.Snapshot()
	for _, p := range []string{"empty", "blank"} {
		if got := snap[p]; got.Cycles != 1 || got.Delivered != 0 || got.Errors != 0 {
			t.Errorf("totals[%s] = %+v, want one cycle without delivery or error", p, got)
		}
	}
	if Idle.String() != status.StateIdle {
		t.Errorf("Idle renders %q, stats count %q", Idle, status.StateIdle)
	}
}

func TestBufferOverrunWarning(t *testing.T) {
	h := newHarness(t, nil)
	capture := newFakeCapture(seq(100))
	capture.dropped = 37
	h.register(t, "base", "z", capture)

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	waitForState(t, h.c, "base", Idle)
	h.c.Wait()

	var overrun *status.Event
	for _, ev := range h.sink.find(status.KindWarning, "base") {
		if ev.Reason == status.ReasonBufferOverrun {
			overrun = &ev
		}
	}
	if overrun == nil || overrun.Dropped != 37 {
		t.Fatalf("overrun warning = %+v, want dropped 37", overrun)
	}
	// The cycle still completes.
	if n := len(h.del.delivered()); n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}
}

func TestReleaseConvertsToCanonical(t *testing.T) {
	h := newHarness(t, nil)
	capture := newFakeCapture(seq(96000)) // 1s of 48kHz stereo
	capture.format = audio.Format{SampleRate: 48000, Channels: 2}
	h.register(t, "base", "z", capture)

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	waitForState(t, h.c, "base", Idle)
	h.c.Wait()

	reqs := h.tr.snapshot()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if n := len(reqs[0].Samples); n != 16000 {
		t.Errorf("request samples = %d, want 16000", n)
	}
}

func TestArchiveReceivesCanonicalSamples(t *testing.T) {
	archive := &fakeArchive{}
	h := newHarness(t, func(o *Options) { o.Archive = archive })
	h.register(t, "base", "z", newFakeCapture(seq(480)))

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	waitForState(t, h.c, "base", Idle)
	h.c.Wait()

	archive.mu.Lock()
	defer archive.mu.Unlock()
	if archive.saved["base"] != 480 {
		t.Errorf("archived %d samples, want 480", archive.saved["base"])
	}
}

func TestPanickingSinkStillReachesIdle(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Sink = status.SinkFunc(func(status.Event) { panic("sink down") })
	})
	h.register(t, "base", "z", newFakeCapture(seq(100)))

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	waitForState(t, h.c, "base", Idle)
	h.c.Wait()

	if n := len(h.del.delivered()); n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}
}

func TestHandleUnknownProfile(t *testing.T) {
	h := newHarness(t, nil)
	err := h.c.Handle(hotkey.Event{Profile: "ghost", Kind: hotkey.Press})
	if !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("Handle() error = %v, want ErrUnknownProfile", err)
	}
}

func TestHoldLimitAutoReleases(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxHold = 20 * time.Millisecond })
	h.register(t, "base", "z", newFakeCapture(seq(1000)))

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan hotkey.Event)
	done := make(chan error, 1)
	go func() { done <- h.c.Run(ctx, events) }()

	events <- hotkey.Event{Profile: "base", Kind: hotkey.Press}
	waitFor(t, "auto release dispatch", func() bool { return len(h.tr.snapshot()) == 1 })
	waitForState(t, h.c, "base", Idle)

	// The real release arrives late and is ignored.
	events <- hotkey.Event{Profile: "base", Kind: hotkey.Release}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	h.c.Wait()

	if n := len(h.tr.snapshot()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
	var limited bool
	for _, ev := range h.sink.find(status.KindWarning, "base") {
		limited = limited || ev.Reason == status.ReasonHoldLimit
	}
	if !limited {
		t.Error("no hold limit warning")
	}
}

func TestHoldLimitStaleTimerIgnored(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxHold = time.Hour })
	capture := newFakeCapture(seq(10))
	h.register(t, "base", "z", capture)

	h.handle(t, "base", hotkey.Press)
	h.handle(t, "base", hotkey.Release)
	waitForState(t, h.c, "base", Idle)
	h.c.Wait()
	h.handle(t, "base", hotkey.Press)

	// An expiry tagged with the finished cycle must not end the new one.
	m := h.c.machine("base")
	h.c.release(m, "not-the-current-cycle")
	if got := h.state(t, "base"); got != Recording {
		t.Errorf("state = %v, want recording", got)
	}
}

func TestRunStopsWhenEventsClose(t *testing.T) {
	h := newHarness(t, nil)
	events := make(chan hotkey.Event)
	close(events)
	if err := h.c.Run(context.Background(), events); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestCloseAbortsRecording(t *testing.T) {
	h := newHarness(t, nil)
	capture := newFakeCapture(seq(100))
	h.register(t, "base", "z", capture)

	h.handle(t, "base", hotkey.Press)
	h.c.Close()

	if got := h.state(t, "base"); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}
	if _, stops := capture.counts(); stops != 1 {
		t.Errorf("capture stopped %d times, want 1", stops)
	}
	if len(h.tr.snapshot()) != 0 {
		t.Error("aborted recording was transcribed")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Recording: "recording", Processing: "processing", State(9): "State(9)"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
