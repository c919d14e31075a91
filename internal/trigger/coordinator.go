package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/voxhold/internal/alias"
	"github.com/chaz8081/voxhold/internal/audio"
	"github.com/chaz8081/voxhold/internal/hotkey"
	"github.com/chaz8081/voxhold/internal/status"
)

var (
	// ErrDuplicateCombo rejects a profile whose combo is already bound.
	ErrDuplicateCombo = errors.New("trigger: combo already registered")
	// ErrOverlappingCombo rejects a combo that shares its main key with a
	// bound one; holding ctrl+alt+shift+z would fire both ctrl+alt+z and
	// shift+z.
	ErrOverlappingCombo = errors.New("trigger: combo overlaps a registered combo")
	// ErrDuplicateProfile rejects a second profile with the same name.
	ErrDuplicateProfile = errors.New("trigger: profile already registered")
	// ErrUnknownProfile is returned by Handle for unregistered profiles.
	ErrUnknownProfile = errors.New("trigger: unknown profile")
)

// Profile identifies a registered trigger.
type Profile struct {
	Name  string
	Combo hotkey.Combo
}

// Options are the collaborators shared by every profile.
type Options struct {
	Transcriber Transcriber
	Deliverer   Deliverer
	Converter   Converter     // defaults to linear audio.Converter
	Aliases     alias.Table   // read-only, shared by all workers
	Sink        status.Sink   // defaults to status.Discard
	Archive     Archiver      // nil disables archiving
	MaxHold     time.Duration // zero disables the hold limit
	Logger      *slog.Logger
	NewCycleID  func() string // defaults to uuid.NewString
}

// autoRelease is posted by a hold-limit timer. cycle ties it to the
// recording that armed it so a stale timer is ignored.
type autoRelease struct {
	profile string
	cycle   string
}

// Coordinator owns every profile's machine. Handle and Run must only be
// used from one goroutine; completions arrive on worker goroutines.
type Coordinator struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	machines map[string]*machine
	order    []string
	combos   map[string]string // canonical combo -> profile

	auto chan autoRelease
	wg   sync.WaitGroup
}

// NewCoordinator creates a Coordinator with no profiles.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Converter == nil {
		opts.Converter = audio.Converter{Quality: audio.QualityLinear}
	}
	if opts.Sink == nil {
		opts.Sink = status.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewCycleID == nil {
		opts.NewCycleID = uuid.NewString
	}
	return &Coordinator{
		opts:     opts,
		logger:   opts.Logger,
		machines: make(map[string]*machine),
		combos:   make(map[string]string),
		auto:     make(chan autoRelease, 16),
	}
}

// Register adds a profile with its own capture. A duplicate name or combo
// is rejected and leaves existing profiles untouched.
func (c *Coordinator) Register(p Profile, capture Capture) error {
	if p.Name == "" {
		return errors.New("trigger: profile name must not be empty")
	}
	if p.Combo.IsZero() {
		return fmt.Errorf("trigger: profile %q: %w", p.Name, hotkey.ErrInvalidCombo)
	}
	if capture == nil {
		return fmt.Errorf("trigger: profile %q: capture must not be nil", p.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.machines[p.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateProfile, p.Name)
	}
	key := p.Combo.String()
	if owner, ok := c.combos[key]; ok {
		return fmt.Errorf("%w: %s is bound to %q, rejecting %q", ErrDuplicateCombo, key, owner, p.Name)
	}
	for _, name := range c.order {
		if bound := c.machines[name].profile.Combo; bound.Overlaps(p.Combo) {
			return fmt.Errorf("%w: %s overlaps %s of %q, rejecting %q", ErrOverlappingCombo, key, bound, name, p.Name)
		}
	}

	c.machines[p.Name] = &machine{profile: p, capture: capture}
	c.combos[key] = p.Name
	c.order = append(c.order, p.Name)
	c.logger.Debug("profile registered", "profile", p.Name, "combo", key)
	return nil
}

// Profiles returns the registered profiles in registration order.
func (c *Coordinator) Profiles() []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Profile, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.machines[name].profile)
	}
	return out
}

// State returns a profile's current state.
func (c *Coordinator) State(profile string) (State, bool) {
	m := c.machine(profile)
	if m == nil {
		return Idle, false
	}
	return m.current(), true
}

func (c *Coordinator) machine(profile string) *machine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.machines[profile]
}

// Handle applies one trigger edge to its profile.
func (c *Coordinator) Handle(ev hotkey.Event) error {
	m := c.machine(ev.Profile)
	if m == nil {
		return fmt.Errorf("%w: %q", ErrUnknownProfile, ev.Profile)
	}
	switch ev.Kind {
	case hotkey.Press:
		c.press(m)
	case hotkey.Release:
		c.release(m, "")
	}
	return nil
}

// Run handles trigger events and hold-limit expiries until ctx is done or
// events is closed.
func (c *Coordinator) Run(ctx context.Context, events <-chan hotkey.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := c.Handle(ev); err != nil {
				c.logger.Debug("ignoring trigger event", "profile", ev.Profile, "kind", ev.Kind.String(), "error", err)
			}
		case ar := <-c.auto:
			if m := c.machine(ar.profile); m != nil {
				c.release(m, ar.cycle)
			}
		}
	}
}

// Close abandons any recording in progress, releasing its device, and
// waits for in-flight transcriptions to finish. Call it after Run returns.
func (c *Coordinator) Close() {
	for _, p := range c.Profiles() {
		c.abort(c.machine(p.Name))
	}
	c.wg.Wait()
}

// Wait blocks until every dispatched cycle has returned to Idle.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) emit(ev status.Event) {
	if err := status.Emit(c.opts.Sink, ev); err != nil {
		c.logger.Warn("status sink failed", "profile", ev.Profile, "error", err)
	}
}

func (c *Coordinator) fail(m *machine, cycle string, stage status.Stage, err error) {
	c.emit(status.Event{Kind: status.KindError, Profile: m.profile.Name, Cycle: cycle, Stage: stage, Err: err})
}

func (c *Coordinator) warn(m *machine, cycle string, stage status.Stage, reason string, dropped uint64) {
	c.emit(status.Event{Kind: status.KindWarning, Profile: m.profile.Name, Cycle: cycle, Stage: stage, Reason: reason, Dropped: dropped})
}

func (c *Coordinator) metric(m *machine, cycle string, stage status.Stage, d time.Duration, samples int) {
	c.emit(status.Event{Kind: status.KindMetric, Profile: m.profile.Name, Cycle: cycle, Stage: stage, Duration: d, Samples: samples})
}

func (c *Coordinator) changed(m *machine, cycle string, s State) {
	c.emit(status.Event{Kind: status.KindState, Profile: m.profile.Name, Cycle: cycle, State: s.String()})
}
