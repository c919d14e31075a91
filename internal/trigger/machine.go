package trigger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/voxhold/internal/alias"
	"github.com/chaz8081/voxhold/internal/status"
	"github.com/chaz8081/voxhold/internal/transcribe"
)

// machine is one profile's state. Idle->Recording and Recording->Processing
// happen on the event goroutine; Processing->Idle happens on the worker.
type machine struct {
	profile Profile
	capture Capture

	mu      sync.Mutex
	state   State
	cycle   string
	pressed time.Time
	hold    *time.Timer
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (c *Coordinator) press(m *machine) {
	m.mu.Lock()
	if m.state != Idle {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	cycle := c.opts.NewCycleID()
	if err := m.capture.Start(); err != nil {
		c.fail(m, cycle, status.StageCapture, err)
		return
	}

	m.mu.Lock()
	m.state = Recording
	m.cycle = cycle
	m.pressed = time.Now()
	if c.opts.MaxHold > 0 {
		name := m.profile.Name
		m.hold = time.AfterFunc(c.opts.MaxHold, func() {
			select {
			case c.auto <- autoRelease{profile: name, cycle: cycle}:
			default:
			}
		})
	}
	m.mu.Unlock()

	c.changed(m, cycle, Recording)
}

// release ends a recording. auto is the cycle id of a hold-limit expiry, or
// empty for a key release.
func (c *Coordinator) release(m *machine, auto string) {
	m.mu.Lock()
	if m.state != Recording || (auto != "" && auto != m.cycle) {
		m.mu.Unlock()
		return
	}
	cycle, pressed := m.cycle, m.pressed
	if m.hold != nil {
		m.hold.Stop()
		m.hold = nil
	}
	m.mu.Unlock()

	if auto != "" {
		c.warn(m, cycle, status.StageCapture, status.ReasonHoldLimit, 0)
	}

	captured, err := m.capture.Stop()
	if err != nil {
		c.idle(m, cycle)
		c.fail(m, cycle, status.StageCapture, err)
		return
	}
	if captured.Dropped > 0 {
		c.warn(m, cycle, status.StageCapture, status.ReasonBufferOverrun, captured.Dropped)
	}
	c.metric(m, cycle, status.StageCapture, captured.Duration, len(captured.Samples))

	if len(captured.Samples) == 0 {
		c.idle(m, cycle)
		c.warn(m, cycle, status.StageCapture, status.ReasonEmptyCapture, 0)
		return
	}

	start := time.Now()
	samples, err := c.opts.Converter.ToCanonical(captured.Samples, captured.Format)
	if err != nil {
		c.idle(m, cycle)
		c.fail(m, cycle, status.StageResample, err)
		return
	}
	c.metric(m, cycle, status.StageResample, time.Since(start), len(samples))
	if len(samples) == 0 {
		c.idle(m, cycle)
		c.warn(m, cycle, status.StageResample, status.ReasonEmptyCapture, 0)
		return
	}

	m.mu.Lock()
	m.state = Processing
	m.mu.Unlock()
	c.changed(m, cycle, Processing)

	c.wg.Add(1)
	req := transcribe.Request{Profile: m.profile.Name, Cycle: cycle, Samples: samples}
	err = c.opts.Transcriber.Dispatch(req, func(res transcribe.Result) {
		defer c.wg.Done()
		c.complete(m, res, pressed)
	})
	if err != nil {
		c.wg.Done()
		c.idle(m, cycle)
		c.fail(m, cycle, status.StageTranscribe, err)
	}
}

// complete runs on the worker goroutine. Whatever happens, the profile ends
// in Idle.
func (c *Coordinator) complete(m *machine, res transcribe.Result, pressed time.Time) {
	cycle := res.Cycle
	defer c.idle(m, cycle)
	defer func() {
		if r := recover(); r != nil {
			c.fail(m, cycle, status.StageDeliver, fmt.Errorf("trigger: completion panicked: %v", r))
		}
	}()

	if res.Load > 0 {
		c.metric(m, cycle, status.StageLoad, res.Load, 0)
	}
	if res.Err != nil {
		stage := status.StageTranscribe
		var loadErr *transcribe.ModelLoadError
		if errors.As(res.Err, &loadErr) {
			stage = status.StageLoad
		}
		c.fail(m, cycle, stage, res.Err)
		return
	}
	c.metric(m, cycle, status.StageTranscribe, res.Duration, len(res.Samples))

	if c.opts.Archive != nil {
		start := time.Now()
		if _, err := c.opts.Archive.Save(m.profile.Name, cycle, res.Samples); err != nil {
			c.logger.Warn("failed to archive recording", "profile", m.profile.Name, "cycle", cycle, "stage", string(status.StageArchive), "error", err)
		} else {
			c.metric(m, cycle, status.StageArchive, time.Since(start), len(res.Samples))
		}
	}

	start := time.Now()
	text, subs := alias.Apply(res.Text, c.opts.Aliases)
	c.metric(m, cycle, status.StageAlias, time.Since(start), 0)
	if len(subs) > 0 {
		c.logger.Debug("aliases applied", "profile", m.profile.Name, "cycle", cycle, "count", len(subs))
	}

	if strings.TrimSpace(text) == "" {
		c.logger.Debug("nothing to deliver", "profile", m.profile.Name, "cycle", cycle)
		return
	}

	start = time.Now()
	if err := c.opts.Deliverer.Deliver(text); err != nil {
		c.fail(m, cycle, status.StageDeliver, err)
		return
	}
	c.metric(m, cycle, status.StageDeliver, time.Since(start), 0)
	c.emit(status.Event{Kind: status.KindDelivered, Profile: m.profile.Name, Cycle: cycle, Duration: time.Since(pressed)})
}

func (c *Coordinator) idle(m *machine, cycle string) {
	m.mu.Lock()
	m.state = Idle
	m.cycle = ""
	m.mu.Unlock()
	c.changed(m, cycle, Idle)
}

// abort drops a recording in progress without transcribing it.
func (c *Coordinator) abort(m *machine) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.state != Recording {
		m.mu.Unlock()
		return
	}
	cycle := m.cycle
	if m.hold != nil {
		m.hold.Stop()
		m.hold = nil
	}
	m.mu.Unlock()

	if _, err := m.capture.Stop(); err != nil {
		c.logger.Debug("stopping capture on shutdown", "profile", m.profile.Name, "error", err)
	}
	c.idle(m, cycle)
}
