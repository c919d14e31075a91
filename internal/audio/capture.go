package audio

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	// ErrAlreadyArmed is returned by Start while a session is active.
	ErrAlreadyArmed = errors.New("audio: capture already armed")
	// ErrNotArmed is returned by Stop when no session is active.
	ErrNotArmed = errors.New("audio: capture not armed")
	// ErrDeviceLost reports that the device stopped while capture was armed.
	ErrDeviceLost = errors.New("audio: device stopped during capture")
)

// DeviceError reports that the capture device could not be acquired or was
// lost mid-capture. The current cycle is over; a later Start may succeed.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Device is an opened capture stream. Close releases the device and returns
// only after the data callback has stopped running.
type Device interface {
	Start() error
	Close() error
}

// Backend opens capture devices. onData runs on the real-time audio thread
// with interleaved samples in the requested format; onStop runs when the
// device stops for any reason.
type Backend interface {
	Open(f Format, periodFrames int, onData func([]float32), onStop func()) (Device, error)
}

// Capture is the result of one armed interval.
type Capture struct {
	Samples  []float32 // interleaved, in Format
	Format   Format
	Dropped  uint64        // samples discarded on overflow
	Duration time.Duration // wall-clock time between Start and Stop
}

// Channel owns one profile's ring buffer and, while armed, its device
// handle. Start and Stop are called from a single goroutine; the device
// callback only touches the ring buffer and atomics.
type Channel struct {
	backend      Backend
	format       Format
	periodFrames int
	ring         *RingBuffer

	armed atomic.Bool
	lost  atomic.Bool

	session *session
}

// session is the ephemeral state of one armed interval.
type session struct {
	device  Device
	started time.Time
}

// NewChannel pre-allocates a ring buffer sized for maxDuration of audio.
func NewChannel(backend Backend, f Format, periodFrames int, maxDuration time.Duration) (*Channel, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if periodFrames <= 0 {
		periodFrames = 1024
	}
	return &Channel{
		backend:      backend,
		format:       f,
		periodFrames: periodFrames,
		ring:         NewRingBuffer(RingCapacity(f, periodFrames, maxDuration)),
	}, nil
}

// Format returns the device format samples are captured in.
func (c *Channel) Format() Format { return c.format }

// Armed reports whether the channel is accepting samples.
func (c *Channel) Armed() bool { return c.armed.Load() }

// Start resets the ring buffer, arms the channel and starts the device.
// On failure nothing stays armed and the device is released.
func (c *Channel) Start() error {
	if c.session != nil {
		return ErrAlreadyArmed
	}

	c.ring.Reset()
	c.lost.Store(false)

	device, err := c.backend.Open(c.format, c.periodFrames, c.onData, c.onStop)
	if err != nil {
		return &DeviceError{Op: "open capture device", Err: err}
	}

	c.armed.Store(true)
	if err := device.Start(); err != nil {
		c.armed.Store(false)
		_ = device.Close()
		return &DeviceError{Op: "start capture device", Err: err}
	}

	c.session = &session{device: device, started: time.Now()}
	return nil
}

// Stop disarms the channel, releases the device and drains every resident
// sample without waiting for more. A device lost while armed is reported as
// a DeviceError; the drained samples are discarded in that case.
func (c *Channel) Stop() (Capture, error) {
	s := c.session
	if s == nil {
		return Capture{}, ErrNotArmed
	}
	c.session = nil

	c.armed.Store(false)
	closeErr := s.device.Close()

	capture := Capture{
		Samples:  c.ring.Drain(make([]float32, 0, c.ring.Len())),
		Format:   c.format,
		Dropped:  c.ring.Dropped(),
		Duration: time.Since(s.started),
	}

	if c.lost.Load() {
		return Capture{Format: c.format, Dropped: capture.Dropped}, &DeviceError{Op: "capture", Err: ErrDeviceLost}
	}
	if closeErr != nil {
		return Capture{Format: c.format, Dropped: capture.Dropped}, &DeviceError{Op: "close capture device", Err: closeErr}
	}
	return capture, nil
}

// onData runs on the real-time thread: no allocation, locking or I/O.
func (c *Channel) onData(samples []float32) {
	if !c.armed.Load() {
		return
	}
	c.ring.Push(samples)
}

func (c *Channel) onStop() {
	if c.armed.Load() {
		c.lost.Store(true)
	}
}
