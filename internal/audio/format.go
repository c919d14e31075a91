// Package audio captures microphone samples into a lock-free ring buffer and
// converts them to the canonical mono 16kHz format used for inference.
package audio

import (
	"fmt"
	"math"
	"time"
)

// CanonicalRate is the sample rate expected by the inference engine.
const CanonicalRate = 16000

// Canonical is the mono 16kHz format handed to transcription.
var Canonical = Format{SampleRate: CanonicalRate, Channels: 1}

// Format describes interleaved float32 samples.
type Format struct {
	SampleRate int
	Channels   int
}

// IsCanonical reports whether f is mono 16kHz.
func (f Format) IsCanonical() bool {
	return f == Canonical
}

// Validate checks that f describes a usable stream.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be > 0, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("audio: channels must be > 0, got %d", f.Channels)
	}
	return nil
}

// Duration returns the playback length of n interleaved samples.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := n / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// RingCapacity sizes a ring buffer as a whole number of device periods that
// covers maxDuration of audio, plus two periods of scheduling headroom.
func RingCapacity(f Format, periodFrames int, maxDuration time.Duration) int {
	if periodFrames <= 0 {
		periodFrames = 1024
	}
	block := periodFrames * f.Channels
	frames := int(math.Ceil(maxDuration.Seconds() * float64(f.SampleRate)))
	periods := (frames + periodFrames - 1) / periodFrames
	return (periods + 2) * block
}
