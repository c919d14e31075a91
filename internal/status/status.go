// Package status carries informational events from the trigger pipeline to
// whoever is observing it: logs, counters, or a test. Nothing in the pipeline
// depends on a sink succeeding.
package status

import (
	"fmt"
	"log/slog"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	KindState     Kind = "state"     // a profile changed state
	KindMetric    Kind = "metric"    // a stage finished; Duration is set
	KindWarning   Kind = "warning"   // non-fatal condition, see Reason
	KindError     Kind = "error"     // the cycle failed; Err is set
	KindDelivered Kind = "delivered" // text reached the cursor
)

// StateIdle is the State of a KindState event that closes a cycle.
const StateIdle = "idle"

// Stage names the pipeline step an event belongs to.
type Stage string

const (
	StageCapture    Stage = "capture"
	StageResample   Stage = "resample"
	StageLoad       Stage = "load"
	StageTranscribe Stage = "transcribe"
	StageAlias      Stage = "alias"
	StageDeliver    Stage = "deliver"
	StageArchive    Stage = "archive"
)

// Warning reasons.
const (
	ReasonBufferOverrun = "buffer_overrun"
	ReasonEmptyCapture  = "empty_capture"
	ReasonHoldLimit     = "hold_limit"
)

// Event is one observation. Only the fields relevant to Kind are set.
type Event struct {
	Time     time.Time
	Kind     Kind
	Profile  string
	Cycle    string
	Stage    Stage
	State    string
	Reason   string
	Duration time.Duration
	Dropped  uint64
	Samples  int
	Err      error
}

// Sink receives events. Emit may be called from several goroutines.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Emit stamps ev and hands it to s. A panicking sink is recovered and the
// panic returned as an error so callers can carry on.
func Emit(s Sink, ev Event) (err error) {
	if s == nil {
		return nil
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("status: sink panicked: %v", r)
		}
	}()
	s.Emit(ev)
	return nil
}

type multi []Sink

// Multi fans each event out to every sink. A panic in one sink does not stop
// the others.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Emit(ev Event) {
	for _, s := range m {
		_ = Emit(s, ev)
	}
}

// LogSink writes events as structured log records.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink returns a LogSink on logger, or on slog.Default() when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

func (l *LogSink) Emit(ev Event) {
	attrs := []any{"profile", ev.Profile}
	if ev.Cycle != "" {
		attrs = append(attrs, "cycle", ev.Cycle)
	}
	if ev.Stage != "" {
		attrs = append(attrs, "stage", string(ev.Stage))
	}

	switch ev.Kind {
	case KindState:
		l.Logger.Debug("state changed", append(attrs, "state", ev.State)...)
	case KindMetric:
		attrs = append(attrs, "duration", ev.Duration)
		if ev.Samples > 0 {
			attrs = append(attrs, "samples", ev.Samples)
		}
		l.Logger.Debug("stage finished", attrs...)
	case KindWarning:
		attrs = append(attrs, "reason", ev.Reason)
		if ev.Dropped > 0 {
			attrs = append(attrs, "dropped", ev.Dropped)
		}
		l.Logger.Warn("cycle warning", attrs...)
	case KindError:
		l.Logger.Error("cycle failed", append(attrs, "error", ev.Err)...)
	case KindDelivered:
		l.Logger.Info("text delivered", append(attrs, "duration", ev.Duration)...)
	default:
		l.Logger.Info("status", append(attrs, "kind", string(ev.Kind))...)
	}
}
