package status

import (
	"sync"
	"time"
)

// Totals aggregates a run's events.
type Totals struct {
	Cycles    int // recordings that returned to idle, whatever the outcome
	Delivered int
	Errors    int
	Warnings  int
	Dropped   uint64
	Busy      time.Duration // summed transcribe time
}

// Stats is a Sink that counts events per profile.
type Stats struct {
	mu     sync.Mutex
	totals map[string]*Totals
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{totals: make(map[string]*Totals)}
}

func (s *Stats) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.totals[ev.Profile]
	if !ok {
		t = &Totals{}
		s.totals[ev.Profile] = t
	}

	switch ev.Kind {
	case KindState:
		if ev.State == StateIdle {
			t.Cycles++
		}
	case KindDelivered:
		t.Delivered++
	case KindError:
		t.Errors++
	case KindWarning:
		t.Warnings++
		t.Dropped += ev.Dropped
	case KindMetric:
		if ev.Stage == StageTranscribe {
			t.Busy += ev.Duration
		}
	}
}

// Snapshot copies the current totals keyed by profile.
func (s *Stats) Snapshot() map[string]Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Totals, len(s.totals))
	for k, v := range s.totals {
		out[k] = *v
	}
	return out
}
