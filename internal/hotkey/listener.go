package hotkey

import (
	"fmt"
	"sync"

	hook "github.com/robotn/gohook"
)

// Kind distinguishes the two edges of a trigger.
type Kind int

const (
	// Press fires when every key of a combo is down.
	Press Kind = iota
	// Release fires when the combo is let go.
	Release
)

func (k Kind) String() string {
	switch k {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Profile string
	Kind    Kind
}

// Binding ties a profile to its combo.
type Binding struct {
	Profile string
	Combo   Combo
}

// Listener registers one global hook per binding and reports edges per
// profile. gohook keeps process-wide state, so only one Listener may run at
// a time.
type Listener struct {
	bindings []Binding
	ch       chan Event
	done     chan struct{}
	once     sync.Once
}

// NewListener creates a Listener for the given bindings.
func NewListener(bindings []Binding) *Listener {
	return &Listener{
		bindings: append([]Binding(nil), bindings...),
		ch:       make(chan Event, 64),
		done:     make(chan struct{}),
	}
}

// Events returns the channel that receives trigger events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for every bound combo.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	for _, b := range l.bindings {
		profile := b.Profile
		keys := b.Combo.Keys()
		hook.Register(hook.KeyDown, keys, func(hook.Event) {
			l.emit(Event{Profile: profile, Kind: Press})
		})
		hook.Register(hook.KeyUp, keys, func(hook.Event) {
			l.emit(Event{Profile: profile, Kind: Release})
		})
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// emit never blocks the hook thread. Auto-repeat presses are the usual
// casualty of a full channel; a lost release is recovered by the hold limit.
func (l *Listener) emit(ev Event) {
	select {
	case l.ch <- ev:
	default:
	}
}

// Stop terminates the listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
