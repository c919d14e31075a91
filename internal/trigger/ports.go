package trigger

import (
	"github.com/chaz8081/voxhold/internal/audio"
	"github.com/chaz8081/voxhold/internal/transcribe"
)

// Capture is one profile's microphone session. *audio.Channel implements it.
type Capture interface {
	Start() error
	Stop() (audio.Capture, error)
}

// Converter turns captured samples into canonical mono 16kHz.
// audio.Converter implements it.
type Converter interface {
	ToCanonical(samples []float32, f audio.Format) ([]float32, error)
}

// Transcriber runs a request off the calling goroutine and reports back
// through done. *transcribe.Dispatcher implements it.
type Transcriber interface {
	Dispatch(req transcribe.Request, done func(transcribe.Result)) error
}

// Deliverer inserts text at the cursor. *inject.Injector implements it.
type Deliverer interface {
	Deliver(text string) error
}

// Archiver keeps a copy of each dispatched capture. *recording.Archive
// implements it.
type Archiver interface {
	Save(profile, cycle string, samples []float32) (string, error)
}
