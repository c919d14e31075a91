package transcribe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperEngine wraps a whisper.cpp model. Each request gets a fresh
// context configured from the load-time Params.
type WhisperEngine struct {
	model  whisper.Model
	params Params
}

// LoadWhisper loads the model at spec.ModelPath and checks that its params
// are accepted. The caller must call Close() when done.
func LoadWhisper(spec Spec) (*WhisperEngine, error) {
	if _, err := os.Stat(spec.ModelPath); err != nil {
		return nil, fmt.Errorf("transcribe: model file: %w", err)
	}
	model, err := whisper.New(spec.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load whisper model %q: %w", spec.ModelPath, err)
	}

	e := &WhisperEngine{model: model, params: spec.Params}
	// A probe context surfaces a bad language hint now rather than on the
	// first request.
	if _, err := e.newContext(); err != nil {
		_ = model.Close()
		return nil, err
	}
	return e, nil
}

// WhisperLoader is the Loader for whisper.cpp models.
func WhisperLoader(spec Spec) (Engine, error) {
	e, err := LoadWhisper(spec)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *WhisperEngine) newContext() (whisper.Context, error) {
	ctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("transcribe: create context: %w", err)
	}
	if e.params.Threads > 0 {
		ctx.SetThreads(uint(e.params.Threads))
	}
	if e.params.BeamSize > 1 {
		ctx.SetBeamSize(e.params.BeamSize)
	}
	if e.params.Language != "" {
		if err := ctx.SetLanguage(e.params.Language); err != nil {
			return nil, fmt.Errorf("transcribe: set language %q: %w", e.params.Language, err)
		}
	}
	return ctx, nil
}

// Close releases the whisper model resources.
func (e *WhisperEngine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Transcribe processes mono 16kHz float32 audio samples into text.
func (e *WhisperEngine) Transcribe(samples []float32) (string, error) {
	ctx, err := e.newContext()
	if err != nil {
		return "", err
	}

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("transcribe: process: %w", err)
	}

	var segments []string
	for {
		seg, err := ctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("transcribe: next segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			segments = append(segments, text)
		}
	}

	return strings.Join(segments, " "), nil
}
