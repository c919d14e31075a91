// Package inject delivers text to the application that has keyboard focus,
// using robotgo for keystroke simulation or clipboard paste.
package inject

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-vgo/robotgo"
)

// Method selects how text reaches the cursor.
type Method string

const (
	// MethodType simulates individual keystrokes. It leaves the clipboard
	// alone but is slower for long text.
	MethodType Method = "type"
	// MethodPaste copies text to the clipboard and sends the paste shortcut,
	// restoring the previous clipboard afterwards.
	MethodPaste Method = "paste"
)

// DeliveryError means text was produced but could not be inserted. It is
// not retried.
type DeliveryError struct {
	Method Method
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("inject: %s: %v", e.Method, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// keyboard is the slice of robotgo the injector drives.
type keyboard interface {
	Type(text string)
	ReadClipboard() (string, error)
	WriteClipboard(text string) error
	KeyTap(key string, modifier string) error
}

type robotKeyboard struct{}

func (robotKeyboard) Type(text string)                 { robotgo.Type(text) }
func (robotKeyboard) ReadClipboard() (string, error)   { return robotgo.ReadAll() }
func (robotKeyboard) WriteClipboard(text string) error { return robotgo.WriteAll(text) }
func (robotKeyboard) KeyTap(key, modifier string) error {
	return robotgo.KeyTap(key, modifier)
}

// Injector handles typing or pasting text into the active application.
type Injector struct {
	method       Method
	kb           keyboard
	pasteMod     string
	restoreDelay time.Duration
}

// NewInjector creates an Injector for method, which must be MethodType or
// MethodPaste.
func NewInjector(method Method) (*Injector, error) {
	switch method {
	case MethodType, MethodPaste:
	default:
		return nil, fmt.Errorf("inject: unknown method %q (supported: type, paste)", method)
	}
	return &Injector{
		method:       method,
		kb:           robotKeyboard{},
		pasteMod:     pasteModifier(runtime.GOOS),
		restoreDelay: 150 * time.Millisecond,
	}, nil
}

func pasteModifier(goos string) string {
	if goos == "darwin" {
		return "cmd"
	}
	return "ctrl"
}

// Method returns the configured delivery method.
func (inj *Injector) Method() Method { return inj.method }

// Deliver sends text to the active application. Empty text is a no-op.
// Failures are returned as *DeliveryError.
func (inj *Injector) Deliver(text string) error {
	if text == "" {
		return nil
	}

	var err error
	switch inj.method {
	case MethodPaste:
		err = inj.paste(text)
	default:
		inj.kb.Type(text)
	}
	if err != nil {
		return &DeliveryError{Method: inj.method, Err: err}
	}
	return nil
}

func (inj *Injector) paste(text string) error {
	// A clipboard we cannot read is simply not restored.
	prev, readErr := inj.kb.ReadClipboard()

	if err := inj.kb.WriteClipboard(text); err != nil {
		return fmt.Errorf("write to clipboard: %w", err)
	}
	if err := inj.kb.KeyTap("v", inj.pasteMod); err != nil {
		return fmt.Errorf("key tap %s+v: %w", inj.pasteMod, err)
	}

	if readErr == nil {
		// The target reads the clipboard asynchronously after the shortcut.
		time.Sleep(inj.restoreDelay)
		_ = inj.kb.WriteClipboard(prev)
	}
	return nil
}
