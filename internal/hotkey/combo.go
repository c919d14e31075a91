// Package hotkey turns configured key combinations into per-profile
// press/release events using gohook.
package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCombo is wrapped by every ParseCombo failure.
var ErrInvalidCombo = errors.New("hotkey: invalid combo")

// Canonical modifier names, in the order String renders them. They double as
// gohook key names.
const (
	ModCtrl  = "ctrl"
	ModAlt   = "alt"
	ModShift = "shift"
	ModCmd   = "cmd"
)

var modifierOrder = []string{ModCtrl, ModAlt, ModShift, ModCmd}

var modifierAliases = map[string]string{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"shift":   ModShift,
	"cmd":     ModCmd,
	"command": ModCmd,
	"super":   ModCmd,
	"meta":    ModCmd,
	"win":     ModCmd,
}

// Combo is a set of modifiers plus one main key. The zero value is invalid;
// build one with ParseCombo.
type Combo struct {
	Modifiers []string // canonical names, sorted in modifierOrder
	Key       string   // lowercase gohook key name
}

// ParseCombo normalizes modifier aliases (Control, Option, Command, ...) and
// the main key. Repeated modifiers collapse into one.
func ParseCombo(modifiers []string, key string) (Combo, error) {
	seen := make(map[string]bool, len(modifiers))
	for _, m := range modifiers {
		name, ok := modifierAliases[strings.ToLower(strings.TrimSpace(m))]
		if !ok {
			return Combo{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidCombo, m)
		}
		seen[name] = true
	}

	k := strings.ToLower(strings.TrimSpace(key))
	switch {
	case k == "":
		return Combo{}, fmt.Errorf("%w: missing key", ErrInvalidCombo)
	case strings.ContainsAny(k, "+ \t"):
		return Combo{}, fmt.Errorf("%w: key %q must be a single key name", ErrInvalidCombo, key)
	}
	if _, isMod := modifierAliases[k]; isMod {
		return Combo{}, fmt.Errorf("%w: key %q is a modifier", ErrInvalidCombo, key)
	}

	c := Combo{Key: k}
	for _, m := range modifierOrder {
		if seen[m] {
			c.Modifiers = append(c.Modifiers, m)
		}
	}
	return c, nil
}

// MustParseCombo is ParseCombo for literals known to be valid.
func MustParseCombo(modifiers []string, key string) Combo {
	c, err := ParseCombo(modifiers, key)
	if err != nil {
		panic(err)
	}
	return c
}

// String renders the canonical form, e.g. "ctrl+alt+z". Two combos are
// identical exactly when their strings are equal.
func (c Combo) String() string {
	return strings.Join(c.Keys(), "+")
}

// Keys returns the gohook key names to register, modifiers first.
func (c Combo) Keys() []string {
	keys := make([]string, 0, len(c.Modifiers)+1)
	keys = append(keys, c.Modifiers...)
	return append(keys, c.Key)
}

// IsZero reports whether c was never parsed.
func (c Combo) IsZero() bool {
	return c.Key == ""
}

// Overlaps reports whether both combos can fire from a single chord. A hook
// fires once all of its keys are down regardless of what else is held, so any
// two combos on the same main key collide when the union of their modifiers
// is pressed.
func (c Combo) Overlaps(o Combo) bool {
	return c.Key == o.Key
}
