// Package input defines window and device events and the application state
// that reacts to them through an event bus.
package input

import "evbus/internal/events"

// KeyDown is posted when a key is pressed. Handlers may cancel it to keep it
// from reaching lower-precedence handlers.
type KeyDown struct {
	events.CancelFlag
	Key    string `json:"key"`
	Ctrl   bool   `json:"ctrl,omitempty"`
	Repeat bool   `json:"repeat,omitempty"`
}

type KeyUp struct {
	Key  string `json:"key"`
	Ctrl bool   `json:"ctrl,omitempty"`
}

// TextInput carries one typed character.
type TextInput struct {
	Char rune `json:"char"`
}

type MouseMotion struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type MouseButton struct {
	Button string  `json:"button"`
	Down   bool    `json:"down"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type MouseWheel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Resize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// GamepadAxis reports a stick position in [-1, 1].
type GamepadAxis struct {
	Axis  string  `json:"axis"`
	Value float64 `json:"value"`
}

type GamepadButton struct {
	Button string `json:"button"`
}

// Handler priorities used by State. Lower runs first.
const (
	PriorityToggle  = -200
	PriorityQuit    = -150
	PriorityOverlay = -100
	PriorityGame    = 0
)
