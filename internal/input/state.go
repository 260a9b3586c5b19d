package input

import (
	"fmt"
	"sync"

	"evbus/internal/events"

	"github.com/rs/zerolog"
)

// State is the application state driven by input events: an overlay that
// captures input while open, a position steered by the right stick, the
// window size, and a quit request.
type State struct {
	mu          sync.Mutex
	overlayOpen bool
	posX, posY  float64
	width       float64
	height      float64
	captured    []string

	quitOnce sync.Once
	quit     chan struct{}

	detach []func()
	logger zerolog.Logger
}

func NewState(logger zerolog.Logger) *State {
	return &State{
		quit:   make(chan struct{}),
		logger: logger.With().Str("component", "input").Logger(),
	}
}

// Attach registers the state's handlers on bus. Escape toggles the overlay;
// Ctrl+Q and the gamepad mode button request quit; while the overlay is
// open it captures key, text and wheel input and cancels key presses so
// game handlers do not see them.
func (s *State) Attach(bus *events.Bus) {
	track(s, bus, events.Register(bus, s.onToggle, PriorityToggle))
	track(s, bus, events.Register(bus, s.onQuitKey, PriorityQuit))
	track(s, bus, events.Register(bus, s.onOverlayKey, PriorityOverlay))
	track(s, bus, events.Register(bus, s.onText, PriorityOverlay))
	track(s, bus, events.Register(bus, s.onWheel, PriorityOverlay))
	track(s, bus, events.Register(bus, s.onGamepadButton, PriorityGame))
	track(s, bus, events.Register(bus, s.onAxis, PriorityGame))
	track(s, bus, events.Register(bus, s.onResize, PriorityGame))
}

func track[T any](s *State, bus *events.Bus, id *events.HandlerID[T]) {
	s.mu.Lock()
	s.detach = append(s.detach, func() { events.Unregister(bus, id) })
	s.mu.Unlock()
}

// Detach removes every handler registered by Attach.
func (s *State) Detach() {
	s.mu.Lock()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
}

// Quit is closed once quit has been requested.
func (s *State) Quit() <-chan struct{} { return s.quit }

func (s *State) OverlayOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlayOpen
}

func (s *State) Position() (x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posX, s.posY
}

func (s *State) Size() (width, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Captured returns the input the overlay has taken, oldest first.
func (s *State) Captured() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.captured...)
}

func (s *State) requestQuit(reason string) {
	s.quitOnce.Do(func() {
		s.logger.Info().Str("reason", reason).Msg("quit requested")
		close(s.quit)
	})
}

func (s *State) onToggle(e *KeyDown) {
	if e.Key != "escape" || e.Repeat {
		return
	}
	s.mu.Lock()
	s.overlayOpen = !s.overlayOpen
	open := s.overlayOpen
	s.mu.Unlock()

	s.logger.Debug().Bool("open", open).Msg("overlay toggled")
	events.Cancel(e)
}

func (s *State) onQuitKey(e *KeyDown) {
	if e.Key == "q" && e.Ctrl {
		s.requestQuit("ctrl+q")
	}
}

func (s *State) onOverlayKey(e *KeyDown) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.overlayOpen {
		return
	}
	s.captured = append(s.captured, "key:"+e.Key)
	events.Cancel(e)
}

func (s *State) onText(e *TextInput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlayOpen {
		s.captured = append(s.captured, "text:"+string(e.Char))
	}
}

func (s *State) onWheel(e *MouseWheel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlayOpen {
		s.captured = append(s.captured, fmt.Sprintf("wheel:%g,%g", e.X, e.Y))
	}
}

func (s *State) onGamepadButton(e *GamepadButton) {
	if e.Button == "mode" {
		s.requestQuit("gamepad mode")
	}
}

func (s *State) onAxis(e *GamepadAxis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Axis {
	case "rightx":
		s.posX = e.Value
	case "righty":
		s.posY = -e.Value
	}
}

func (s *State) onResize(e *Resize) {
	s.mu.Lock()
	s.width, s.height = e.Width, e.Height
	s.mu.Unlock()
}
