package input

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"evbus/internal/events"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArguments   = errors.New("bad arguments")
)

// Dispatch parses one textual command and posts the resulting event(s) on
// bus. It reports whether any posted event was cancelled.
//
//	key escape | key ctrl+q | key a repeat
//	keyup a
//	text hello
//	mouse 10 20
//	click left 10 20
//	wheel 0 1
//	resize 800 600
//	axis rightx 0.5
//	button mode
func Dispatch(bus *events.Bus, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "key":
		if len(args) < 1 || len(args) > 2 || (len(args) == 2 && args[1] != "repeat") {
			return false, badArgs(cmd, args)
		}
		key, ctrl := parseKey(args[0])
		return events.Post(bus, &KeyDown{Key: key, Ctrl: ctrl, Repeat: len(args) == 2}), nil

	case "keyup":
		if len(args) != 1 {
			return false, badArgs(cmd, args)
		}
		key, ctrl := parseKey(args[0])
		return events.Post(bus, &KeyUp{Key: key, Ctrl: ctrl}), nil

	case "text":
		if len(args) == 0 {
			return false, badArgs(cmd, args)
		}
		cancelled := false
		for _, r := range strings.Join(args, " ") {
			cancelled = events.Post(bus, &TextInput{Char: r}) || cancelled
		}
		return cancelled, nil

	case "mouse":
		v, err := floats(cmd, args, 2)
		if err != nil {
			return false, err
		}
		return events.Post(bus, &MouseMotion{X: v[0], Y: v[1]}), nil

	case "click":
		if len(args) != 3 {
			return false, badArgs(cmd, args)
		}
		v, err := floats(cmd, args[1:], 2)
		if err != nil {
			return false, err
		}
		button := strings.ToLower(args[0])
		down := events.Post(bus, &MouseButton{Button: button, Down: true, X: v[0], Y: v[1]})
		up := events.Post(bus, &MouseButton{Button: button, X: v[0], Y: v[1]})
		return down || up, nil

	case "wheel":
		v, err := floats(cmd, args, 2)
		if err != nil {
			return false, err
		}
		return events.Post(bus, &MouseWheel{X: v[0], Y: v[1]}), nil

	case "resize":
		v, err := floats(cmd, args, 2)
		if err != nil {
			return false, err
		}
		if v[0] <= 0 || v[1] <= 0 {
			return false, badArgs(cmd, args)
		}
		return events.Post(bus, &Resize{Width: v[0], Height: v[1]}), nil

	case "axis":
		if len(args) != 2 {
			return false, badArgs(cmd, args)
		}
		v, err := floats(cmd, args[1:], 1)
		if err != nil {
			return false, err
		}
		if v[0] < -1 || v[0] > 1 {
			return false, badArgs(cmd, args)
		}
		return events.Post(bus, &GamepadAxis{Axis: strings.ToLower(args[0]), Value: v[0]}), nil

	case "button":
		if len(args) != 1 {
			return false, badArgs(cmd, args)
		}
		return events.Post(bus, &GamepadButton{Button: strings.ToLower(args[0])}), nil
	}

	return false, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

// parseKey splits an optional "ctrl+" modifier from a key name.
func parseKey(s string) (key string, ctrl bool) {
	s = strings.ToLower(s)
	if rest, ok := strings.CutPrefix(s, "ctrl+"); ok {
		return rest, true
	}
	return s, false
}

// floats parses exactly n finite numbers.
func floats(cmd string, args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, badArgs(cmd, args)
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadArguments, cmd, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s: %q is not a finite number", ErrBadArguments, cmd, a)
		}
		out[i] = v
	}
	return out, nil
}

func badArgs(cmd string, args []string) error {
	return fmt.Errorf("%w: %s %s", ErrBadArguments, cmd, strings.Join(args, " "))
}
