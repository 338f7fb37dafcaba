package openwebnet

import "time"

// Quantised brightness bounds. Level n means n*10 percent.
const (
	UnknownLevel = -1
	MinLevel     = 0
	MaxLevel     = 10

	// minWireDimLevel is the lowest level the protocol can dim to; a request
	// for level 1 goes out as "dim to 20%".
	minWireDimLevel = 2
)

// BrightnessState is the reconciliation state of one dimmer. It is a value:
// transitions return the next state and the effects to perform.
type BrightnessState struct {
	// LastKnownLevel is the level last commanded or reported (-1 = unknown).
	LastKnownLevel int

	// LastLevelBeforeOff is the level held when the light last went to 0
	// (-1 = none). Only written by transitions into level 0.
	LastLevelBeforeOff int

	// PendingSelfChange is when we last sent a level command.
	PendingSelfChange time.Time

	// StatusRequested is set while an explicit status read is outstanding.
	StatusRequested bool
}

// NewBrightnessState returns the state of a dimmer never seen before.
func NewBrightnessState() BrightnessState {
	return BrightnessState{LastKnownLevel: UnknownLevel, LastLevelBeforeOff: UnknownLevel}
}

// Effects are the side effects requested by a transition.
type Effects struct {
	// Send asks for a level command with WireLevel (0 = off, 2..10 = dim).
	Send      bool
	WireLevel int

	// RequestStatus asks for an explicit status read.
	RequestStatus bool

	// Publish asks for Level to be written to the brightness channels.
	Publish bool
	Level   int
}

// DimTo applies a command-driven level change.
//
// When resume is set (an ON command) and the light is off or unknown, the
// level before the last off is restored, or level 1 if there is none. The
// requested level is clamped to 0..10 and a request equal to the known level
// is a no-op.
func (s BrightnessState) DimTo(level int, resume bool, now time.Time) (BrightnessState, Effects) {
	if resume {
		switch {
		case s.LastKnownLevel > 0:
			level = s.LastKnownLevel
		case s.LastLevelBeforeOff > 0:
			level = s.LastLevelBeforeOff
		default:
			level = 1
		}
	}

	level = clampLevel(level)
	if level == s.LastKnownLevel {
		return s, Effects{}
	}

	wire := level
	if wire > MinLevel && wire < minWireDimLevel {
		wire = minWireDimLevel
	}

	next := s
	next.PendingSelfChange = now
	if level == MinLevel {
		next.LastLevelBeforeOff = s.LastKnownLevel
	}
	next.LastKnownLevel = level

	return next, Effects{Send: true, WireLevel: wire, Publish: true, Level: level}
}

// OnReport applies a lighting report from the network. Level 1 is the plain
// "on" report, which carries no brightness.
//
// An "on" report more than debounce after our last command triggers a
// status read unless one is already outstanding. While a read is
// outstanding, a further "on" report is taken as level 1 like any other
// level report. Any other report that
// changes the level is published if debounce has elapsed or it is an off
// report; otherwise it is treated as the echo of our own command and only
// tracked.
func (s BrightnessState) OnReport(level int, now time.Time, debounce time.Duration) (BrightnessState, Effects) {
	elapsed := now.Sub(s.PendingSelfChange)
	next := s

	if level == 1 && !s.StatusRequested {
		if elapsed >= debounce {
			next.StatusRequested = true
			return next, Effects{RequestStatus: true}
		}
		return s, Effects{}
	}

	var fx Effects
	if level != s.LastKnownLevel {
		if elapsed >= debounce || level == MinLevel {
			fx = Effects{Publish: true, Level: level}
		}
		if level == MinLevel {
			next.LastLevelBeforeOff = s.LastKnownLevel
		}
		next.LastKnownLevel = level
	}
	next.StatusRequested = false
	return next, fx
}

// PercentToLevel quantises a 0-100 percentage. Anything above 0 and below 10
// maps to level 1 so a small non-zero value never turns the light off.
func PercentToLevel(percent int) int {
	if percent > 0 && percent < 10 {
		return 1
	}
	return clampLevel(percent / 10)
}

func clampLevel(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
