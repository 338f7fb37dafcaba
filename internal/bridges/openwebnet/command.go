package openwebnet

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandKind is the type of a channel command.
type CommandKind string

// Command kinds.
const (
	CommandOn       CommandKind = "ON"
	CommandOff      CommandKind = "OFF"
	CommandPercent  CommandKind = "PERCENT"
	CommandIncrease CommandKind = "INCREASE"
	CommandDecrease CommandKind = "DECREASE"
	CommandDecimal  CommandKind = "DECIMAL"
	CommandRefresh  CommandKind = "REFRESH"
)

// Command is a host request against one channel.
type Command struct {
	Kind  CommandKind
	Value int
}

func (c Command) String() string {
	switch c.Kind {
	case CommandPercent:
		return strconv.Itoa(c.Value) + "%"
	case CommandDecimal:
		return strconv.Itoa(c.Value)
	default:
		return string(c.Kind)
	}
}

// ParseCommand decodes a text payload for channel.
//
// Keywords (ON, OFF, INCREASE, DECREASE, REFRESH) are case-insensitive.
// A number is a percentage on the brightness channel and a level on the
// dimmerLevel channel; other channels do not accept numbers.
func ParseCommand(channel, payload string) (Command, error) {
	text := strings.ToUpper(strings.TrimSpace(payload))
	switch CommandKind(text) {
	case CommandOn, CommandOff, CommandIncrease, CommandDecrease, CommandRefresh:
		return Command{Kind: CommandKind(text)}, nil
	}

	n, err := strconv.Atoi(strings.TrimSuffix(text, "%"))
	if err != nil {
		return Command{}, fmt.Errorf("%w: %q", ErrUnsupportedCommand, payload)
	}

	switch channel {
	case ChannelBrightness:
		if n < 0 || n > 100 {
			return Command{}, fmt.Errorf("%w: percent %d out of range 0..100", ErrUnsupportedCommand, n)
		}
		return Command{Kind: CommandPercent, Value: n}, nil
	case ChannelDimmerLevel:
		return Command{Kind: CommandDecimal, Value: n}, nil
	default:
		return Command{}, fmt.Errorf("%w: numeric value on channel %s", ErrUnsupportedCommand, channel)
	}
}
