package own

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the family of an OpenWebNet frame.
type Kind int

// Frame kinds. Dispatchers switch on Kind instead of inspecting WHO codes.
const (
	KindOther Kind = iota
	KindAck
	KindNack
	KindLighting
	KindGatewayManagement
	KindNonce
)

// String returns a readable kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindNack:
		return "nack"
	case KindLighting:
		return "lighting"
	case KindGatewayManagement:
		return "gateway-management"
	case KindNonce:
		return "nonce"
	default:
		return "other"
	}
}

// WHO codes used by this client.
const (
	WhoLighting          = "1"
	WhoGatewayManagement = "13"
)

// Lighting WHAT values.
const (
	WhatOff = "0"
	WhatOn  = "1"
)

// Gateway management dimensions.
const (
	DimFirmwareVersion = "16"
)

// Well known frames.
const (
	FrameAck            = "*#*1##"
	FrameNack           = "*#*0##"
	FrameCommandSession = "*99*0##"
	FrameEventSession   = "*99*1##"
	// FrameHMACSession is sent by gateways that require HMAC authentication.
	FrameHMACSession = "*98*2##"
)

const frameTerminator = "##"

// Message is a parsed OpenWebNet frame.
//
// Normal frames carry Who/What/Where. Status requests set Status and leave
// What empty. Dimension frames set Dimension and, for replies or writes, Values.
// Messages are values and are not modified after parsing.
type Message struct {
	Kind       Kind
	Who        string
	What       string
	WhatParams []string
	Where      string
	Status     bool
	Dimension  string
	Values     []string
	Nonce      string

	raw string
}

// Parse decodes a single frame such as "*1*1*21##".
//
// Returns ErrInvalidFrame if the frame does not start with '*', does not end
// with "##", or does not have the field count its form requires.
func Parse(frame string) (Message, error) {
	if len(frame) < 5 || frame[0] != '*' || !strings.HasSuffix(frame, frameTerminator) {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidFrame, frame)
	}

	switch frame {
	case FrameAck:
		return Message{Kind: KindAck, raw: frame}, nil
	case FrameNack:
		return Message{Kind: KindNack, raw: frame}, nil
	}

	body := frame[1 : len(frame)-len(frameTerminator)]
	parts := strings.Split(body, "*")

	if strings.HasPrefix(parts[0], "#") {
		return parseHashFrame(frame, parts)
	}

	if len(parts) != 3 || parts[0] == "" {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidFrame, frame)
	}

	what, params := splitParams(parts[1])
	return Message{
		Kind:       kindForWho(parts[0]),
		Who:        parts[0],
		What:       what,
		WhatParams: params,
		Where:      parts[2],
		raw:        frame,
	}, nil
}

// parseHashFrame handles frames whose first field starts with '#': nonces,
// status requests and dimension frames.
func parseHashFrame(frame string, parts []string) (Message, error) {
	who := strings.TrimPrefix(parts[0], "#")

	if len(parts) == 1 {
		if who == "" || !isDigits(who) {
			return Message{}, fmt.Errorf("%w: %q", ErrInvalidFrame, frame)
		}
		return Message{Kind: KindNonce, Nonce: who, raw: frame}, nil
	}

	if who == "" {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidFrame, frame)
	}

	msg := Message{Kind: kindForWho(who), Who: who, Where: parts[1], raw: frame}
	switch len(parts) {
	case 2:
		msg.Status = true
	default:
		msg.Dimension = parts[2]
		if len(parts) > 3 {
			msg.Values = parts[3:]
		}
	}
	return msg, nil
}

func kindForWho(who string) Kind {
	switch who {
	case WhoLighting:
		return KindLighting
	case WhoGatewayManagement:
		return KindGatewayManagement
	default:
		return KindOther
	}
}

func splitParams(what string) (string, []string) {
	if !strings.Contains(what, "#") {
		return what, nil
	}
	fields := strings.Split(what, "#")
	return fields[0], fields[1:]
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// String returns the wire form of the message.
func (m Message) String() string {
	if m.raw != "" {
		return m.raw
	}
	return m.encode()
}

func (m Message) encode() string {
	switch m.Kind {
	case KindAck:
		return FrameAck
	case KindNack:
		return FrameNack
	case KindNonce:
		return "*#" + m.Nonce + frameTerminator
	}

	var b strings.Builder
	if m.Status || m.Dimension != "" {
		b.WriteString("*#")
		b.WriteString(m.Who)
		b.WriteString("*")
		b.WriteString(m.Where)
		if m.Dimension != "" {
			b.WriteString("*")
			b.WriteString(m.Dimension)
			for _, v := range m.Values {
				b.WriteString("*")
				b.WriteString(v)
			}
		}
		b.WriteString(frameTerminator)
		return b.String()
	}

	b.WriteString("*")
	b.WriteString(m.Who)
	b.WriteString("*")
	b.WriteString(m.What)
	for _, p := range m.WhatParams {
		b.WriteString("#")
		b.WriteString(p)
	}
	b.WriteString("*")
	b.WriteString(m.Where)
	b.WriteString(frameTerminator)
	return b.String()
}

// IsOn reports whether a lighting frame says the light is on without a level.
func (m Message) IsOn() bool {
	return m.Kind == KindLighting && !m.Status && m.Dimension == "" && m.What == WhatOn
}

// IsOff reports whether a lighting frame says the light is off.
func (m Message) IsOff() bool {
	return m.Kind == KindLighting && !m.Status && m.Dimension == "" && m.What == WhatOff
}

// Level returns the quantised level (0-10) carried by a lighting frame.
// WHAT 0 is off, WHAT 1 is on and WHAT 2..10 are dimmer steps of 10%.
// Other WHAT values (timed on, blinking, ...) are not levels.
func (m Message) Level() (int, bool) {
	if m.Kind != KindLighting || m.Status || m.Dimension != "" {
		return 0, false
	}
	n, err := strconv.Atoi(m.What)
	if err != nil || n < 0 || n > 10 {
		return 0, false
	}
	return n, true
}

// FirmwareVersion extracts "V.R.B" from a gateway firmware dimension reply.
func (m Message) FirmwareVersion() (string, bool) {
	if m.Kind != KindGatewayManagement || m.Dimension != DimFirmwareVersion || len(m.Values) < 3 {
		return "", false
	}
	return strings.Join(m.Values[:3], "."), true
}

// LightingOn builds a turn-on request for where.
func LightingOn(where string) Message {
	return Message{Kind: KindLighting, Who: WhoLighting, What: WhatOn, Where: where}
}

// LightingOff builds a turn-off request for where.
func LightingOff(where string) Message {
	return Message{Kind: KindLighting, Who: WhoLighting, What: WhatOff, Where: where}
}

// LightingDim builds a dim request. Level must be 2..10 (20%..100%); the
// protocol has no "dim to 10%" command.
func LightingDim(where string, level int) (Message, error) {
	if level < 2 || level > 10 {
		return Message{}, fmt.Errorf("%w: dim level %d out of range 2..10", ErrInvalidFrame, level)
	}
	return Message{Kind: KindLighting, Who: WhoLighting, What: strconv.Itoa(level), Where: where}, nil
}

// LightingStatus builds a status request for where.
func LightingStatus(where string) Message {
	return Message{Kind: KindLighting, Who: WhoLighting, Where: where, Status: true}
}

// FirmwareRequest builds the gateway firmware version request.
func FirmwareRequest() Message {
	return Message{Kind: KindGatewayManagement, Who: WhoGatewayManagement, Dimension: DimFirmwareVersion}
}

// PasswordReply builds the frame answering a nonce challenge.
func PasswordReply(checksum uint32) Message {
	return Message{Kind: KindNonce, Nonce: strconv.FormatUint(uint64(checksum), 10)}
}
