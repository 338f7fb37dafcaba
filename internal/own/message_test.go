package own

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantKind  Kind
		wantWho   string
		wantWhat  string
		wantWhere string
		wantDim   string
		status    bool
		wantErr   bool
	}{
		{name: "ack", frame: "*#*1##", wantKind: KindAck},
		{name: "nack", frame: "*#*0##", wantKind: KindNack},
		{name: "light on", frame: "*1*1*21##", wantKind: KindLighting, wantWho: "1", wantWhat: "1", wantWhere: "21"},
		{name: "light dim", frame: "*1*7*0#4#01##", wantKind: KindLighting, wantWho: "1", wantWhat: "7", wantWhere: "0#4#01"},
		{name: "zigbee off", frame: "*1*0*765432101#9##", wantKind: KindLighting, wantWho: "1", wantWhat: "0", wantWhere: "765432101#9"},
		{name: "status request", frame: "*#1*21##", wantKind: KindLighting, wantWho: "1", wantWhere: "21", status: true},
		{name: "firmware reply", frame: "*#13**16*1*2*3##", wantKind: KindGatewayManagement, wantWho: "13", wantDim: "16"},
		{name: "other who", frame: "*2*1*41##", wantKind: KindOther, wantWho: "2", wantWhat: "1", wantWhere: "41"},
		{name: "nonce", frame: "*#603356072##", wantKind: KindNonce},
		{name: "missing terminator", frame: "*1*1*21", wantErr: true},
		{name: "missing star", frame: "1*1*21##", wantErr: true},
		{name: "too few fields", frame: "*1*1##", wantErr: true},
		{name: "empty who", frame: "**1*21##", wantErr: true},
		{name: "non numeric nonce", frame: "*#abc##", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(tt.frame)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFrame) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidFrame", tt.frame, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.frame, err)
			}
			if msg.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", msg.Kind, tt.wantKind)
			}
			if msg.Who != tt.wantWho {
				t.Errorf("Who = %q, want %q", msg.Who, tt.wantWho)
			}
			if msg.What != tt.wantWhat {
				t.Errorf("What = %q, want %q", msg.What, tt.wantWhat)
			}
			if msg.Where != tt.wantWhere {
				t.Errorf("Where = %q, want %q", msg.Where, tt.wantWhere)
			}
			if msg.Dimension != tt.wantDim {
				t.Errorf("Dimension = %q, want %q", msg.Dimension, tt.wantDim)
			}
			if msg.Status != tt.status {
				t.Errorf("Status = %v, want %v", msg.Status, tt.status)
			}
			if msg.String() != tt.frame {
				t.Errorf("String() = %q, want %q", msg.String(), tt.frame)
			}
		})
	}
}

func TestMessageEncode(t *testing.T) {
	dim, err := LightingDim("21", 2)
	if err != nil {
		t.Fatalf("LightingDim: %v", err)
	}

	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{name: "on", msg: LightingOn("21"), want: "*1*1*21##"},
		{name: "off", msg: LightingOff("765432102#9"), want: "*1*0*765432102#9##"},
		{name: "dim 20%", msg: dim, want: "*1*2*21##"},
		{name: "status", msg: LightingStatus("0#4#01"), want: "*#1*0#4#01##"},
		{name: "firmware", msg: FirmwareRequest(), want: "*#13**16##"},
		{name: "password", msg: PasswordReply(25280520), want: "*#25280520##"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLightingDimRejectsOutOfRange(t *testing.T) {
	for _, level := range []int{-1, 0, 1, 11} {
		if _, err := LightingDim("21", level); !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("LightingDim(%d) error = %v, want ErrInvalidFrame", level, err)
		}
	}
}

func TestMessageLevel(t *testing.T) {
	tests := []struct {
		frame  string
		want   int
		wantOK bool
		on     bool
		off    bool
	}{
		{frame: "*1*0*21##", want: 0, wantOK: true, off: true},
		{frame: "*1*1*21##", want: 1, wantOK: true, on: true},
		{frame: "*1*5*21##", want: 5, wantOK: true},
		{frame: "*1*10*21##", want: 10, wantOK: true},
		{frame: "*1*20*21##"},
		{frame: "*1*1#1*21##", want: 1, wantOK: true, on: true},
		{frame: "*#1*21##"},
		{frame: "*2*1*21##"},
	}

	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			msg, err := Parse(tt.frame)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			level, ok := msg.Level()
			if ok != tt.wantOK || level != tt.want {
				t.Errorf("Level() = (%d, %v), want (%d, %v)", level, ok, tt.want, tt.wantOK)
			}
			if msg.IsOn() != tt.on {
				t.Errorf("IsOn() = %v, want %v", msg.IsOn(), tt.on)
			}
			if msg.IsOff() != tt.off {
				t.Errorf("IsOff() = %v, want %v", msg.IsOff(), tt.off)
			}
		})
	}
}

func TestFirmwareVersion(t *testing.T) {
	msg, err := Parse("*#13**16*1*4*7##")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, ok := msg.FirmwareVersion()
	if !ok || got != "1.4.7" {
		t.Errorf("FirmwareVersion() = (%q, %v), want (\"1.4.7\", true)", got, ok)
	}

	if _, ok := LightingOn("21").FirmwareVersion(); ok {
		t.Error("FirmwareVersion() on a lighting frame should be false")
	}
}

func TestSplitZigBeeWhere(t *testing.T) {
	tests := []struct {
		where    string
		wantAddr string
		wantUnit string
		wantErr  bool
	}{
		{where: "765432101#9", wantAddr: "7654321", wantUnit: Unit01},
		{where: "765432102#9", wantAddr: "7654321", wantUnit: Unit02},
		{where: "21", wantErr: true},
		{where: "01#9", wantErr: true},
		{where: "abc01#9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			addr, unit, err := SplitZigBeeWhere(tt.where)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SplitZigBeeWhere(%q) expected error", tt.where)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitZigBeeWhere(%q) unexpected error: %v", tt.where, err)
			}
			if addr != tt.wantAddr || unit != tt.wantUnit {
				t.Errorf("SplitZigBeeWhere(%q) = (%q, %q), want (%q, %q)", tt.where, addr, unit, tt.wantAddr, tt.wantUnit)
			}
		})
	}
}
