package own

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// ZigBee addressing. A ZigBee WHERE is the device address, a two digit unit
// and the "#9" network suffix, e.g. "765432101#9".
const (
	zigbeeNetworkSuffix = "#9"

	// Unit01 is the WHERE suffix of the first (or only) unit of a device.
	Unit01 = "01" + zigbeeNetworkSuffix

	// Unit02 is the WHERE suffix of the second unit of a 2-unit device.
	Unit02 = "02" + zigbeeNetworkSuffix

	// zigbeeBaudRate is the fixed line speed of the USB dongle.
	zigbeeBaudRate = 19200

	// zigbeeProbeTimeout bounds the wait for the dongle to answer a probe.
	zigbeeProbeTimeout = 2 * time.Second
)

// SplitZigBeeWhere splits a ZigBee WHERE into its device address and unit
// suffix ("765432101#9" → "7654321", "01#9").
//
// Returns ErrInvalidFrame if where is not a ZigBee address.
func SplitZigBeeWhere(where string) (address, unit string, err error) {
	if !strings.HasSuffix(where, zigbeeNetworkSuffix) || len(where) <= len(Unit01) {
		return "", "", fmt.Errorf("%w: not a ZigBee WHERE %q", ErrInvalidFrame, where)
	}
	cut := len(where) - len(Unit01)
	address, unit = where[:cut], where[cut:]
	if !isDigits(address) || !isDigits(unit[:2]) {
		return "", "", fmt.Errorf("%w: not a ZigBee WHERE %q", ErrInvalidFrame, where)
	}
	return address, unit, nil
}

// ZigBeeConfig holds USB dongle connection parameters.
type ZigBeeConfig struct {
	SessionConfig

	// SerialPort is the device path (e.g. /dev/ttyUSB0). Empty means
	// auto-discover: every enumerated port is probed in order.
	SerialPort string
}

// serialPort is the subset of serial.Port used by the dongle session.
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Serial access, replaceable in tests.
var (
	listSerialPorts = serial.GetPortsList
	openSerialPort  = func(name string) (serialPort, error) {
		return serial.Open(name, &serial.Mode{BaudRate: zigbeeBaudRate})
	}
)

// ZigBeeGateway is a session with a ZigBee USB dongle.
type ZigBeeGateway struct {
	*session
	cfg ZigBeeConfig

	portName string
}

// NewZigBeeGateway creates a ZigBee dongle gateway. Each call returns an
// independent instance; no state is shared between gateways.
func NewZigBeeGateway(cfg ZigBeeConfig) *ZigBeeGateway {
	g := &ZigBeeGateway{cfg: cfg}
	g.session = newSession(cfg.SessionConfig, g)
	return g
}

func (g *ZigBeeGateway) describe() string {
	if g.cfg.SerialPort == "" {
		return "zigbee://auto"
	}
	return "zigbee://" + g.cfg.SerialPort
}

// PortName returns the serial port of the last successful open.
func (g *ZigBeeGateway) PortName() string {
	g.connMu.RLock()
	defer g.connMu.RUnlock()
	return g.portName
}

func (g *ZigBeeGateway) open(ctx context.Context) (*link, error) {
	candidates := []string{g.cfg.SerialPort}
	if g.cfg.SerialPort == "" {
		ports, err := listSerialPorts()
		if err != nil {
			return nil, &ConnError{Kind: classifySerial(err), Err: fmt.Errorf("enumerate serial ports: %w", err)}
		}
		if len(ports) == 0 {
			return nil, &ConnError{Kind: ConnErrNoSerialPorts, Err: ErrNoSerialPorts}
		}
		candidates = ports
	}

	var lastErr error
	for _, name := range candidates {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
		default:
		}

		port, err := g.probe(name)
		if err != nil {
			g.logDebug("serial port probe failed", "port", name, "error", err)
			lastErr = err
			continue
		}

		g.connMu.Lock()
		g.portName = name
		g.connMu.Unlock()
		return &link{event: port, command: port}, nil
	}
	return nil, lastErr
}

// probe opens name and checks that a dongle answers the firmware request.
func (g *ZigBeeGateway) probe(name string) (serialPort, error) {
	port, err := openSerialPort(name)
	if err != nil {
		return nil, &ConnError{Kind: classifySerial(err), Err: fmt.Errorf("open %s: %w", name, err)}
	}

	if err := port.SetReadTimeout(zigbeeProbeTimeout); err != nil {
		port.Close()
		return nil, &ConnError{Kind: ConnErrIO, Err: fmt.Errorf("set read timeout: %w", err)}
	}

	if _, err := io.WriteString(port, FirmwareRequest().String()); err != nil {
		port.Close()
		return nil, &ConnError{Kind: ConnErrIO, Err: fmt.Errorf("write probe: %w", err)}
	}

	frame, err := readFrame(unbufferedReader{r: port})
	if err != nil {
		port.Close()
		return nil, &ConnError{Kind: ConnErrDisconnected, Err: fmt.Errorf("no answer on %s: %w", name, err)}
	}
	if frame == FrameNack {
		port.Close()
		return nil, &ConnError{Kind: ConnErrOther, Err: fmt.Errorf("%w: %s refused the probe", ErrConnectionFailed, name)}
	}

	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return nil, &ConnError{Kind: ConnErrIO, Err: fmt.Errorf("clear read timeout: %w", err)}
	}
	return port, nil
}

// classifySerial maps serial library errors onto connection error kinds.
func classifySerial(err error) ConnErrorKind {
	var perr *serial.PortError
	if errors.As(err, &perr) {
		switch perr.Code() {
		case serial.PortNotFound, serial.PortBusy, serial.PermissionDenied, serial.PortClosed:
			return ConnErrDisconnected
		case serial.FunctionNotImplemented:
			return ConnErrRuntimeEnvironment
		case serial.ErrorEnumeratingPorts:
			return ConnErrNoSerialPorts
		}
	}
	return ConnErrIO
}
