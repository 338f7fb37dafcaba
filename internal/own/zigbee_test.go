package own

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// pipePort adapts one end of net.Pipe to the serialPort interface.
type pipePort struct {
	net.Conn
}

func (p pipePort) SetReadTimeout(time.Duration) error { return nil }

func stubSerial(t *testing.T, ports []string, listErr error, open func(name string) (serialPort, error)) {
	t.Helper()
	origList, origOpen := listSerialPorts, openSerialPort
	listSerialPorts = func() ([]string, error) { return ports, listErr }
	openSerialPort = open
	t.Cleanup(func() {
		listSerialPorts, openSerialPort = origList, origOpen
	})
}

func TestZigBeeOpenNoPorts(t *testing.T) {
	stubSerial(t, nil, nil, func(string) (serialPort, error) {
		t.Fatal("open should not be called without ports")
		return nil, nil
	})

	g := NewZigBeeGateway(ZigBeeConfig{})
	_, err := g.open(context.Background())

	var ce *ConnError
	if !errors.As(err, &ce) || ce.Kind != ConnErrNoSerialPorts {
		t.Fatalf("open() error = %v, want NO_SERIAL_PORTS", err)
	}
	if !errors.Is(err, ErrNoSerialPorts) {
		t.Errorf("open() error should wrap ErrNoSerialPorts")
	}
}

func TestZigBeeAutoDiscoverSkipsDeadPorts(t *testing.T) {
	stubSerial(t, []string{"/dev/ttyS0", "/dev/ttyUSB0"}, nil, func(name string) (serialPort, error) {
		client, server := net.Pipe()
		go func() {
			r := bufio.NewReader(server)
			frame, err := readFrame(r)
			if err != nil || frame != "*#13**16##" {
				server.Close()
				return
			}
			if name == "/dev/ttyS0" {
				server.Close()
				return
			}
			io.WriteString(server, "*#13**16*2*1*0##") //nolint:errcheck
		}()
		return pipePort{client}, nil
	})

	g := NewZigBeeGateway(ZigBeeConfig{})
	l, err := g.open(context.Background())
	if err != nil {
		t.Fatalf("open() unexpected error: %v", err)
	}
	defer l.close()

	if got := g.PortName(); got != "/dev/ttyUSB0" {
		t.Errorf("PortName() = %q, want /dev/ttyUSB0", got)
	}
}

func TestZigBeeOpenNamedPortRefused(t *testing.T) {
	stubSerial(t, nil, nil, func(string) (serialPort, error) {
		client, server := net.Pipe()
		go func() {
			readFrame(bufio.NewReader(server)) //nolint:errcheck
			io.WriteString(server, FrameNack)  //nolint:errcheck
		}()
		return pipePort{client}, nil
	})

	g := NewZigBeeGateway(ZigBeeConfig{SerialPort: "/dev/ttyUSB0"})
	_, err := g.open(context.Background())

	var ce *ConnError
	if !errors.As(err, &ce) || ce.Kind != ConnErrOther {
		t.Fatalf("open() error = %v, want OTHER", err)
	}
}

func TestZigBeeDescribe(t *testing.T) {
	if got := NewZigBeeGateway(ZigBeeConfig{}).describe(); got != "zigbee://auto" {
		t.Errorf("describe() = %q", got)
	}
	if got := NewZigBeeGateway(ZigBeeConfig{SerialPort: "/dev/ttyUSB0"}).describe(); got != "zigbee:///dev/ttyUSB0" {
		t.Errorf("describe() = %q", got)
	}
}
