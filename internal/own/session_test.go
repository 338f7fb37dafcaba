package own

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// recorder is a Listener that records events as strings.
type recorder struct {
	events chan string
	errs   chan *ConnError
}

func newRecorder() *recorder {
	return &recorder{events: make(chan string, 32), errs: make(chan *ConnError, 4)}
}

func (r *recorder) OnConnected()         { r.events <- "connected" }
func (r *recorder) OnConnectionClosed()  { r.events <- "closed" }
func (r *recorder) OnDisconnected(error) { r.events <- "disconnected" }
func (r *recorder) OnReconnected()       { r.events <- "reconnected" }
func (r *recorder) OnMessage(msg Message) {
	r.events <- "message " + msg.String()
}
func (r *recorder) OnConnectionError(err *ConnError) {
	r.errs <- err
	r.events <- "error"
}

func (r *recorder) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-r.events:
		if got != want {
			t.Fatalf("event = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event %q", want)
	}
}

// pipeOpener hands out in-memory connections; the server ends are published
// on servers.
type pipeOpener struct {
	servers chan net.Conn
	err     error
}

func newPipeOpener() *pipeOpener {
	return &pipeOpener{servers: make(chan net.Conn, 4)}
}

func (o *pipeOpener) open(context.Context) (*link, error) {
	if o.err != nil {
		return nil, o.err
	}
	client, server := net.Pipe()
	o.servers <- server
	return &link{event: client, command: client}, nil
}

func (o *pipeOpener) describe() string { return "pipe" }

func nextServer(t *testing.T, o *pipeOpener) net.Conn {
	t.Helper()
	select {
	case c := <-o.servers:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func TestSessionLifecycle(t *testing.T) {
	op := newPipeOpener()
	s := newSession(SessionConfig{ReconnectInterval: 10 * time.Millisecond}, op)
	rec := newRecorder()
	s.Subscribe(rec)

	if err := s.Send(context.Background(), LightingOn("21")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send before Start error = %v, want ErrNotConnected", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	server := nextServer(t, op)
	rec.expect(t, "connected")

	if !s.IsConnected() {
		t.Fatal("IsConnected() = false after OnConnected")
	}

	go io.WriteString(server, "*1*1*21##") //nolint:errcheck
	rec.expect(t, "message *1*1*21##")

	sent := make(chan string, 1)
	go func() {
		frame, _ := readFrame(bufio.NewReader(server))
		sent <- frame
	}()
	if err := s.Send(context.Background(), LightingOff("21")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := <-sent; got != "*1*0*21##" {
		t.Errorf("gateway received %q, want *1*0*21##", got)
	}

	server.Close()
	rec.expect(t, "disconnected")
	nextServer(t, op)
	rec.expect(t, "reconnected")

	if got := s.Stats().ReconnectsTotal; got != 1 {
		t.Errorf("ReconnectsTotal = %d, want 1", got)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	rec.expect(t, "closed")

	if s.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := s.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close error = %v, want ErrClosed", err)
	}
}

func TestSessionConnectionError(t *testing.T) {
	op := newPipeOpener()
	op.err = &ConnError{Kind: ConnErrNoSerialPorts, Err: ErrNoSerialPorts}
	s := newSession(SessionConfig{}, op)
	rec := newRecorder()
	s.Subscribe(rec)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.expect(t, "error")

	ce := <-rec.errs
	if ce.Kind != ConnErrNoSerialPorts {
		t.Errorf("Kind = %v, want NO_SERIAL_PORTS", ce.Kind)
	}
	if s.IsConnected() {
		t.Error("IsConnected() = true after connection error")
	}
	s.Close()
}

func TestSessionUnsubscribe(t *testing.T) {
	op := newPipeOpener()
	s := newSession(SessionConfig{}, op)
	rec := newRecorder()
	s.Subscribe(rec)
	s.Start()
	server := nextServer(t, op)
	rec.expect(t, "connected")

	s.Unsubscribe(rec)
	go io.WriteString(server, "*1*1*21##") //nolint:errcheck

	select {
	case got := <-rec.events:
		t.Fatalf("unexpected event after Unsubscribe: %q", got)
	case <-time.After(100 * time.Millisecond):
	}

	s.Close()
	select {
	case got := <-rec.events:
		t.Fatalf("unexpected event after Close: %q", got)
	default:
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ConnErrorKind
	}{
		{name: "typed error kept", err: &ConnError{Kind: ConnErrRuntimeEnvironment}, want: ConnErrRuntimeEnvironment},
		{name: "no serial ports", err: ErrNoSerialPorts, want: ConnErrNoSerialPorts},
		{name: "auth failure", err: ErrAuthFailed, want: ConnErrOther},
		{name: "io failure", err: io.ErrUnexpectedEOF, want: ConnErrIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err).Kind; got != tt.want {
				t.Errorf("classify() kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadFrame(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\r\n*#*1##*1*1*0#4#01##garbage"))

	first, err := readFrame(r)
	if err != nil || first != "*#*1##" {
		t.Fatalf("first frame = (%q, %v)", first, err)
	}
	second, err := readFrame(r)
	if err != nil || second != "*1*1*0#4#01##" {
		t.Fatalf("second frame = (%q, %v)", second, err)
	}
	if _, err := readFrame(r); !errors.Is(err, io.EOF) {
		t.Errorf("trailing garbage error = %v, want EOF", err)
	}
}

func TestReadFrameTooLong(t *testing.T) {
	long := "*" + strings.Repeat("1", maxFrameLength+1)
	if _, err := readFrame(bufio.NewReader(strings.NewReader(long))); !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("error = %v, want ErrFrameTooLong", err)
	}
}
