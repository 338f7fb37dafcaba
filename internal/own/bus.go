package own

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// BUS gateway defaults.
const (
	DefaultBusHost     = "127.0.0.1"
	DefaultBusPort     = 20000
	DefaultBusPassword = "12345"
)

// BusConfig holds BUS/SCS gateway connection parameters.
type BusConfig struct {
	SessionConfig

	// Host is the gateway address. Default: 127.0.0.1.
	Host string

	// Port is the OpenWebNet TCP port. Default: 20000.
	Port int

	// Password is the numeric OPEN password. Default: 12345.
	Password string
}

// BusGateway is a session with a BUS/SCS IP gateway.
//
// Two TCP sessions are opened: an event session that receives bus
// traffic, and a command session used for requests. Replies to status
// requests arrive on the command session and are delivered like events.
type BusGateway struct {
	*session
	cfg BusConfig
}

// NewBusGateway creates a BUS gateway. No connection is made until Start.
func NewBusGateway(cfg BusConfig) *BusGateway {
	if cfg.Host == "" {
		cfg.Host = DefaultBusHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultBusPort
	}
	if cfg.Password == "" {
		cfg.Password = DefaultBusPassword
	}

	g := &BusGateway{cfg: cfg}
	g.session = newSession(cfg.SessionConfig, g)
	return g
}

// Address returns the host:port the gateway dials.
func (g *BusGateway) Address() string {
	return net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))
}

func (g *BusGateway) describe() string {
	return "bus://" + g.Address()
}

func (g *BusGateway) open(ctx context.Context) (*link, error) {
	events, err := g.openSession(ctx, FrameEventSession)
	if err != nil {
		return nil, fmt.Errorf("event session: %w", err)
	}

	commands, err := g.openSession(ctx, FrameCommandSession)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("command session: %w", err)
	}

	return &link{event: events, command: commands}, nil
}

// openSession dials the gateway and runs the session handshake:
//
//	gateway: *#*1##        client: *99*1## (or *99*0##)
//	gateway: *#*1##        (open gateway, done)
//	gateway: *#<nonce>##   client: *#<checksum>##   gateway: *#*1##
func (g *BusGateway) openSession(ctx context.Context, mode string) (net.Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", g.Address())
	if err != nil {
		return nil, &ConnError{Kind: ConnErrIO, Err: fmt.Errorf("dial %s: %w", g.Address(), err)}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := g.handshake(conn, mode); err != nil {
		conn.Close()
		return nil, err
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

func (g *BusGateway) handshake(rw io.ReadWriter, mode string) error {
	r := unbufferedReader{r: rw}

	if err := expectAck(r, "greeting"); err != nil {
		return err
	}

	if _, err := io.WriteString(rw, mode); err != nil {
		return fmt.Errorf("write session request: %w", err)
	}

	frame, err := readFrame(r)
	if err != nil {
		return fmt.Errorf("read session reply: %w", err)
	}

	switch frame {
	case FrameAck:
		return nil
	case FrameNack:
		return fmt.Errorf("%w: session refused", ErrAuthFailed)
	case FrameHMACSession:
		return fmt.Errorf("%w: HMAC", ErrAuthUnsupported)
	}

	msg, err := Parse(frame)
	if err != nil || msg.Kind != KindNonce {
		return fmt.Errorf("%w: unexpected handshake frame %q", ErrConnectionFailed, frame)
	}

	checksum, err := OpenPassword(g.cfg.Password, msg.Nonce)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(rw, PasswordReply(checksum).String()); err != nil {
		return fmt.Errorf("write password: %w", err)
	}

	return expectAck(r, "password")
}

func expectAck(r io.ByteReader, step string) error {
	frame, err := readFrame(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", step, err)
	}
	switch frame {
	case FrameAck:
		return nil
	case FrameNack:
		return fmt.Errorf("%w: %s rejected", ErrAuthFailed, step)
	default:
		return fmt.Errorf("%w: %s: unexpected frame %q", ErrConnectionFailed, step, frame)
	}
}

// unbufferedReader reads one byte at a time so no bytes past the handshake
// are consumed before the session reader takes over.
type unbufferedReader struct {
	r io.Reader
}

func (u unbufferedReader) ReadByte() (byte, error) {
	var b [1]byte
	n, err := u.r.Read(b[:])
	if n == 1 {
		return b[0], nil
	}
	if err != nil {
		return 0, err
	}
	return 0, errReadTimeout
}

var errReadTimeout = errors.New("own: read timed out")
