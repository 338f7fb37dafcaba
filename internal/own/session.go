package own

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for gateway sessions.
const (
	// defaultConnectTimeout bounds dialling plus handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds a single frame write.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = time.Second

	// maxReconnectInterval caps the exponential backoff.
	maxReconnectInterval = 2 * time.Minute

	// maxFrameLength is the longest frame accepted before the stream is
	// treated as desynchronised.
	maxFrameLength = 1024

	// eventQueueSize is the buffer size of the listener event queue.
	eventQueueSize = 256
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Stats holds operational statistics for a gateway session.
type Stats struct {
	FramesTx        uint64
	FramesRx        uint64
	FramesInvalid   uint64
	FramesDropped   uint64 // Frames dropped due to a full event queue
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool
}

// SessionConfig holds the timing shared by every gateway kind.
type SessionConfig struct {
	// ConnectTimeout bounds dialling plus handshake. Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReconnectInterval is the initial reconnection delay. Default: 1 second.
	ReconnectInterval time.Duration
}

func (c *SessionConfig) applyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
}

// link is an open session. Frames are read from both event and command;
// frames are written to command. The two may be the same stream.
type link struct {
	event   io.ReadWriteCloser
	command io.ReadWriteCloser
}

func (l *link) close() {
	l.event.Close()
	if l.command != l.event {
		l.command.Close()
	}
}

// opener dials and authenticates a gateway session.
type opener interface {
	open(ctx context.Context) (*link, error)
	describe() string
}

// session runs one gateway connection: open, serve frames, reconnect on loss,
// and deliver events to listeners on a dedicated goroutine.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Listener callbacks run on the event goroutine only.
//
// Auto-Reconnection:
//   - An initial open failure is reported as OnConnectionError and the
//     session stops; Start may be called again.
//   - A session lost after it was established is reported as OnDisconnected
//     and re-opened with exponential backoff until Close is called.
type session struct {
	cfg    SessionConfig
	opener opener

	connMu    sync.RWMutex
	link      *link
	connected bool

	writeMu sync.Mutex

	running      atomic.Bool
	reconnecting atomic.Bool
	eventsOnce   sync.Once

	listeners listenerSet
	events    chan func(Listener)

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	framesTx        atomic.Uint64
	framesRx        atomic.Uint64
	framesInvalid   atomic.Uint64
	framesDropped   atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

func newSession(cfg SessionConfig, o opener) *session {
	cfg.applyDefaults()
	return &session{
		cfg:    cfg,
		opener: o,
		events: make(chan func(Listener), eventQueueSize),
		done:   newCloseOnce(),
	}
}

// Start opens the session in the background and returns immediately.
// Completion is reported through OnConnected or OnConnectionError.
//
// Returns:
//   - error: ErrClosed if the gateway has been closed
func (s *session) Start() error {
	if s.isClosed() {
		return ErrClosed
	}

	s.eventsOnce.Do(func() {
		s.wg.Add(1)
		go s.eventLoop()
	})

	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	s.wg.Add(1)
	go s.run()
	return nil
}

// Subscribe registers a listener for session events.
func (s *session) Subscribe(l Listener) {
	s.listeners.add(l)
}

// Unsubscribe removes a listener. Events already being delivered to it on
// the event goroutine complete; no new events are delivered after return.
func (s *session) Unsubscribe(l Listener) {
	s.listeners.remove(l)
}

// IsConnected returns true while a session is established.
func (s *session) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connected
}

// Send writes one frame to the gateway command session.
//
// Returns:
//   - error: ErrNotConnected without a session, or a wrapped write error
func (s *session) Send(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("send %s: %w", msg, ctx.Err())
	default:
	}

	s.connMu.RLock()
	l := s.link
	connected := s.connected
	s.connMu.RUnlock()

	if !connected || l == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	setWriteDeadline(l.command, deadline)
	if _, err := io.WriteString(l.command, msg.String()); err != nil {
		s.errorsTotal.Add(1)
		return fmt.Errorf("send %s: %w", msg, err)
	}

	s.framesTx.Add(1)
	s.lastActivity.Store(time.Now().Unix())
	s.logDebug("frame sent", "frame", msg.String())
	return nil
}

// Close stops the session, closes the transport and waits for all
// goroutines to exit. Listeners still subscribed receive OnConnectionClosed
// on the caller's goroutine. Safe to call multiple times.
func (s *session) Close() error {
	select {
	case <-s.done.Done():
		return nil
	default:
	}
	s.done.Close()

	s.connMu.Lock()
	l := s.link
	s.link = nil
	s.connected = false
	s.connMu.Unlock()

	if l != nil {
		l.close()
	}

	s.wg.Wait()

	for _, listener := range s.listeners.snapshot() {
		listener.OnConnectionClosed()
	}

	s.logInfo("gateway session closed", "gateway", s.opener.describe())
	return nil
}

// Stats returns current operational statistics.
func (s *session) Stats() Stats {
	return Stats{
		FramesTx:        s.framesTx.Load(),
		FramesRx:        s.framesRx.Load(),
		FramesInvalid:   s.framesInvalid.Load(),
		FramesDropped:   s.framesDropped.Load(),
		ErrorsTotal:     s.errorsTotal.Load(),
		ReconnectsTotal: s.reconnectsTotal.Load(),
		LastActivity:    time.Unix(s.lastActivity.Load(), 0),
		Connected:       s.IsConnected(),
		Reconnecting:    s.reconnecting.Load(),
	}
}

// SetLogger sets the logger for this session.
func (s *session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// run opens the session and serves it until Close.
func (s *session) run() {
	defer s.wg.Done()
	defer s.running.Store(false)

	l, err := s.openWithTimeout()
	if err != nil {
		if s.isClosed() {
			return
		}
		ce := classify(err)
		s.errorsTotal.Add(1)
		s.logError("gateway connection failed", ce, "gateway", s.opener.describe(), "kind", ce.Kind.String())
		s.emit(func(lst Listener) { lst.OnConnectionError(ce) })
		return
	}

	if !s.establish(l) {
		return
	}
	s.logInfo("gateway connected", "gateway", s.opener.describe())
	s.emit(func(lst Listener) { lst.OnConnected() })

	for {
		err := s.serve(l)
		if s.isClosed() {
			return
		}

		s.connMu.Lock()
		s.connected = false
		s.link = nil
		s.connMu.Unlock()

		s.errorsTotal.Add(1)
		s.logWarn("gateway connection lost", "gateway", s.opener.describe(), "error", err)
		s.emit(func(lst Listener) { lst.OnDisconnected(err) })

		l = s.reconnect()
		if l == nil {
			return
		}
		s.emit(func(lst Listener) { lst.OnReconnected() })
	}
}

// establish publishes l as the live link unless the session closed meanwhile.
func (s *session) establish(l *link) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.isClosed() {
		l.close()
		return false
	}
	s.link = l
	s.connected = true
	s.lastActivity.Store(time.Now().Unix())
	return true
}

func (s *session) openWithTimeout() (*link, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()

	go func() {
		select {
		case <-s.done.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	l, err := s.opener.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return l, nil
}

// reconnect re-opens the session with exponential backoff.
// Returns nil if Close was called first.
func (s *session) reconnect() *link {
	s.reconnecting.Store(true)
	defer s.reconnecting.Store(false)

	backoff := s.cfg.ReconnectInterval
	for attempt := 1; ; attempt++ {
		select {
		case <-s.done.Done():
			return nil
		case <-time.After(backoff):
		}

		s.logInfo("attempting reconnection", "gateway", s.opener.describe(), "attempt", attempt)
		l, err := s.openWithTimeout()
		if err == nil {
			if !s.establish(l) {
				return nil
			}
			s.reconnectsTotal.Add(1)
			s.logInfo("reconnection successful", "gateway", s.opener.describe(),
				"total_reconnects", s.reconnectsTotal.Load())
			return l
		}

		if s.isClosed() {
			return nil
		}
		s.errorsTotal.Add(1)
		s.logError("reconnect failed", err, "gateway", s.opener.describe())

		backoff = time.Duration(float64(backoff) * 1.5)
		if backoff > maxReconnectInterval {
			backoff = maxReconnectInterval
		}
	}
}

// serve reads frames from every stream of l until one of them fails.
func (s *session) serve(l *link) error {
	streams := []io.Reader{l.event}
	if l.command != l.event {
		streams = append(streams, l.command)
	}

	errCh := make(chan error, len(streams))
	for _, r := range streams {
		go func(r io.Reader) {
			errCh <- s.readFrames(bufio.NewReader(r))
		}(r)
	}

	err := <-errCh
	l.close()
	for i := 1; i < len(streams); i++ {
		<-errCh
	}
	return err
}

func (s *session) readFrames(r io.ByteReader) error {
	for {
		frame, err := readFrame(r)
		if err != nil {
			if errors.Is(err, ErrFrameTooLong) {
				s.framesInvalid.Add(1)
				s.logError("frame desync, closing session", err)
			}
			return err
		}

		msg, err := Parse(frame)
		if err != nil {
			s.framesInvalid.Add(1)
			s.logDebug("ignoring unparsable frame", "frame", frame, "error", err)
			continue
		}

		s.framesRx.Add(1)
		s.lastActivity.Store(time.Now().Unix())
		s.emitMessage(msg)
	}
}

// readFrame reads bytes up to and including the "##" terminator.
// Bytes before the leading '*' are skipped.
func readFrame(r io.ByteReader) (string, error) {
	buf := make([]byte, 0, 32)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if len(buf) == 0 && b != '*' {
			continue
		}
		buf = append(buf, b)
		if len(buf) > maxFrameLength {
			return "", ErrFrameTooLong
		}
		if b == '#' && len(buf) >= 2 && buf[len(buf)-2] == '#' {
			return string(buf), nil
		}
	}
}

// emit queues a connection event. Connection events are never dropped.
func (s *session) emit(ev func(Listener)) {
	select {
	case s.events <- ev:
	case <-s.done.Done():
	}
}

// emitMessage queues a frame event, dropping it when the queue is full.
func (s *session) emitMessage(msg Message) {
	select {
	case s.events <- func(l Listener) { l.OnMessage(msg) }:
	default:
		s.framesDropped.Add(1)
		s.errorsTotal.Add(1)
		s.logWarn("event queue full, dropping frame", "frame", msg.String())
	}
}

func (s *session) eventLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done.Done():
			return
		case ev := <-s.events:
			for _, l := range s.listeners.snapshot() {
				if !s.listeners.contains(l) {
					continue
				}
				s.deliver(l, ev)
			}
		}
	}
}

func (s *session) deliver(l Listener, ev func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			s.logError("listener panic", fmt.Errorf("%v", r))
		}
	}()
	ev(l)
}

func (s *session) isClosed() bool {
	select {
	case <-s.done.Done():
		return true
	default:
		return false
	}
}

// deadliner is implemented by streams that support I/O deadlines (net.Conn).
type deadliner interface {
	SetDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

func setWriteDeadline(w io.Writer, t time.Time) {
	if d, ok := w.(deadliner); ok {
		_ = d.SetWriteDeadline(t)
	}
}

func (s *session) logDebug(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (s *session) logInfo(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (s *session) logWarn(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (s *session) logError(msg string, err error, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

func (s *session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}
