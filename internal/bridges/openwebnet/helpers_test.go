package openwebnet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/own-bridge/internal/own"
)

// mockTransport records frames and lets tests drive connection events.
type mockTransport struct {
	mu        sync.Mutex
	connected bool
	startErr  error
	starts    int
	closed    bool
	port      string
	sent      []string
	listeners []own.Listener
}

func (m *mockTransport) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return m.startErr
}

func (m *mockTransport) Subscribe(l own.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *mockTransport) Unsubscribe(l own.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.listeners {
		if x == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) Send(_ context.Context, msg own.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return own.ErrNotConnected
	}
	m.sent = append(m.sent, msg.String())
	return nil
}

func (m *mockTransport) Stats() own.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return own.Stats{FramesTx: uint64(len(m.sent)), Connected: m.connected}
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.connected = false
	return nil
}

func (m *mockTransport) PortName() string { return m.port }

func (m *mockTransport) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *mockTransport) frames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func (m *mockTransport) reset() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}

func (m *mockTransport) subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// manualScheduler runs tasks only when the test fires them.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	delay   time.Duration
	task    func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) Schedule(delay time.Duration, task func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, delay: delay, task: task}
	s.timers = append(s.timers, t)
	return t
}

// run fires this timer alone, whatever its delay.
func (t *manualTimer) run() bool {
	t.s.mu.Lock()
	if t.stopped || t.fired {
		t.s.mu.Unlock()
		return false
	}
	t.fired = true
	t.s.mu.Unlock()

	t.task()
	return true
}

// fire runs every pending task scheduled with delay and returns how many ran.
func (s *manualScheduler) fire(delay time.Duration) int {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.delay == delay {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.task()
	}
	return len(due)
}

func (s *manualScheduler) pending(delay time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.delay == delay {
			n++
		}
	}
	return n
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recorder captures callback updates.
type recorder struct {
	mu       sync.Mutex
	statuses map[ThingUID][]Status
	states   map[ThingUID]map[string][]State
	props    map[ThingUID]map[string]string
}

func newRecorder() *recorder {
	return &recorder{
		statuses: make(map[ThingUID][]Status),
		states:   make(map[ThingUID]map[string][]State),
		props:    make(map[ThingUID]map[string]string),
	}
}

func (r *recorder) StatusUpdated(uid ThingUID, s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[uid] = append(r.statuses[uid], s)
}

func (r *recorder) StateUpdated(uid ThingUID, channel string, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states[uid] == nil {
		r.states[uid] = make(map[string][]State)
	}
	r.states[uid][channel] = append(r.states[uid][channel], s)
}

func (r *recorder) PropertyUpdated(uid ThingUID, key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.props[uid] == nil {
		r.props[uid] = make(map[string]string)
	}
	r.props[uid][key] = value
}

func (r *recorder) lastStatus(uid ThingUID) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.statuses[uid]
	if len(list) == 0 {
		return Status{}, false
	}
	return list[len(list)-1], true
}

func (r *recorder) statesOf(uid ThingUID, channel string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states[uid][channel]...)
}

func (r *recorder) property(uid ThingUID, key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.props[uid][key]
}

// sinkRecorder captures discovery results.
type sinkRecorder struct {
	mu         sync.Mutex
	discovered []DiscoveryResult
	removed    []ThingUID
}

func (s *sinkRecorder) ThingDiscovered(r DiscoveryResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovered = append(s.discovered, r)
}

func (s *sinkRecorder) ThingRemoved(uid ThingUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, uid)
}

// harness wires a bridge to mocks.
type harness struct {
	bridge    *Bridge
	transport *mockTransport
	scheduler *manualScheduler
	clock     *fakeClock
	callback  *recorder
}

func newHarness(t *testing.T, typ ThingType) *harness {
	t.Helper()
	h := &harness{
		transport: &mockTransport{},
		scheduler: &manualScheduler{},
		clock:     newFakeClock(),
		callback:  newRecorder(),
	}
	h.bridge = NewBridge(BridgeConfig{
		ID:        "gw1",
		Type:      typ,
		Callback:  h.callback,
		Scheduler: h.scheduler,
		Clock:     h.clock.Now,
		NewTransport: func(GatewayConfig, own.Logger) (Transport, error) {
			return h.transport, nil
		},
	})
	if err := h.bridge.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(h.bridge.Dispose)
	return h
}

// connect simulates the transport reporting a successful connection.
func (h *harness) connect() {
	h.transport.setConnected(true)
	h.bridge.OnConnected()
	h.transport.reset()
}

func (h *harness) device(t *testing.T, typ ThingType, where string) *Device {
	t.Helper()
	d := NewDevice(DeviceConfig{Type: typ, Where: where, Bridge: h.bridge})
	if err := d.Initialize(); err != nil {
		t.Fatalf("device Initialize() error = %v", err)
	}
	h.transport.reset()
	return d
}

func mustParse(t *testing.T, frame string) own.Message {
	t.Helper()
	msg, err := own.Parse(frame)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", frame, err)
	}
	return msg
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
