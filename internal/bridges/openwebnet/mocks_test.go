package openwebnet

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/own-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/own-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/own-bridge/internal/inventory"
)

// published is one message captured by mockMQTT.
type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockMQTT records publishes and subscriptions.
type mockMQTT struct {
	mu           sync.Mutex
	connected    bool
	publishErr   error
	messages     []published
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.messages = append(m.messages, published{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	m.unsubscribed = append(m.unsubscribed, topic)
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *mockMQTT) handler(topic string) mqtt.MessageHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[topic]
}

// on returns every message published to topic, oldest first.
func (m *mockMQTT) on(topic string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, p := range m.messages {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// last decodes the latest message on topic into v.
func (m *mockMQTT) last(t *testing.T, topic string, v any) published {
	t.Helper()
	msgs := m.on(topic)
	if len(msgs) == 0 {
		t.Fatalf("nothing published on %s", topic)
	}
	p := msgs[len(msgs)-1]
	if err := json.Unmarshal(p.payload, v); err != nil {
		t.Fatalf("decoding %s payload %s: %v", topic, p.payload, err)
	}
	return p
}

// fakeInventory keeps inventory writes in memory.
type fakeInventory struct {
	mu         sync.Mutex
	things     map[string]inventory.Thing
	statuses   map[string]string
	properties map[string]map[string]string
	channels   map[string]map[string]string
	discovery  map[string]inventory.DiscoveryResult
	kept       []string
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		things:     make(map[string]inventory.Thing),
		statuses:   make(map[string]string),
		properties: make(map[string]map[string]string),
		channels:   make(map[string]map[string]string),
		discovery:  make(map[string]inventory.DiscoveryResult),
	}
}

func (f *fakeInventory) UpsertThing(_ context.Context, t inventory.Thing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.things[t.ID] = t
	return nil
}

func (f *fakeInventory) UpdateStatus(_ context.Context, id, status, detail, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.things[id]; !ok {
		return inventory.ErrThingNotFound
	}
	f.statuses[id] = status + "/" + detail
	return nil
}

func (f *fakeInventory) SetProperty(_ context.Context, id, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.properties[id] == nil {
		f.properties[id] = make(map[string]string)
	}
	f.properties[id][name] = value
	return nil
}

func (f *fakeInventory) SaveChannelState(_ context.Context, id, channel, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channels[id] == nil {
		f.channels[id] = make(map[string]string)
	}
	f.channels[id][channel] = value
	return nil
}

func (f *fakeInventory) RemoveThingsExcept(_ context.Context, keep []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kept = append([]string(nil), keep...)
	return 0, nil
}

func (f *fakeInventory) SaveDiscovery(_ context.Context, d inventory.DiscoveryResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discovery[d.ThingUID] = d
	return nil
}

func (f *fakeInventory) DeleteDiscovery(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.discovery[uid]; !ok {
		return inventory.ErrDiscoveryNotFound
	}
	delete(f.discovery, uid)
	return nil
}

func (f *fakeInventory) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

func (f *fakeInventory) channel(id, channel string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[id][channel]
}

// fakeHistory records time-series writes.
type fakeHistory struct {
	mu       sync.Mutex
	channels []string
	statuses []string
}

func (f *fakeHistory) WriteChannelState(thingID, bridgeID, channel string, v influxdb.ChannelValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, thingID+"@"+bridgeID+"/"+channel+"="+v.Kind)
}

func (f *fakeHistory) WriteThingStatus(thingID, bridgeID, status, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, thingID+"@"+bridgeID+"="+status)
}

func (f *fakeHistory) has(list *[]string, want string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range *list {
		if s == want {
			return true
		}
	}
	return false
}

var errPublish = errors.New("broker unavailable")
