package influxdb

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/own-bridge/internal/infrastructure/config"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	w.points = append(w.points, p)
	w.mu.Unlock()
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
}

func newTestClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	c := newClient(config.InfluxDBConfig{Enabled: true}, w)
	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	return c, w
}

func tagsOf(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func fieldsOf(p *write.Point) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Live(t *testing.T) {
	url := os.Getenv("OWNBRIDGE_TEST_INFLUXDB_URL")
	if url == "" {
		t.Skip("OWNBRIDGE_TEST_INFLUXDB_URL not set")
	}
	c, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     url,
		Token:   os.Getenv("OWNBRIDGE_TEST_INFLUXDB_TOKEN"),
		Org:     "ownbridge",
		Bucket:  "test",
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if err := c.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestBatchSettings(t *testing.T) {
	tests := []struct {
		name          string
		batch, flush  int
		wantB, wantFl int
	}{
		{"explicit", 500, 5, 500, 5},
		{"zero uses defaults", 0, 0, 100, 10},
		{"negative uses defaults", -1, -10, 100, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, f := batchSettings(config.InfluxDBConfig{BatchSize: tt.batch, FlushInterval: tt.flush})
			if b != tt.wantB || f != tt.wantFl {
				t.Errorf("batchSettings() = %d, %d, want %d, %d", b, f, tt.wantB, tt.wantFl)
			}
		})
	}
}

func TestWriteChannelState(t *testing.T) {
	c, w := newTestClient()

	c.WriteChannelState("living_dimmer", "gw1", "brightness", ChannelValue{Kind: "percent", On: true, Value: 70})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != MeasurementChannelState {
		t.Errorf("measurement = %q", p.Name())
	}
	tags := tagsOf(p)
	want := map[string]string{"thing_id": "living_dimmer", "bridge_id": "gw1", "channel": "brightness", "kind": "percent"}
	for k, v := range want {
		if tags[k] != v {
			t.Errorf("tag %s = %q, want %q", k, tags[k], v)
		}
	}
	fields := fieldsOf(p)
	if fields["value"] != int64(70) || fields["on"] != true {
		t.Errorf("fields = %v, want value=70 on=true", fields)
	}
	if !p.Time().Equal(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", p.Time())
	}
}

func TestWriteThingStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      string
		description string
		wantOnline  bool
		wantDescr   bool
	}{
		{name: "online", status: "ONLINE", wantOnline: true},
		{name: "offline with description", status: "OFFLINE", description: "The gateway HAS BEEN DISCONNECTED", wantDescr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestClient()
			c.WriteThingStatus("gw1", "gw1", tt.status, "NONE", tt.description)

			fields := fieldsOf(w.points[0])
			if fields["online"] != tt.wantOnline {
				t.Errorf("online = %v, want %v", fields["online"], tt.wantOnline)
			}
			if _, ok := fields["description"]; ok != tt.wantDescr {
				t.Errorf("description present = %v, want %v", ok, tt.wantDescr)
			}
		})
	}
}

func TestClose(t *testing.T) {
	c, w := newTestClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}

	// Writes and flushes after Close are dropped.
	c.WriteChannelState("a", "gw1", "switch", ChannelValue{Kind: "onoff"})
	c.Flush()
	if len(w.points) != 0 || w.flushes != 1 {
		t.Errorf("points=%d flushes=%d after Close", len(w.points), w.flushes)
	}
	if !errors.Is(c.HealthCheck(t.Context()), ErrNotConnected) {
		t.Error("HealthCheck() after Close should be ErrNotConnected")
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c, _ := newTestClient()

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	ch := make(chan error, 1)
	ch <- errors.New("bucket not found")
	close(ch)
	c.handleWriteErrors(ch)

	if err := <-got; !errors.Is(err, ErrWriteFailed) {
		t.Errorf("callback error = %v, want ErrWriteFailed", err)
	}
}
