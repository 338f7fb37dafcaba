package openwebnet

import "testing"

func TestDiscoveryLabelsAndProperties(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)
	sink := &sinkRecorder{}
	d := NewDiscovery(h.bridge, sink)

	r, emitted := d.OnNewDevice("0#4#01", DeviceTypeBusDimmer)
	if !emitted {
		t.Fatal("OnNewDevice() did not emit")
	}
	if r.ThingUID != "openwebnet:bus_dimmer:gw1:0h4h01" {
		t.Errorf("ThingUID = %s", r.ThingUID)
	}
	if r.Label != "OpenWebNet BUS/SCS Dimmer (WHERE=0#4#01)" {
		t.Errorf("Label = %q", r.Label)
	}
	if r.Properties[ConfigWhere] != "0h4h01" {
		t.Errorf("where property = %q", r.Properties[ConfigWhere])
	}
	if r.BridgeUID != "openwebnet:bus_gateway:gw1" {
		t.Errorf("BridgeUID = %s", r.BridgeUID)
	}

	if _, emitted := d.OnNewDevice("0#4#01", DeviceTypeBusDimmer); emitted {
		t.Error("identical result emitted twice")
	}
	if len(sink.discovered) != 1 {
		t.Errorf("discovered %d results, want 1", len(sink.discovered))
	}
}

func TestDiscoveryTwoUnits(t *testing.T) {
	tests := []struct {
		name  string
		order []string
	}{
		{"unit 01 then 02", []string{"765432101#9", "765432102#9"}},
		{"unit 02 then 01", []string{"765432102#9", "765432101#9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, ThingTypeDongle)
			sink := &sinkRecorder{}
			d := NewDiscovery(h.bridge, sink)

			for _, where := range tt.order {
				d.OnNewDevice(where, DeviceTypeZigBeeOnOffSwitch)
			}

			results := d.Results()
			if len(results) != 1 {
				t.Fatalf("Results() = %v, want one 2-unit result", results)
			}
			r := results[0]
			if r.ThingType != ThingTypeOnOffSwitch2U {
				t.Errorf("ThingType = %s", r.ThingType)
			}
			if r.ThingUID != "openwebnet:on_off_switch2u:gw1:7654321" {
				t.Errorf("ThingUID = %s", r.ThingUID)
			}
			if r.Label != "OpenWebNet ZigBee 2-units On/Off Switch (WHERE=765432100#9)" {
				t.Errorf("Label = %q", r.Label)
			}

			var twoUnit int
			for _, res := range sink.discovered {
				if res.ThingType == ThingTypeOnOffSwitch2U {
					twoUnit++
				}
			}
			if twoUnit != 1 {
				t.Errorf("2-unit result emitted %d times", twoUnit)
			}

			// a single unit result emitted first must have been retracted
			if len(sink.discovered) == 2 {
				if len(sink.removed) != 1 || sink.removed[0] != "openwebnet:on_off_switch:gw1:7654321" {
					t.Errorf("removed = %v", sink.removed)
				}
			}
		})
	}
}

func TestDiscoveryScan(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)
	sink := &sinkRecorder{}
	d := NewDiscovery(h.bridge, sink)

	if d.StartScan() {
		t.Fatal("StartScan() succeeded on a disconnected gateway")
	}

	h.connect()
	h.device(t, ThingTypeBusOnOffSwitch, "51")

	if !d.StartScan() {
		t.Fatal("StartScan() = false")
	}
	if got := h.transport.frames(); !equalStrings(got, []string{"*#1*0##"}) {
		t.Errorf("frames = %v, want general status request", got)
	}

	h.bridge.OnMessage(mustParse(t, "*1*1*51##"))
	h.bridge.OnMessage(mustParse(t, "*1*0*21##"))
	h.bridge.OnMessage(mustParse(t, "*1*6*22##"))

	results := d.Results()
	if len(results) != 2 {
		t.Fatalf("Results() = %v, want 2", results)
	}
	if results[0].ThingType != ThingTypeBusDimmer || results[1].ThingType != ThingTypeBusOnOffSwitch {
		t.Errorf("types = %s, %s", results[0].ThingType, results[1].ThingType)
	}

	h.scheduler.fire(ScanWindow)
	if h.bridge.Scanning() {
		t.Error("scan still running after the window")
	}
	h.bridge.OnMessage(mustParse(t, "*1*1*23##"))
	if n := len(d.Results()); n != 2 {
		t.Errorf("report after scan produced a result (%d results)", n)
	}
}

func TestDiscoveryRemove(t *testing.T) {
	h := newHarness(t, ThingTypeBusGateway)
	sink := &sinkRecorder{}
	d := NewDiscovery(h.bridge, sink)

	r, _ := d.OnNewDevice("31", DeviceTypeBusOnOffSwitch)
	if !d.Remove(r.ThingUID) {
		t.Fatal("Remove() = false")
	}
	if d.Remove(r.ThingUID) {
		t.Error("second Remove() = true")
	}
	if len(sink.removed) != 1 {
		t.Errorf("removed = %v", sink.removed)
	}
}

func TestDiscoveryReclassifiesOneDevice(t *testing.T) {
	tests := []struct {
		name       string
		bridgeType ThingType
		reports    []string
		wantUID    ThingUID
		wantType   ThingType
		wantRemove []ThingUID
	}{
		{
			name:       "bus off then dim",
			bridgeType: ThingTypeBusGateway,
			reports:    []string{"*1*0*21##", "*1*6*21##"},
			wantUID:    "openwebnet:bus_dimmer:gw1:21",
			wantType:   ThingTypeBusDimmer,
			wantRemove: []ThingUID{"openwebnet:bus_on_off_switch:gw1:21"},
		},
		{
			name:       "bus dim then off keeps the dimmer",
			bridgeType: ThingTypeBusGateway,
			reports:    []string{"*1*6*21##", "*1*0*21##", "*1*1*21##"},
			wantUID:    "openwebnet:bus_dimmer:gw1:21",
			wantType:   ThingTypeBusDimmer,
		},
		{
			name:       "zigbee off then dim",
			bridgeType: ThingTypeDongle,
			reports:    []string{"*1*0*702053501#9##", "*1*6*702053501#9##"},
			wantUID:    "openwebnet:dimmer:gw1:7020535",
			wantType:   ThingTypeDimmer,
			wantRemove: []ThingUID{"openwebnet:on_off_switch:gw1:7020535"},
		},
		{
			name:       "zigbee dim then off keeps the dimmer",
			bridgeType: ThingTypeDongle,
			reports:    []string{"*1*6*702053501#9##", "*1*0*702053501#9##"},
			wantUID:    "openwebnet:dimmer:gw1:7020535",
			wantType:   ThingTypeDimmer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.bridgeType)
			sink := &sinkRecorder{}
			d := NewDiscovery(h.bridge, sink)

			h.connect()
			if !d.StartScan() {
				t.Fatal("StartScan() = false")
			}
			for _, frame := range tt.reports {
				h.bridge.OnMessage(mustParse(t, frame))
			}

			results := d.Results()
			if len(results) != 1 {
				t.Fatalf("Results() = %v, want one result for the device", results)
			}
			if results[0].ThingUID != tt.wantUID || results[0].ThingType != tt.wantType {
				t.Errorf("result = %s (%s), want %s (%s)",
					results[0].ThingUID, results[0].ThingType, tt.wantUID, tt.wantType)
			}
			if !equalUIDs(sink.removed, tt.wantRemove) {
				t.Errorf("removed = %v, want %v", sink.removed, tt.wantRemove)
			}

			// the sink must end up holding exactly one live result
			live := map[ThingUID]bool{}
			for _, r := range sink.discovered {
				live[r.ThingUID] = true
			}
			for _, uid := range sink.removed {
				delete(live, uid)
			}
			if len(live) != 1 || !live[tt.wantUID] {
				t.Errorf("live results in sink = %v, want only %s", live, tt.wantUID)
			}
		})
	}
}

func equalUIDs(a, b []ThingUID) bool {
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
