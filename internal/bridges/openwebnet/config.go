package openwebnet

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

// Config is the gateway and thing definition file.
type Config struct {
	Gateways []GatewayEntry `yaml:"gateways" json:"gateways"`
	Things   []ThingEntry   `yaml:"things" json:"things"`
}

// GatewayEntry defines one gateway bridge.
type GatewayEntry struct {
	// ID names the bridge in thing UIDs and MQTT topics.
	ID string `yaml:"id" json:"id"`

	// Type is "bus_gateway" or "dongle".
	Type string `yaml:"type" json:"type"`

	Label string `yaml:"label" json:"label,omitempty"`

	// BUS gateway parameters.
	Host   string `yaml:"host" json:"host,omitempty"`
	Port   int    `yaml:"port" json:"port,omitempty"`
	Passwd string `yaml:"passwd" json:"passwd,omitempty"`

	// SerialPort is the dongle port. Empty means auto-discover.
	SerialPort string `yaml:"serial_port" json:"serial_port,omitempty"`
}

// ThingEntry defines one device under a gateway.
type ThingEntry struct {
	// ID names the device in MQTT topics and the API.
	ID string `yaml:"id" json:"id"`

	// Bridge is the id of the owning gateway.
	Bridge string `yaml:"bridge" json:"bridge"`

	Type  string `yaml:"type" json:"type"`
	Where string `yaml:"where" json:"where"`
	Label string `yaml:"label" json:"label,omitempty"`
}

// String renders the entry with the password redacted.
func (g GatewayEntry) String() string {
	passwd := ""
	if g.Passwd != "" {
		passwd = redacted
	}
	return fmt.Sprintf("GatewayEntry{ID:%q, Type:%q, Host:%q, Port:%d, Passwd:%s, SerialPort:%q}",
		g.ID, g.Type, g.Host, g.Port, passwd, g.SerialPort)
}

// MarshalJSON prevents the password from reaching logs or the API.
func (g GatewayEntry) MarshalJSON() ([]byte, error) {
	type plain GatewayEntry
	safe := plain(g)
	if safe.Passwd != "" {
		safe.Passwd = redacted
	}
	return json.Marshal(safe)
}

// ThingType returns the parsed gateway type. Call after Validate.
func (g GatewayEntry) ThingType() ThingType {
	return ThingType(g.Type)
}

// Kind returns the transport kind implied by the gateway type.
func (g GatewayEntry) Kind() GatewayKind {
	if g.ThingType() == ThingTypeDongle {
		return GatewayZigBee
	}
	return GatewayBUS
}

// GatewayConfig converts the entry into transport parameters.
func (g GatewayEntry) GatewayConfig(connectTimeout, reconnectInterval time.Duration) GatewayConfig {
	return GatewayConfig{
		Kind:              g.Kind(),
		Host:              g.Host,
		Port:              g.Port,
		Password:          g.Passwd,
		SerialPort:        g.SerialPort,
		ConnectTimeout:    connectTimeout,
		ReconnectInterval: reconnectInterval,
	}
}

// LoadConfig reads the gateway and thing definitions.
//
// Loading order: YAML file, then per-gateway defaults (BUS host, port and
// password), then OWNBRIDGE_GATEWAY_<ID>_PASSWD overrides, then Validate.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - *Config: Validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading openwebnet config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing openwebnet config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating openwebnet config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Gateways {
		g := &c.Gateways[i]
		if g.ThingType() != ThingTypeBusGateway {
			continue
		}
		if g.Host == "" {
			g.Host = DefaultBusHost
		}
		if g.Port == 0 {
			g.Port = DefaultBusPort
		}
		if g.Passwd == "" {
			g.Passwd = DefaultBusPassword
		}
	}
}

// applyEnvOverrides reads OWNBRIDGE_GATEWAY_<ID>_PASSWD for each gateway,
// with the id upper-cased and non-alphanumerics replaced by '_'.
func (c *Config) applyEnvOverrides() {
	for i := range c.Gateways {
		g := &c.Gateways[i]
		if v := os.Getenv(PasswordEnvVar(g.ID)); v != "" {
			g.Passwd = v
		}
	}
}

// PasswordEnvVar returns the environment variable overriding a gateway password.
func PasswordEnvVar(gatewayID string) string {
	var b strings.Builder
	b.WriteString("OWNBRIDGE_GATEWAY_")
	for _, r := range strings.ToUpper(gatewayID) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteString("_PASSWD")
	return b.String()
}

// Validate checks the definitions and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	kinds := make(map[string]GatewayKind, len(c.Gateways))
	errs = append(errs, c.validateGateways(kinds)...)
	errs = append(errs, c.validateThings(kinds)...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateGateways(kinds map[string]GatewayKind) []string {
	var errs []string

	for i, g := range c.Gateways {
		prefix := fmt.Sprintf("gateways[%d]", i)
		if g.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if strings.ContainsAny(g.ID, ":/+#") {
			errs = append(errs, fmt.Sprintf("%s.id %q must not contain ':', '/', '+' or '#'", prefix, g.ID))
		} else if _, dup := kinds[g.ID]; dup {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, g.ID))
		}

		t, err := ParseThingType(g.Type)
		if err != nil || !t.IsBridge() {
			errs = append(errs, fmt.Sprintf("%s.type %q must be %s or %s", prefix, g.Type, ThingTypeBusGateway, ThingTypeDongle))
			continue
		}

		if t == ThingTypeBusGateway {
			if g.Host == "" {
				errs = append(errs, prefix+".host is required")
			}
			if g.Port < 1 || g.Port > 65535 {
				errs = append(errs, fmt.Sprintf("%s.port %d must be between 1 and 65535", prefix, g.Port))
			}
		}

		if g.ID != "" {
			if _, dup := kinds[g.ID]; !dup {
				kinds[g.ID] = g.Kind()
			}
		}
	}

	return errs
}

func (c *Config) validateThings(kinds map[string]GatewayKind) []string {
	var errs []string
	seen := make(map[string]bool, len(c.Things))

	for i, th := range c.Things {
		prefix := fmt.Sprintf("things[%d]", i)
		if th.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if strings.ContainsAny(th.ID, "/+#") {
			errs = append(errs, fmt.Sprintf("%s.id %q must not contain '/', '+' or '#'", prefix, th.ID))
		} else if seen[th.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, th.ID))
		} else if _, clash := kinds[th.ID]; clash {
			errs = append(errs, fmt.Sprintf("%s.id %q is already a gateway id", prefix, th.ID))
		}
		seen[th.ID] = true

		if th.Where == "" {
			errs = append(errs, prefix+".where is required")
		}

		kind, bridgeOK := kinds[th.Bridge]
		if !bridgeOK {
			errs = append(errs, fmt.Sprintf("%s.bridge %q does not name a gateway", prefix, th.Bridge))
		}

		t, err := ParseThingType(th.Type)
		if err != nil || t.IsBridge() {
			errs = append(errs, fmt.Sprintf("%s.type %q is not a device type", prefix, th.Type))
			continue
		}
		if bridgeOK && !typeFitsKind(t, kind) {
			errs = append(errs, fmt.Sprintf("%s.type %q cannot be used on a %s gateway", prefix, th.Type, kind))
		}
		if bridgeOK && kind == GatewayZigBee && th.Where != "" && !isDigits(LogicalID(th.Where, kind)) {
			errs = append(errs, fmt.Sprintf("%s.where %q is not a ZigBee address", prefix, th.Where))
		}
	}

	return errs
}

// typeFitsKind rejects ZigBee device types on BUS gateways and vice versa.
func typeFitsKind(t ThingType, kind GatewayKind) bool {
	switch t {
	case ThingTypeBusOnOffSwitch, ThingTypeBusDimmer:
		return kind == GatewayBUS
	case ThingTypeOnOffSwitch, ThingTypeOnOffSwitch2U, ThingTypeDimmer, ThingTypeAutomation:
		return kind == GatewayZigBee
	default:
		return true
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// Gateway returns the gateway entry with the given id.
func (c *Config) Gateway(id string) (GatewayEntry, bool) {
	for _, g := range c.Gateways {
		if g.ID == id {
			return g, true
		}
	}
	return GatewayEntry{}, false
}

// ThingsOf returns the things configured under a gateway, in file order.
func (c *Config) ThingsOf(gatewayID string) []ThingEntry {
	var out []ThingEntry
	for _, th := range c.Things {
		if th.Bridge == gatewayID {
			out = append(out, th)
		}
	}
	return out
}
