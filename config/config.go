package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Hub        HubConfig        `yaml:"hub"`
	Alarm      AlarmConfig      `yaml:"alarm"`
	Thermostat ThermostatConfig `yaml:"thermostat"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Web        WebConfig        `yaml:"web"`
	Log        LogConfig        `yaml:"log"`
}

type HubConfig struct {
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type AlarmConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Heartbeat    string `yaml:"heartbeat"`
	PerimeterIdx string `yaml:"perimeter_idx"`
	PanicIdx     string `yaml:"panic_idx"`
	NightIdx     string `yaml:"night_idx"`
	NormalIdx    string `yaml:"normal_idx"`
	// Delays is order-significant: arming-on, detection, alarm-on,
	// alarm-off, all in seconds.
	Delays        string `yaml:"delays"`
	DeviceBaseIdx int    `yaml:"device_base_idx"`
}

type ThermostatConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Heartbeat          string `yaml:"heartbeat"`
	InsideTempIdx      string `yaml:"inside_temp_idx"`
	ValveTempIdx       string `yaml:"valve_temp_idx"`
	PresenceIdx        string `yaml:"presence_idx"`
	PauseIdx           string `yaml:"pause_idx"`
	ValveIdx           string `yaml:"valve_idx"`
	NormalSetpointIdx  int    `yaml:"normal_setpoint_idx"`
	EconomySetpointIdx int    `yaml:"economy_setpoint_idx"`
	// Delays is order-significant: pause-on, pause-off, forced-duration,
	// presence-on, presence-off (minutes), then day and night reduction
	// in tenths of a degree.
	Delays        string `yaml:"delays"`
	DeviceBaseIdx int    `yaml:"device_base_idx"`
}

type TelegramConfig struct {
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
	Enabled bool   `yaml:"enabled"`
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Hub.Address == "" {
		c.Hub.Address = "127.0.0.1"
	}
	if c.Hub.Port == 0 {
		c.Hub.Port = 8080
	}
	if c.Alarm.Heartbeat == "" {
		c.Alarm.Heartbeat = "10s"
	}
	if c.Alarm.Delays == "" {
		c.Alarm.Delays = "30,0,30,90"
	}
	if c.Alarm.DeviceBaseIdx == 0 {
		c.Alarm.DeviceBaseIdx = 1000
	}
	if c.Thermostat.Heartbeat == "" {
		c.Thermostat.Heartbeat = "20s"
	}
	if c.Thermostat.Delays == "" {
		c.Thermostat.Delays = "1,1,60,2,45,10,20"
	}
	if c.Thermostat.DeviceBaseIdx == 0 {
		c.Thermostat.DeviceBaseIdx = 1100
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":8088"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// IdxList parses a comma-separated device identifier list. Entries that do
// not parse as integers are skipped, the rest are kept in order.
func IdxList(csv string) []int {
	var out []int
	for _, field := range strings.Split(csv, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		idx, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		out = append(out, idx)
	}
	return out
}

// FieldError describes one delay-list entry that fell back to its default.
type FieldError struct {
	Name  string
	Value string
	Used  int
}

func (e FieldError) Error() string {
	return fmt.Sprintf("parameter %q has an invalid value of %q, default of %d is used instead", e.Name, e.Value, e.Used)
}

// DelayList parses an order-significant numeric parameter list of fixed
// arity. A malformed individual entry falls back to its per-field default;
// a wrong arity falls back to all defaults. Either way the returned errors
// are reported and startup continues.
func DelayList(csv string, names []string, defaults []int) ([]int, []error) {
	fields := strings.Split(csv, ",")
	out := make([]int, len(defaults))
	copy(out, defaults)

	if len(fields) != len(defaults) {
		return out, []error{fmt.Errorf("expected %d comma-separated values, got %d in %q", len(defaults), len(fields), csv)}
	}

	var errs []error
	for i, field := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			errs = append(errs, FieldError{Name: names[i], Value: field, Used: defaults[i]})
			continue
		}
		out[i] = v
	}
	return out, errs
}
