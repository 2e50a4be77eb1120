package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Relaylight.
// Both binaries (device agent and forwarder) load the same file and read
// the sections they need. Values can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Actuator  ActuatorConfig  `yaml:"actuator"`
	Intake    HTTPConfig      `yaml:"intake"`
	Forwarder ForwarderConfig `yaml:"forwarder"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig contains device identity and runtime settings.
type DeviceConfig struct {
	ID string `yaml:"id"`

	// HeartbeatInterval is the period between heartbeat ticks (seconds).
	HeartbeatInterval int `yaml:"heartbeat_interval"`

	Network NetworkConfig `yaml:"network"`
}

// NetworkConfig controls the boot-time network join check.
type NetworkConfig struct {
	// ProbeAddress is a host:port dialled to confirm connectivity.
	// Empty disables the probe (the join always succeeds).
	ProbeAddress string `yaml:"probe_address"`

	// JoinAttempts bounds the number of probe attempts before the device
	// gives up and exits for a supervisor restart.
	JoinAttempts int `yaml:"join_attempts"`

	// JoinDelay is the pause between attempts (milliseconds).
	JoinDelay int `yaml:"join_delay"`
}

// ActuatorConfig describes the single indicator output.
type ActuatorConfig struct {
	// Output selects the backend: "simulated" or "sysfs".
	Output string `yaml:"output"`

	// SysfsPath is the LED class brightness file used by the sysfs backend,
	// e.g. /sys/class/leds/status/brightness.
	SysfsPath string `yaml:"sysfs_path"`

	// Inverted drives the complement of the logical level (active-low wiring).
	Inverted bool `yaml:"inverted"`

	// MaxLevel is the physical full-scale value (1-255).
	MaxLevel int `yaml:"max_level"`
}

// HTTPConfig contains settings for an HTTP listener.
type HTTPConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig holds server timeouts in seconds. Zero disables one.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists what browsers may send to the forwarder API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// ForwarderConfig contains Delivery Forwarder settings.
type ForwarderConfig struct {
	API HTTPConfig `yaml:"api"`

	// Region labels this forwarder deployment in logs and metrics.
	Region string `yaml:"region"`

	// MaxInstances bounds concurrent deliveries.
	MaxInstances int `yaml:"max_instances"`

	// RequestTimeout bounds each outbound device request (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	UserAgent string `yaml:"user_agent"`

	// Headers are added to every outbound device request, after the
	// built-in tunnel headers.
	Headers map[string]string `yaml:"headers"`
}

// DatabaseConfig locates the forwarder's SQLite file.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig enables the optional event bus.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig addresses the broker.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	// ClientID must differ between the device agent and the forwarder.
	// Empty means each binary picks its own (see WithClientID).
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig holds broker credentials. Prefer RELAYLIGHT_MQTT_PASSWORD
// over the file.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds the reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig enables metrics export to an InfluxDB v2 bucket.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig selects level, format and destination.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig sets lumberjack rotation for file output.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load builds a Config in layers: defaults, then path's YAML, then
// RELAYLIGHT_* environment variables, and validates the result. A .env
// file beside path is exported first but never replaces a variable that
// is already set.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, fmt.Errorf("reading .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv exports variables from an optional .env file.
// A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// defaultConfig is the bottom layer that Load starts from.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:                "relaylight-001",
			HeartbeatInterval: 30,
			Network: NetworkConfig{
				JoinAttempts: 20,
				JoinDelay:    500,
			},
		},
		Actuator: ActuatorConfig{
			Output:   "simulated",
			MaxLevel: 255,
		},
		Intake: HTTPConfig{
			Host: "0.0.0.0",
			Port: 80,
			Timeouts: APITimeoutConfig{
				Read: 10,
				// Commands run before the response is written, so a long
				// PULSE must not be cut off by the server.
				Write: 0,
				Idle:  60,
			},
		},
		Forwarder: ForwarderConfig{
			API: HTTPConfig{
				Host: "0.0.0.0",
				Port: 8080,
				Timeouts: APITimeoutConfig{
					Read:  30,
					Write: 30,
					Idle:  60,
				},
			},
			Region:         "local",
			MaxInstances:   10,
			RequestTimeout: 5,
			UserAgent:      "relaylight-forwarder",
		},
		Database: DatabaseConfig{
			Path:        "./data/relaylight.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// envPrefix namespaces every override, as in RELAYLIGHT_DEVICE_ID.
const envPrefix = "RELAYLIGHT_"

// envOverride binds one environment variable to a config field. Values
// that fail to parse are ignored and the file value stands.
type envOverride struct {
	key string
	set func(cfg *Config, v string)
}

func setString(field func(*Config) *string) func(*Config, string) {
	return func(cfg *Config, v string) { *field(cfg) = v }
}

func setInt(field func(*Config) *int) func(*Config, string) {
	return func(cfg *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*field(cfg) = n
		}
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) {
	return func(cfg *Config, v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			*field(cfg) = b
		}
	}
}

var envOverrides = []envOverride{
	{"DEVICE_ID", setString(func(c *Config) *string { return &c.Device.ID })},
	{"ACTUATOR_INVERTED", setBool(func(c *Config) *bool { return &c.Actuator.Inverted })},
	{"INTAKE_HOST", setString(func(c *Config) *string { return &c.Intake.Host })},
	{"FORWARDER_API_HOST", setString(func(c *Config) *string { return &c.Forwarder.API.Host })},
	{"FORWARDER_REGION", setString(func(c *Config) *string { return &c.Forwarder.Region })},
	{"FORWARDER_MAX_INSTANCES", setInt(func(c *Config) *int { return &c.Forwarder.MaxInstances })},
	{"DATABASE_PATH", setString(func(c *Config) *string { return &c.Database.Path })},
	{"MQTT_HOST", setString(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"MQTT_CLIENT_ID", setString(func(c *Config) *string { return &c.MQTT.Broker.ClientID })},
	{"MQTT_USERNAME", setString(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"MQTT_PASSWORD", setString(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"INFLUXDB_TOKEN", setString(func(c *Config) *string { return &c.InfluxDB.Token })},
}

// applyEnvOverrides copies every non-empty RELAYLIGHT_* variable in
// envOverrides onto cfg.
func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(envPrefix + o.key); v != "" {
			o.set(cfg, v)
		}
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}
	if c.Device.HeartbeatInterval < 1 {
		errs = append(errs, "device.heartbeat_interval must be at least 1 second")
	}
	if c.Device.Network.JoinAttempts < 1 {
		errs = append(errs, "device.network.join_attempts must be at least 1")
	}
	if c.Device.Network.JoinDelay < 0 {
		errs = append(errs, "device.network.join_delay cannot be negative")
	}

	// Actuator validation
	switch strings.ToLower(c.Actuator.Output) {
	case "simulated":
	case "sysfs":
		if c.Actuator.SysfsPath == "" {
			errs = append(errs, "actuator.sysfs_path is required for the sysfs output")
		}
	default:
		errs = append(errs, "actuator.output must be simulated or sysfs")
	}
	if c.Actuator.MaxLevel < 1 || c.Actuator.MaxLevel > 255 {
		errs = append(errs, "actuator.max_level must be between 1 and 255")
	}

	// Listener validation
	errs = append(errs, c.Intake.validate("intake")...)
	errs = append(errs, c.Forwarder.API.validate("forwarder.api")...)

	// Forwarder validation
	if c.Forwarder.MaxInstances < 1 {
		errs = append(errs, "forwarder.max_instances must be at least 1")
	}
	if c.Forwarder.RequestTimeout < 1 {
		errs = append(errs, "forwarder.request_timeout must be at least 1 second")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Logging validation
	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate checks a listener section, prefixing messages with its name.
func (h HTTPConfig) validate(name string) []string {
	var errs []string
	if h.Port < 1 || h.Port > 65535 {
		errs = append(errs, name+".port must be between 1 and 65535")
	}
	if h.Timeouts.Read < 0 || h.Timeouts.Write < 0 || h.Timeouts.Idle < 0 {
		errs = append(errs, name+".timeouts cannot be negative")
	}
	return errs
}

// Address returns the host:port listen address.
func (h HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// GetReadTimeout returns the read timeout as a Duration.
func (h HTTPConfig) GetReadTimeout() time.Duration {
	return time.Duration(h.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the write timeout as a Duration.
func (h HTTPConfig) GetWriteTimeout() time.Duration {
	return time.Duration(h.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the idle timeout as a Duration.
func (h HTTPConfig) GetIdleTimeout() time.Duration {
	return time.Duration(h.Timeouts.Idle) * time.Second
}

// WithClientID returns a copy of m whose broker client ID is fallback
// unless one is configured.
func (m MQTTConfig) WithClientID(fallback string) MQTTConfig {
	if m.Broker.ClientID == "" {
		m.Broker.ClientID = fallback
	}
	return m
}

// GetRequestTimeout returns the outbound device request timeout.
func (f ForwarderConfig) GetRequestTimeout() time.Duration {
	return time.Duration(f.RequestTimeout) * time.Second
}

// GetHeartbeatInterval returns the heartbeat period.
func (d DeviceConfig) GetHeartbeatInterval() time.Duration {
	return time.Duration(d.HeartbeatInterval) * time.Second
}

// GetJoinDelay returns the pause between network join attempts.
func (n NetworkConfig) GetJoinDelay() time.Duration {
	return time.Duration(n.JoinDelay) * time.Millisecond
}
