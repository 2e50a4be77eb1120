package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  id: "bench-led"
  heartbeat_interval: 10
actuator:
  output: "simulated"
  inverted: true
intake:
  port: 8081
forwarder:
  region: "eu-west"
  max_instances: 4
  headers:
    X-Trace: "on"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	configPath := writeConfig(t, t.TempDir(), content)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ID != "bench-led" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "bench-led")
	}
	if !cfg.Actuator.Inverted {
		t.Error("Actuator.Inverted = false, want true")
	}
	if cfg.Actuator.MaxLevel != 255 {
		t.Errorf("Actuator.MaxLevel = %d, want default 255", cfg.Actuator.MaxLevel)
	}
	if cfg.Intake.Port != 8081 {
		t.Errorf("Intake.Port = %d, want 8081", cfg.Intake.Port)
	}
	if cfg.Forwarder.Region != "eu-west" {
		t.Errorf("Forwarder.Region = %q, want %q", cfg.Forwarder.Region, "eu-west")
	}
	if cfg.Forwarder.MaxInstances != 4 {
		t.Errorf("Forwarder.MaxInstances = %d, want 4", cfg.Forwarder.MaxInstances)
	}
	if cfg.Forwarder.RequestTimeout != 5 {
		t.Errorf("Forwarder.RequestTimeout = %d, want default 5", cfg.Forwarder.RequestTimeout)
	}
	if cfg.Forwarder.Headers["X-Trace"] != "on" {
		t.Errorf("Forwarder.Headers = %v, want X-Trace=on", cfg.Forwarder.Headers)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
device:
  id: ""
database:
  path: "/tmp/test.db"
`
	configPath := writeConfig(t, t.TempDir(), content)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for empty device.id, got nil")
	}
	if !strings.Contains(err.Error(), "device.id is required") {
		t.Errorf("Load() error = %v, want mention of device.id", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	const key = "RELAYLIGHT_FORWARDER_REGION"
	if _, set := os.LookupEnv(key); set {
		t.Skipf("%s already set in environment", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=from-dotenv\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	configPath := writeConfig(t, dir, "device:\n  id: \"dev\"\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Forwarder.Region != "from-dotenv" {
		t.Errorf("Forwarder.Region = %q, want %q", cfg.Forwarder.Region, "from-dotenv")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing device ID",
			mutate:  func(c *Config) { c.Device.ID = "" },
			wantErr: "device.id",
		},
		{
			name:    "zero heartbeat interval",
			mutate:  func(c *Config) { c.Device.HeartbeatInterval = 0 },
			wantErr: "device.heartbeat_interval",
		},
		{
			name:    "zero join attempts",
			mutate:  func(c *Config) { c.Device.Network.JoinAttempts = 0 },
			wantErr: "device.network.join_attempts",
		},
		{
			name:    "unknown actuator output",
			mutate:  func(c *Config) { c.Actuator.Output = "pwm" },
			wantErr: "actuator.output",
		},
		{
			name:    "sysfs without path",
			mutate:  func(c *Config) { c.Actuator.Output = "sysfs" },
			wantErr: "actuator.sysfs_path",
		},
		{
			name: "sysfs with path",
			mutate: func(c *Config) {
				c.Actuator.Output = "sysfs"
				c.Actuator.SysfsPath = "/sys/class/leds/status/brightness"
			},
		},
		{
			name:    "max level too high",
			mutate:  func(c *Config) { c.Actuator.MaxLevel = 256 },
			wantErr: "actuator.max_level",
		},
		{
			name:    "intake port low",
			mutate:  func(c *Config) { c.Intake.Port = 0 },
			wantErr: "intake.port",
		},
		{
			name:    "forwarder api port high",
			mutate:  func(c *Config) { c.Forwarder.API.Port = 70000 },
			wantErr: "forwarder.api.port",
		},
		{
			name:    "negative timeouts",
			mutate:  func(c *Config) { c.Intake.Timeouts.Idle = -1 },
			wantErr: "intake.timeouts",
		},
		{
			name:    "zero max instances",
			mutate:  func(c *Config) { c.Forwarder.MaxInstances = 0 },
			wantErr: "forwarder.max_instances",
		},
		{
			name:    "zero request timeout",
			mutate:  func(c *Config) { c.Forwarder.RequestTimeout = 0 },
			wantErr: "forwarder.request_timeout",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "file logging without path",
			mutate:  func(c *Config) { c.Logging.Output = "file" },
			wantErr: "logging.file.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want mention of %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Device.ID = ""
	cfg.Database.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want error")
	}
	if got := strings.Count(err.Error(), "; "); got != 1 {
		t.Errorf("Validate() error = %q, want two joined messages", err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	h := HTTPConfig{
		Host: "127.0.0.1",
		Port: 9000,
		Timeouts: APITimeoutConfig{
			Read:  30,
			Write: 45,
			Idle:  60,
		},
	}

	if got := h.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := h.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := h.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := h.Address(); got != "127.0.0.1:9000" {
		t.Errorf("Address() = %q, want %q", got, "127.0.0.1:9000")
	}

	cfg := defaultConfig()
	if got := cfg.Forwarder.GetRequestTimeout().Seconds(); got != 5 {
		t.Errorf("GetRequestTimeout() = %v, want 5", got)
	}
	if got := cfg.Device.GetHeartbeatInterval().Seconds(); got != 30 {
		t.Errorf("GetHeartbeatInterval() = %v, want 30", got)
	}
	if got := cfg.Device.Network.GetJoinDelay().Milliseconds(); got != 500 {
		t.Errorf("GetJoinDelay() = %v, want 500ms", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("RELAYLIGHT_DEVICE_ID", "env-device")
	t.Setenv("RELAYLIGHT_ACTUATOR_INVERTED", "true")
	t.Setenv("RELAYLIGHT_INTAKE_HOST", "10.0.0.5")
	t.Setenv("RELAYLIGHT_FORWARDER_API_HOST", "192.168.1.1")
	t.Setenv("RELAYLIGHT_FORWARDER_REGION", "us-central1")
	t.Setenv("RELAYLIGHT_FORWARDER_MAX_INSTANCES", "3")
	t.Setenv("RELAYLIGHT_DATABASE_PATH", "/custom/path.db")
	t.Setenv("RELAYLIGHT_MQTT_HOST", "mqtt.example.com")
	t.Setenv("RELAYLIGHT_MQTT_USERNAME", "testuser")
	t.Setenv("RELAYLIGHT_MQTT_PASSWORD", "testpass")
	t.Setenv("RELAYLIGHT_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Device.ID != "env-device" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "env-device")
	}
	if !cfg.Actuator.Inverted {
		t.Error("Actuator.Inverted = false, want true")
	}
	if cfg.Intake.Host != "10.0.0.5" {
		t.Errorf("Intake.Host = %q, want %q", cfg.Intake.Host, "10.0.0.5")
	}
	if cfg.Forwarder.API.Host != "192.168.1.1" {
		t.Errorf("Forwarder.API.Host = %q, want %q", cfg.Forwarder.API.Host, "192.168.1.1")
	}
	if cfg.Forwarder.Region != "us-central1" {
		t.Errorf("Forwarder.Region = %q, want %q", cfg.Forwarder.Region, "us-central1")
	}
	if cfg.Forwarder.MaxInstances != 3 {
		t.Errorf("Forwarder.MaxInstances = %d, want 3", cfg.Forwarder.MaxInstances)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_IgnoresMalformedNumbers(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("RELAYLIGHT_FORWARDER_MAX_INSTANCES", "many")
	t.Setenv("RELAYLIGHT_ACTUATOR_INVERTED", "sometimes")

	applyEnvOverrides(cfg)

	if cfg.Forwarder.MaxInstances != 10 {
		t.Errorf("Forwarder.MaxInstances = %d, want default 10", cfg.Forwarder.MaxInstances)
	}
	if cfg.Actuator.Inverted {
		t.Error("Actuator.Inverted = true, want default false")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Device.ID == "" {
		t.Error("defaultConfig should have non-empty Device.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Enabled {
		t.Error("defaultConfig should leave MQTT disabled")
	}
	if cfg.MQTT.Broker.ClientID != "" {
		t.Errorf("defaultConfig MQTT.Broker.ClientID = %q, want empty so each binary picks its own", cfg.MQTT.Broker.ClientID)
	}
	if cfg.Forwarder.API.Port != 8080 {
		t.Errorf("defaultConfig Forwarder.API.Port = %d, want 8080", cfg.Forwarder.API.Port)
	}
	if cfg.Intake.Timeouts.Write != 0 {
		t.Errorf("defaultConfig Intake.Timeouts.Write = %d, want 0 (commands block the response)", cfg.Intake.Timeouts.Write)
	}
}

func TestMQTTConfig_WithClientID(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		fallback   string
		want       string
	}{
		{"unset uses fallback", "", "relaylight-forwarder", "relaylight-forwarder"},
		{"configured wins", "bench-rig", "relaylight-001", "bench-rig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MQTTConfig{Broker: MQTTBrokerConfig{ClientID: tt.configured}}
			got := m.WithClientID(tt.fallback)
			if got.Broker.ClientID != tt.want {
				t.Errorf("WithClientID(%q) = %q, want %q", tt.fallback, got.Broker.ClientID, tt.want)
			}
			if m.Broker.ClientID != tt.configured {
				t.Error("WithClientID modified the receiver")
			}
		})
	}
}
