package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/nerrad567/relaylight/internal/actuator"
	"github.com/nerrad567/relaylight/internal/device"
	"github.com/nerrad567/relaylight/internal/infrastructure/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// closedAddress returns an address nothing listens on.
func closedAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close() //nolint:errcheck // freed on purpose
	return addr
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("RELAYLIGHT_CONFIG", "/nonexistent/path/config.yaml")

	if err := run(context.Background()); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_NetworkJoinFails verifies the agent exits when it cannot join.
func TestRun_NetworkJoinFails(t *testing.T) {
	t.Setenv("RELAYLIGHT_CONFIG", writeConfig(t, `
device:
  id: "test-device"
  network:
    probe_address: "`+closedAddress(t)+`"
    join_attempts: 2
    join_delay: 10
logging:
  level: error
`))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx)
	if !errors.Is(err, device.ErrNetworkJoin) {
		t.Fatalf("run() error = %v, want ErrNetworkJoin", err)
	}
}

// TestRun_ServesCommands starts the agent on a simulated output.
func TestRun_ServesCommands(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() //nolint:errcheck // freed for the intake

	t.Setenv("RELAYLIGHT_CONFIG", writeConfig(t, `
device:
  id: "test-device"
intake:
  host: "127.0.0.1"
  port: `+strconv.Itoa(port)+`
actuator:
  output: simulated
logging:
  level: error
`))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	base := "http://127.0.0.1:" + strconv.Itoa(port)
	deadline := time.Now().Add(5 * time.Second)
	var resp *http.Response
	for {
		resp, err = http.Get(base + "/command?cmd=TURN_ON")
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("intake did not start: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	resp.Body.Close() //nolint:errcheck // status only
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /command status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestOpenOutput(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ActuatorConfig
		wantErr bool
		check   func(actuator.Output) bool
	}{
		{
			name:  "simulated",
			cfg:   config.ActuatorConfig{Output: "simulated"},
			check: func(o actuator.Output) bool { _, ok := o.(*actuator.Memory); return ok },
		},
		{
			name:  "sysfs",
			cfg:   config.ActuatorConfig{Output: "SYSFS", SysfsPath: "/sys/class/leds/x/brightness"},
			check: func(o actuator.Output) bool { s, ok := o.(*actuator.Sysfs); return ok && s.Path() == "/sys/class/leds/x/brightness" },
		},
		{name: "unknown", cfg: config.ActuatorConfig{Output: "pwm"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := openOutput(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openOutput() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(out) {
				t.Errorf("openOutput() = %T", out)
			}
		})
	}
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	errDown := errors.New("down")
	var calls []string
	track := func(name string, err error) dependency {
		return dependency{name, checkFunc(func(context.Context) error {
			calls = append(calls, name)
			return err
		})}
	}

	if err := healthCheck(context.Background(), nil); err != nil {
		t.Errorf("healthCheck(nil) error = %v", err)
	}

	err := healthCheck(context.Background(), []dependency{
		track("mqtt", nil),
		track("influxdb", errDown),
		track("intake", nil),
	})
	if !errors.Is(err, errDown) {
		t.Fatalf("healthCheck() error = %v, want %v", err, errDown)
	}
	if err.Error() != "influxdb: down" {
		t.Errorf("healthCheck() error = %q, want dependency name prefix", err)
	}
	if len(calls) != 2 {
		t.Errorf("checks run = %v, want to stop at the first failure", calls)
	}
}
