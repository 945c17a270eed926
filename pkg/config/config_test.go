package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roffe/canbtr/pkg/btr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "canbtr.yaml")
	if err := os.WriteFile(name, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Clock != 24000000 {
		t.Errorf("Expected clock 24000000, got %d", cfg.Clock)
	}
	if cfg.PortBaudrate != 2000000 {
		t.Errorf("Expected port baudrate 2000000, got %d", cfg.PortBaudrate)
	}
	if cfg.ReadWindow() != 100*time.Millisecond {
		t.Errorf("Expected read window 100ms, got %s", cfg.ReadWindow())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv(EnvConfig, "")
	name := writeConfig(t, `
adapter: virtual
port: /dev/ttyUSB1
clock: 16000000
tolerance: 0.005
readWindowMs: 250
limits:
  sjw:
    min: 2
log:
  file: /tmp/canbtr.log
`)
	cfg, err := Load(name)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Adapter != "virtual" || cfg.Port != "/dev/ttyUSB1" || cfg.Clock != 16000000 {
		t.Errorf("Load() = %+v", cfg)
	}
	if cfg.PortBaudrate != 2000000 {
		t.Errorf("Expected default port baudrate to survive, got %d", cfg.PortBaudrate)
	}
	if cfg.ReadWindow() != 250*time.Millisecond {
		t.Errorf("Expected read window 250ms, got %s", cfg.ReadWindow())
	}
	c := cfg.Constraints()
	if c.SJW != (btr.Range{Min: 2, Max: 4}) || c.Prescaler != (btr.Range{Min: 1, Max: 64}) {
		t.Errorf("Constraints() = %+v", c)
	}
}

func TestLoadEnvFile(t *testing.T) {
	name := writeConfig(t, "clock: 8000000\n")
	t.Setenv(EnvConfig, name)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Clock != 8000000 {
		t.Errorf("Expected clock from %s, got %d", EnvConfig, cfg.Clock)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(EnvConfig, "")
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "bitrat: 500000\n"},
		{"zero clock", "clock: 0\n"},
		{"bad sjw", "limits:\n  sjw:\n    max: 5\n"},
		{"negative window", "readWindowMs: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv("CANBTR_PORT", "COM7")
	t.Setenv("CANBTR_ADAPTER", "virtual")
	t.Setenv("CANBTR_CLOCK", "16000000")
	t.Setenv("CANBTR_PORT_BAUDRATE", "115200")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "COM7" || cfg.Adapter != "virtual" || cfg.Clock != 16000000 || cfg.PortBaudrate != 115200 {
		t.Errorf("Load() = %+v", cfg)
	}

	t.Setenv("CANBTR_CLOCK", "fast")
	if _, err := Load(""); err == nil {
		t.Error("Load() with non numeric CANBTR_CLOCK expected error")
	}
}
