package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"i4.energy/across/btconf/device"
	"i4.energy/across/btconf/param"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "btconf.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		config, err := LoadConfig(WithDefaults())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Serial.Port != "/dev/ttyUSB0" {
			t.Errorf("unexpected port: %q", config.Serial.Port)
		}
		if config.Serial.BaudRate != device.DefaultBaudRate {
			t.Errorf("unexpected baud rate: %d", config.Serial.BaudRate)
		}
		if config.Serial.Timeout != device.DefaultTimeout {
			t.Errorf("unexpected timeout: %v", config.Serial.Timeout)
		}
		if config.HTTP.BindAddress != "0.0.0.0:8080" {
			t.Errorf("unexpected bind address: %q", config.HTTP.BindAddress)
		}
		if config.Log.Level != "info" || config.Log.Format != "json" || config.Log.Output != "stderr" {
			t.Errorf("unexpected log config: %+v", config.Log)
		}
		if config.Sync.SkipUnchanged {
			t.Error("expected skip_unchanged to default to false")
		}
	})

	t.Run("Validation without defaults", func(t *testing.T) {
		if _, err := LoadConfig(); err == nil {
			t.Error("expected validation error for empty config")
		}
	})

	t.Run("File overrides defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
serial:
  port: /dev/rfcomm0
  timeout: 2s
log:
  level: debug
  format: console
sync:
  skip_unchanged: true
http:
  allowed_origins:
    - http://localhost:3000
`)
		config, err := LoadConfig(WithDefaults(), WithFile(path))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Serial.Port != "/dev/rfcomm0" {
			t.Errorf("unexpected port: %q", config.Serial.Port)
		}
		if config.Serial.Timeout != 2*time.Second {
			t.Errorf("unexpected timeout: %v", config.Serial.Timeout)
		}
		if config.Serial.BaudRate != device.DefaultBaudRate {
			t.Errorf("expected default baud rate to survive, got %d", config.Serial.BaudRate)
		}
		if config.Log.Level != "debug" || config.Log.Format != "console" {
			t.Errorf("unexpected log config: %+v", config.Log)
		}
		if !config.Sync.SkipUnchanged {
			t.Error("expected skip_unchanged from file")
		}
		if len(config.HTTP.AllowedOrigins) != 1 || config.HTTP.AllowedOrigins[0] != "http://localhost:3000" {
			t.Errorf("unexpected origins: %v", config.HTTP.AllowedOrigins)
		}
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadConfig(WithDefaults(), WithFile(filepath.Join(t.TempDir(), "missing.yaml")))
		if err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("Empty file path is ignored", func(t *testing.T) {
		if _, err := LoadConfig(WithDefaults(), WithFile("")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Environment overrides file", func(t *testing.T) {
		path := writeConfigFile(t, "serial:\n  port: /dev/rfcomm0\n")
		t.Setenv("BTCONF_SERIAL_PORT", "/dev/ttyS3")
		t.Setenv("BTCONF_SERIAL_BAUD_RATE", "9600")
		t.Setenv("BTCONF_LOG_LEVEL", "warn")

		config, err := LoadConfig(WithDefaults(), WithFile(path), WithEnv())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Serial.Port != "/dev/ttyS3" {
			t.Errorf("unexpected port: %q", config.Serial.Port)
		}
		if config.Serial.BaudRate != 9600 {
			t.Errorf("unexpected baud rate: %d", config.Serial.BaudRate)
		}
		if config.Log.Level != "warn" {
			t.Errorf("unexpected log level: %q", config.Log.Level)
		}
	})

	t.Run("Flags override environment", func(t *testing.T) {
		t.Setenv("BTCONF_SERIAL_PORT", "/dev/ttyS3")

		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.String("port", "", "")
		fs.Int("baud-rate", device.DefaultBaudRate, "")
		fs.Bool("skip-unchanged", false, "")
		if err := fs.Parse([]string{"--port", "/dev/ttyACM0", "--skip-unchanged"}); err != nil {
			t.Fatalf("unexpected parse error: %v", err)
		}

		config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fs))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Serial.Port != "/dev/ttyACM0" {
			t.Errorf("unexpected port: %q", config.Serial.Port)
		}
		if !config.Sync.SkipUnchanged {
			t.Error("expected skip_unchanged from flag")
		}
		if config.Serial.BaudRate != device.DefaultBaudRate {
			t.Errorf("unexpected baud rate: %d", config.Serial.BaudRate)
		}
	})

	t.Run("Unset flags keep lower sources", func(t *testing.T) {
		t.Setenv("BTCONF_SERIAL_PORT", "/dev/ttyS3")

		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.String("port", "/dev/flagdefault", "")
		fs.Parse(nil)

		config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fs))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Serial.Port != "/dev/ttyS3" {
			t.Errorf("unexpected port: %q", config.Serial.Port)
		}
	})

	t.Run("Invalid values", func(t *testing.T) {
		for name, content := range map[string]string{
			"log level":  "log:\n  level: verbose\n",
			"log format": "log:\n  format: xml\n",
			"baud rate":  "serial:\n  baud_rate: 0\n",
			"timeout":    "serial:\n  timeout: 0s\n",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := LoadConfig(WithDefaults(), WithFile(writeConfigFile(t, content)))
				if err == nil {
					t.Error("expected validation error")
				}
			})
		}
	})
}

func TestParameterCatalog(t *testing.T) {
	t.Run("Default catalog", func(t *testing.T) {
		config, err := LoadConfig(WithDefaults())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		catalog, err := config.ParameterCatalog()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if catalog != param.Default() {
			t.Error("expected the default catalog")
		}
	})

	t.Run("Catalog from file", func(t *testing.T) {
		path := writeConfigFile(t, `
catalog:
  - label: Name
    command: NAME
    type: quoted
  - label: Role
    command: ROLE
    type: integer
    min: 0
    max: 1
  - command: PSWD
    replace: PIN
    type: quoted
`)
		config, err := LoadConfig(WithDefaults(), WithFile(path))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		catalog, err := config.ParameterCatalog()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if catalog.Len() != 3 {
			t.Fatalf("expected 3 definitions, got %d", catalog.Len())
		}

		role := catalog.At(1)
		if role.Type != param.Integer || role.Range == nil || role.Range.Max != 1 {
			t.Errorf("unexpected role definition: %+v", role)
		}
		pin := catalog.At(2)
		if pin.Label != "PSWD" || pin.Replace != "PIN" || pin.Type != param.QuotedString {
			t.Errorf("unexpected pin definition: %+v", pin)
		}
	})

	t.Run("Invalid catalogs", func(t *testing.T) {
		for name, content := range map[string]string{
			"unknown type":  "catalog:\n  - command: NAME\n    type: float\n",
			"half range":    "catalog:\n  - command: ROLE\n    type: integer\n    min: 0\n",
			"string range":  "catalog:\n  - command: NAME\n    type: string\n    min: 0\n    max: 1\n",
			"duplicate":     "catalog:\n  - command: NAME\n    type: string\n  - command: NAME\n    type: string\n",
			"framing chars": "catalog:\n  - command: \"NA=ME\"\n    type: string\n",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := LoadConfig(WithDefaults(), WithFile(writeConfigFile(t, content)))
				if !errors.Is(err, param.ErrInvalidCatalog) {
					t.Errorf("expected ErrInvalidCatalog, got: %v", err)
				}
			})
		}
	})
}
