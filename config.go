package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"i4.energy/across/btconf/device"
	"i4.energy/across/btconf/param"
)

// Config holds the application configuration
type Config struct {
	Serial  SerialConfig   `mapstructure:"serial"`
	HTTP    HTTPConfig     `mapstructure:"http"`
	Log     LogConfig      `mapstructure:"log"`
	Sync    SyncConfig     `mapstructure:"sync"`
	Catalog []CatalogEntry `mapstructure:"catalog"`
}

// SerialConfig describes the line to the module
type SerialConfig struct {
	// Port is the path to the module's serial port (e.g. "/dev/ttyUSB0")
	Port string `mapstructure:"port"`
	// BaudRate is the AT-mode baud rate (38400 on HC-05)
	BaudRate int `mapstructure:"baud_rate"`
	// Timeout bounds the wait for each response line
	Timeout time.Duration `mapstructure:"timeout"`
}

// HTTPConfig configures the control API started by "serve"
type HTTPConfig struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress    string   `mapstructure:"bind_address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	// Level sets the logging level (e.g. "debug", "info", "warn", "error")
	Level string `mapstructure:"level"`
	// Format is "json" or "console"
	Format string `mapstructure:"format"`
	// Output is "stdout", "stderr" or a file path rotated by size
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type SyncConfig struct {
	// SkipUnchanged leaves synced parameters out of write batches
	SkipUnchanged bool `mapstructure:"skip_unchanged"`
}

// CatalogEntry is one parameter definition as written in the config file.
type CatalogEntry struct {
	Label   string `mapstructure:"label"`
	Command string `mapstructure:"command"`
	Replace string `mapstructure:"replace"`
	Type    string `mapstructure:"type"`
	Min     *int   `mapstructure:"min"`
	Max     *int   `mapstructure:"max"`
}

// ConfigOption is a function that modifies the configuration source
type ConfigOption func(*viper.Viper) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	v := viper.New()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(v *viper.Viper) error {
		v.SetDefault("serial.port", "/dev/ttyUSB0")
		v.SetDefault("serial.baud_rate", device.DefaultBaudRate)
		v.SetDefault("serial.timeout", device.DefaultTimeout)

		v.SetDefault("http.bind_address", "0.0.0.0:8080")
		v.SetDefault("http.allowed_origins", []string{})

		v.SetDefault("log.level", "info")
		v.SetDefault("log.format", "json")
		v.SetDefault("log.output", "stderr")
		v.SetDefault("log.max_size", 10)
		v.SetDefault("log.max_backups", 3)
		v.SetDefault("log.max_age", 28)
		v.SetDefault("log.compress", true)

		v.SetDefault("sync.skip_unchanged", false)
		return nil
	}
}

// WithFile reads a config file. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(v *viper.Viper) error {
		if path == "" {
			return nil
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		return nil
	}
}

// WithEnv loads configuration from BTCONF_ prefixed environment variables,
// e.g. BTCONF_SERIAL_PORT for serial.port
func WithEnv() ConfigOption {
	return func(v *viper.Viper) error {
		v.SetEnvPrefix("BTCONF")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		return nil
	}
}

// flagKeys maps command-line flags onto config keys
var flagKeys = map[string]string{
	"port":           "serial.port",
	"baud-rate":      "serial.baud_rate",
	"timeout":        "serial.timeout",
	"bind-address":   "http.bind_address",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"log-output":     "log.output",
	"skip-unchanged": "sync.skip_unchanged",
}

// WithFlags loads configuration from command-line flags. Only flags the
// user set override other sources.
func WithFlags(fSet *pflag.FlagSet) ConfigOption {
	return func(v *viper.Viper) error {
		for name, key := range flagKeys {
			f := fSet.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
		return nil
	}
}

func validate(config *Config) error {
	if config.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}
	if config.Serial.Timeout <= 0 {
		return fmt.Errorf("serial.timeout must be positive")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, config.Log.Level) {
		return fmt.Errorf("log.level must be one of: %v", validLevels)
	}
	validFormats := []string{"json", "console"}
	if !slices.Contains(validFormats, config.Log.Format) {
		return fmt.Errorf("log.format must be one of: %v", validFormats)
	}

	if _, err := config.ParameterCatalog(); err != nil {
		return err
	}
	return nil
}

// ParameterCatalog builds the catalog from the config file entries, or
// returns the default HC-05 catalog when none are given.
func (c *Config) ParameterCatalog() (*param.Catalog, error) {
	if len(c.Catalog) == 0 {
		return param.Default(), nil
	}

	defs := make([]param.Definition, 0, len(c.Catalog))
	for i, e := range c.Catalog {
		typ, err := param.ParseType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("catalog[%d]: %w", i, err)
		}
		def := param.Definition{
			Label:   e.Label,
			Command: e.Command,
			Replace: e.Replace,
			Type:    typ,
		}
		if e.Min != nil || e.Max != nil {
			if e.Min == nil || e.Max == nil {
				return nil, fmt.Errorf("catalog[%d]: %w: range needs both min and max", i, param.ErrInvalidCatalog)
			}
			def.Range = &param.Range{Min: *e.Min, Max: *e.Max}
		}
		defs = append(defs, def)
	}
	return param.NewCatalog(defs)
}
