package device

import (
	"time"

	"go.uber.org/zap"

	"i4.energy/across/btconf/param"
)

// DefaultTimeout bounds each line of an exchange. HC-05 modules answer
// well within it at 38400 baud.
const DefaultTimeout = 500 * time.Millisecond

// Config controls how a Connection is opened and how its batches run.
type Config struct {
	// Dialer opens the transport. Required.
	Dialer Dialer
	// Catalog lists the parameters to synchronize; param.Default() when nil.
	Catalog *param.Catalog
	// Timeout bounds each response line of an exchange.
	Timeout time.Duration
	// SkipUnchanged leaves synced parameters out of write batches.
	SkipUnchanged bool
	// Logger receives exchange and batch logs; a no-op logger when nil.
	Logger *zap.Logger
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Catalog == nil {
		c.Catalog = param.Default()
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder holding an empty Config.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithCatalog(c *param.Catalog) *ConfigBuilder {
	b.config.Catalog = c
	return b
}

func (b *ConfigBuilder) WithTimeout(d time.Duration) *ConfigBuilder {
	b.config.Timeout = d
	return b
}

func (b *ConfigBuilder) WithSkipUnchanged(skip bool) *ConfigBuilder {
	b.config.SkipUnchanged = skip
	return b
}

func (b *ConfigBuilder) WithLogger(l *zap.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
