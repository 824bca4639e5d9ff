package device_test

import (
	"testing"
	"time"

	"i4.energy/across/btconf/device"
	"i4.energy/across/btconf/param"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := device.NewConfigBuilder().Build()

		if err != device.ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		config, err := device.NewConfigBuilder().
			WithDialer(device.TestDialer{Transport: device.NewTestTransport()}).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		if config.Timeout != device.DefaultTimeout {
			t.Errorf("expected default timeout %v, got %v", device.DefaultTimeout, config.Timeout)
		}
		if config.Catalog != param.Default() {
			t.Error("expected default catalog")
		}
		if config.Logger == nil {
			t.Error("expected a no-op logger")
		}
	})

	t.Run("Explicit values are kept", func(t *testing.T) {
		config, err := device.NewConfigBuilder().
			WithDialer(device.TestDialer{Transport: device.NewTestTransport()}).
			WithTimeout(2 * time.Second).
			WithSkipUnchanged(true).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		if config.Timeout != 2*time.Second {
			t.Errorf("expected 2s timeout, got %v", config.Timeout)
		}
		if !config.SkipUnchanged {
			t.Error("expected SkipUnchanged to be set")
		}
	})
}
