package config

import (
	"fmt"
	"strings"
	"time"
)

// ShutdownConfig bounds the graceful stop of the servers.
type ShutdownConfig struct {
	// Timeout caps each server's graceful stop and the flush of telemetry providers.
	Timeout time.Duration `koanf:"timeout"`
	// DrainDelay is how long the health status reports NOT_SERVING before the servers stop accepting requests.
	DrainDelay time.Duration `koanf:"draindelay"`
}

func (c *ShutdownConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Shutdown ---\n")
	fmt.Fprintf(&b, "  timeout: %s\n", c.Timeout)
	fmt.Fprintf(&b, "  draindelay: %s\n", c.DrainDelay)
	return b.String()
}

func (c *ShutdownConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.Timeout)
	}
	if c.DrainDelay < 0 {
		return fmt.Errorf("shutdown drain delay must not be negative, got %s", c.DrainDelay)
	}
	if c.DrainDelay >= c.Timeout {
		return fmt.Errorf("shutdown drain delay %s must be shorter than the timeout %s", c.DrainDelay, c.Timeout)
	}
	return nil
}
