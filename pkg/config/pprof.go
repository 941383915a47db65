package config

import (
	"fmt"
	"net"
	"strings"
)

// PProfConfig controls the profiling listener. It is served on its own address, never on the API port.
type PProfConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	// Prefix is the route the profiler is mounted under.
	Prefix string `koanf:"prefix"`
}

func (c *PProfConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- PProf ---\n")
	fmt.Fprintf(&b, "  enabled: %t\n", c.Enabled)
	fmt.Fprintf(&b, "  addr: %s\n", c.Addr)
	fmt.Fprintf(&b, "  prefix: %s\n", c.Prefix)
	return b.String()
}

func (c *PProfConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid pprof address %q: %w", c.Addr, err)
	}
	if !strings.HasPrefix(c.Prefix, "/") {
		return fmt.Errorf("pprof prefix must start with '/', got %q", c.Prefix)
	}
	return nil
}
