package config

import (
	"fmt"
	"strings"
	"time"
)

type GrpcServerConfig struct {
	Port              string `koanf:"port"`
	ReflectionEnabled bool   `koanf:"reflection"`
	// HealthInterval is how often dependencies are probed to refresh the health status.
	HealthInterval time.Duration `koanf:"healthinterval"`
}

// String returns a string representation of the gRPC server configuration.
func (c *GrpcServerConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- gRPC ---\n")
	b.WriteString(fmt.Sprintf("  port: %s\n", c.Port))
	b.WriteString(fmt.Sprintf("  reflection: %t\n", c.ReflectionEnabled))
	b.WriteString(fmt.Sprintf("  healthinterval: %s\n", c.HealthInterval))
	return b.String()
}

func (c *GrpcServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("gRPC port is not configured")
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("gRPC health interval must be greater than 0")
	}
	return nil
}
