// Package config holds the catalog service configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/abgdnv/catalog/pkg/config"
	"github.com/abgdnv/catalog/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

const (
	BlobDriverS3     = "s3"
	BlobDriverMemory = "memory"
)

type Config struct {
	HTTPServer config.HTTPConfig       `koanf:"server"`
	Database   config.DatabaseConfig   `koanf:"database"`
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	GRPC       config.GrpcServerConfig `koanf:"grpc"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
	Telemetry  config.TelemetryConfig  `koanf:"telemetry"`
	Nats       config.NATSConfig       `koanf:"nats"`
	Blob       BlobConfig              `koanf:"blob"`
	Attachment AttachmentConfig        `koanf:"attachment"`
	Events     EventsConfig            `koanf:"events"`
	Popularity PopularityConfig        `koanf:"popularity"`
}

// BlobConfig selects and configures the object store holding product images.
//
// The S3 credentials need s3:GetObject, s3:PutObject and s3:DeleteObject on the namespace, plus s3:ListBucket
// on the bucket. Without ListBucket, S3 answers 403 AccessDenied for a missing object instead of 404, and
// missing images surface as server errors instead of not found.
type BlobConfig struct {
	// Driver is s3 or memory.
	Driver string `koanf:"driver"`
	// Namespace is the path under which product folders are created. Its first segment is the S3 bucket.
	Namespace      string                      `koanf:"namespace"`
	Region         string                      `koanf:"region"`
	Endpoint       string                      `koanf:"endpoint"`
	UsePathStyle   bool                        `koanf:"usepathstyle"`
	AccessKey      string                      `koanf:"accesskey"`
	SecretKey      string                      `koanf:"secretkey"`
	Timeout        time.Duration               `koanf:"timeout"`
	CircuitBreaker config.CircuitBreakerConfig `koanf:"circuitbreaker"`
}

func (c *BlobConfig) Validate() error {
	switch c.Driver {
	case BlobDriverS3:
		if c.Region == "" {
			return fmt.Errorf("blob.region is not configured")
		}
		if (c.AccessKey == "") != (c.SecretKey == "") {
			return fmt.Errorf("blob.accesskey and blob.secretkey must be set together")
		}
	case BlobDriverMemory:
	default:
		return fmt.Errorf("unknown blob driver: %q", c.Driver)
	}
	if strings.Trim(c.Namespace, "/") == "" {
		return fmt.Errorf("blob.namespace is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("blob.timeout must be greater than 0")
	}
	return c.CircuitBreaker.Validate()
}

// AttachmentConfig is the upload policy for product images.
type AttachmentConfig struct {
	MaxSize      int64    `koanf:"maxsize"`
	AllowedTypes []string `koanf:"allowedtypes"`
	// CleanupOnDelete removes the image from the blob store when its product is deleted.
	CleanupOnDelete bool `koanf:"cleanupondelete"`
}

func (c *AttachmentConfig) Validate() error {
	if c.MaxSize < 0 {
		return fmt.Errorf("attachment.maxsize must not be negative")
	}
	return nil
}

// EventsConfig enables publishing catalog events to NATS.
type EventsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// PopularityConfig enables the subscriber that removes popularity records of deleted products.
type PopularityConfig struct {
	Enabled    bool                    `koanf:"enabled"`
	Subscriber config.SubscriberConfig `koanf:"subscriber"`
}

// NatsRequired reports whether a NATS connection is needed.
func (c *Config) NatsRequired() bool {
	return c.Events.Enabled || c.Popularity.Enabled
}

// Defaults returns the values used for keys missing from every configuration source.
func Defaults() map[string]any {
	return map[string]any{
		"server.port":                             8080,
		"server.maxHeaderBytes":                   1 << 20,
		"server.timeout.read":                     "15s",
		"server.timeout.write":                    "30s",
		"server.timeout.idle":                     "60s",
		"server.timeout.readHeader":               "5s",
		"database.timeout":                        "5s",
		"database.migrate":                        true,
		"log.level":                               "info",
		"grpc.port":                               "50051",
		"grpc.healthinterval":                     "10s",
		"shutdown.timeout":                        "10s",
		"shutdown.draindelay":                     "2s",
		"pprof.prefix":                            "/debug",
		"telemetry.metrics.enabled":               true,
		"telemetry.metrics.path":                  "/metrics",
		"telemetry.traces.otlphttp.timeout":       "5s",
		"nats.timeout":                            "5s",
		"nats.stream":                             "CATALOG",
		"blob.driver":                             BlobDriverS3,
		"blob.namespace":                          "minicapstone-jeff/minicapstone/john/products",
		"blob.region":                             "us-east-1",
		"blob.timeout":                            "10s",
		"blob.circuitbreaker.consecutivefailures": 5,
		"blob.circuitbreaker.errorratepercent":    50,
		"blob.circuitbreaker.opentimeout":         "30s",
		"blob.circuitbreaker.maxrequests":         1,
		"attachment.maxsize":                      5 << 20,
		"attachment.allowedtypes":                 []string{"image/png", "image/jpeg", "image/gif", "image/webp"},
		"popularity.subscriber.stream":            "CATALOG",
		"popularity.subscriber.subject":           "catalog.products.deleted",
		"popularity.subscriber.consumer":          "popularity",
		"popularity.subscriber.batch":             10,
		"popularity.subscriber.timeout":           "5s",
		"popularity.subscriber.interval":          "1s",
		"popularity.subscriber.workers":           1,
		"popularity.subscriber.ackwait":           "30s",
		"popularity.subscriber.maxdeliver":        5,
	}
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.Database.String())
	b.WriteString(c.GRPC.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())

	b.WriteString("\n--- Blob Store ---\n")
	b.WriteString(fmt.Sprintf("  blob.driver: %s\n", c.Blob.Driver))
	b.WriteString(fmt.Sprintf("  blob.namespace: %s\n", c.Blob.Namespace))
	b.WriteString(fmt.Sprintf("  blob.region: %s\n", c.Blob.Region))
	b.WriteString(fmt.Sprintf("  blob.endpoint: %s\n", c.Blob.Endpoint))
	b.WriteString(fmt.Sprintf("  blob.usepathstyle: %t\n", c.Blob.UsePathStyle))
	b.WriteString(fmt.Sprintf("  blob.accesskey: %s\n", mask(c.Blob.AccessKey)))
	b.WriteString(fmt.Sprintf("  blob.timeout: %s\n", c.Blob.Timeout))
	b.WriteString(c.Blob.CircuitBreaker.String())

	b.WriteString("\n--- Attachments ---\n")
	b.WriteString(fmt.Sprintf("  attachment.maxsize: %d\n", c.Attachment.MaxSize))
	b.WriteString(fmt.Sprintf("  attachment.allowedtypes: %s\n", strings.Join(c.Attachment.AllowedTypes, ",")))
	b.WriteString(fmt.Sprintf("  attachment.cleanupondelete: %t\n", c.Attachment.CleanupOnDelete))

	b.WriteString("\n--- Events ---\n")
	b.WriteString(fmt.Sprintf("  events.enabled: %t\n", c.Events.Enabled))
	b.WriteString(fmt.Sprintf("  popularity.enabled: %t\n", c.Popularity.Enabled))
	if c.NatsRequired() {
		b.WriteString(c.Nats.String())
	}
	if c.Popularity.Enabled {
		b.WriteString(c.Popularity.Subscriber.String())
	}
	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return "<not configured>"
	}
	return "****"
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer,
		&c.Database,
		&c.Log,
		&c.PProf,
		&c.Shutdown,
		&c.GRPC,
		&c.Telemetry,
		&c.Blob,
		&c.Attachment,
	}
	if c.NatsRequired() {
		validators = append(validators, &c.Nats)
	}
	if c.Popularity.Enabled {
		validators = append(validators, &c.Popularity.Subscriber)
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
