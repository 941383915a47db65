package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SubscriberConfig describes a durable JetStream pull consumer and its worker pool.
type SubscriberConfig struct {
	Stream   string `koanf:"stream"`
	Subject  string `koanf:"subject"`
	Consumer string `koanf:"consumer"`
	// Batch is the number of messages a worker fetches at once; Timeout bounds the wait for a batch.
	Batch   int           `koanf:"batch"`
	Timeout time.Duration `koanf:"timeout"`
	// Interval is the pause after a failed fetch.
	Interval time.Duration `koanf:"interval"`
	Workers  int           `koanf:"workers"`
	// AckWait is the redelivery deadline of an unacknowledged message.
	AckWait time.Duration `koanf:"ackwait"`
	// MaxDeliver caps redeliveries of a message that keeps failing; -1 means unlimited.
	MaxDeliver int `koanf:"maxdeliver"`
}

func (c *SubscriberConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- NATS Subscriber ---\n")
	fmt.Fprintf(&b, "  stream: %s\n", c.Stream)
	fmt.Fprintf(&b, "  subject: %s\n", c.Subject)
	fmt.Fprintf(&b, "  consumer: %s\n", c.Consumer)
	fmt.Fprintf(&b, "  batch: %d, timeout: %s, interval: %s\n", c.Batch, c.Timeout, c.Interval)
	fmt.Fprintf(&b, "  workers: %d\n", c.Workers)
	fmt.Fprintf(&b, "  ackwait: %s, maxdeliver: %d\n", c.AckWait, c.MaxDeliver)
	return b.String()
}

// Validate reports every invalid field at once.
func (c *SubscriberConfig) Validate() error {
	var errs []error
	if c.Stream == "" {
		errs = append(errs, errors.New("stream is not configured"))
	}
	if c.Subject == "" {
		errs = append(errs, errors.New("subject is not configured"))
	}
	if c.Consumer == "" {
		errs = append(errs, errors.New("consumer is not configured"))
	}
	if c.Batch <= 0 {
		errs = append(errs, fmt.Errorf("batch must be positive, got %d", c.Batch))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.AckWait <= c.Timeout {
		errs = append(errs, fmt.Errorf("ackwait %s must exceed the fetch timeout %s", c.AckWait, c.Timeout))
	}
	if c.MaxDeliver == 0 || c.MaxDeliver < -1 {
		errs = append(errs, fmt.Errorf("maxdeliver must be positive or -1, got %d", c.MaxDeliver))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("subscriber %q: %w", c.Consumer, err)
	}
	return nil
}
