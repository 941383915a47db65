package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/abgdnv/catalog/pkg/config"
	"github.com/sony/gobreaker/v2"
)

// ErrStoreUnavailable is returned while the circuit breaker rejects calls.
var ErrStoreUnavailable = errors.New("blob store unavailable")

// ResilientStore guards a Store with a per-call timeout and a circuit breaker.
// A missing object is a normal answer and does not count as a failure. Calls are never retried.
type ResilientStore struct {
	next    Store
	cb      *gobreaker.CircuitBreaker[[]byte]
	timeout time.Duration
}

// NewResilientStore wraps next. A zero timeout leaves call deadlines to the caller's context.
func NewResilientStore(next Store, name string, cfg config.CircuitBreakerConfig, timeout time.Duration) *ResilientStore {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.TotalSuccesses + counts.TotalFailures
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(total > cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(total)*100 > float64(cfg.ErrorRatePercent))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrObjectNotFound)
		},
	}
	return &ResilientStore{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker[[]byte](st),
		timeout: timeout,
	}
}

// Unwrap returns the guarded store. Calls made on it bypass the breaker and the timeout.
func (r *ResilientStore) Unwrap() Store {
	return r.next
}

func (r *ResilientStore) Put(ctx context.Context, path, name string, metadata map[string]string, body io.Reader, size int64) error {
	_, err := r.execute(ctx, func(ctx context.Context) ([]byte, error) {
		return nil, r.next.Put(ctx, path, name, metadata, body, size)
	})
	return err
}

func (r *ResilientStore) Get(ctx context.Context, path, name string) ([]byte, error) {
	return r.execute(ctx, func(ctx context.Context) ([]byte, error) {
		return r.next.Get(ctx, path, name)
	})
}

func (r *ResilientStore) Delete(ctx context.Context, path, name string) error {
	_, err := r.execute(ctx, func(ctx context.Context) ([]byte, error) {
		return nil, r.next.Delete(ctx, path, name)
	})
	return err
}

// State reports the circuit breaker state.
func (r *ResilientStore) State() gobreaker.State {
	return r.cb.State()
}

func (r *ResilientStore) execute(ctx context.Context, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	data, err := r.cb.Execute(func() ([]byte, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return data, err
}
