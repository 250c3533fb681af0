package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default circuit breaker settings.
const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval"`
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures == 0 {
		c.MaxFailures = defaultBreakerMaxFailures
	}
	if c.Timeout == 0 {
		c.Timeout = defaultBreakerTimeout
	}
	if c.Interval == 0 {
		c.Interval = defaultBreakerInterval
	}
	return c
}

// Breaker wraps a Provider with circuit breaker protection. Only transient
// failures (see IsRetryable) count toward opening the circuit; a rejected
// request or a cancelled turn says nothing about the engine's health.
type Breaker struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[CompletionResponse]
}

// NewBreaker wraps inner with a circuit breaker.
func NewBreaker(inner Provider, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cb := gobreaker.NewCircuitBreaker[CompletionResponse](gobreaker.Settings{
		Name:        "engine:" + inner.ModelName(),
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
	})

	return &Breaker{inner: inner, breaker: cb}
}

// Complete implements Provider. While the circuit is open it fails fast
// with an error wrapping ErrProviderDown.
func (b *Breaker) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	resp, err := b.breaker.Execute(func() (CompletionResponse, error) {
		return b.inner.Complete(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return CompletionResponse{}, fmt.Errorf("%w: engine %q circuit open: %w", ErrProviderDown, b.inner.ModelName(), err)
	}
	return resp, err
}

// ModelName implements Provider.
func (b *Breaker) ModelName() string { return b.inner.ModelName() }

// State returns the current circuit breaker state for monitoring.
func (b *Breaker) State() gobreaker.State { return b.breaker.State() }

var _ Provider = (*Breaker)(nil)
