package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResilienceConfig tunes the resilient transport
type ResilienceConfig struct {
	Name string
	// RatePerSecond bounds outgoing sends; zero disables limiting
	RatePerSecond float64
	Burst         int
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration
}

// DefaultResilienceConfig returns limits suited to the chat API quotas
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Name:             "notification-transport",
		RatePerSecond:    5,
		Burst:            10,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// ResilientTransport rate-limits sends and stops calling a failing transport
// until its breaker half-opens
type ResilientTransport struct {
	next    port.NotificationTransport
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ port.NotificationTransport = (*ResilientTransport)(nil)

// NewResilientTransport wraps next
func NewResilientTransport(next port.NotificationTransport, cfg ResilienceConfig, logger *zap.Logger) *ResilientTransport {
	if cfg.Name == "" {
		cfg.Name = "notification-transport"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	t := &ResilientTransport{
		next:   next,
		logger: logger,
	}

	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	threshold := cfg.FailureThreshold
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Notification breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return t
}

// Send waits for a rate token, then delivers through the breaker
func (t *ResilientTransport) Send(ctx context.Context, contact, message string) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.next.Send(ctx, contact, message)
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", contact, err)
	}
	return nil
}

// State returns the breaker state, for health reporting
func (t *ResilientTransport) State() gobreaker.State {
	return t.breaker.State()
}
