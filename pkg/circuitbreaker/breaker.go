// Package circuitbreaker guards the cluster management endpoint against
// request storms when the cluster is unreachable.
package circuitbreaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"k8s.io/klog/v2"
)

const (
	// DefaultConsecutiveFailures is the number of failures before the circuit opens
	DefaultConsecutiveFailures = 5

	// DefaultTimeout is how long the circuit stays open before allowing a probe
	DefaultTimeout = 30 * time.Second

	// DefaultInterval is the cyclic period of the closed state that clears failure counts
	DefaultInterval = 1 * time.Minute
)

// ErrEndpointUnavailable is returned while the circuit is open and requests
// are being rejected without touching the network.
var ErrEndpointUnavailable = errors.New("cluster endpoint circuit breaker is open")

// EndpointBreaker wraps calls to a single cluster management endpoint.
// Consecutive transport failures open the circuit so that a dead cluster
// fails callers fast instead of tying them up in connect timeouts.
type EndpointBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// Settings configures an EndpointBreaker. Zero values take the defaults.
type Settings struct {
	// Name identifies the endpoint in logs (typically the MVIP)
	Name string

	// ConsecutiveFailures before the circuit opens
	ConsecutiveFailures uint32

	// Timeout is how long the circuit stays open
	Timeout time.Duration

	// Interval clears failure counts in the closed state
	Interval time.Duration
}

// NewEndpointBreaker creates a breaker for one cluster endpoint.
func NewEndpointBreaker(settings Settings) *EndpointBreaker {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultConsecutiveFailures
	}
	if settings.Timeout == 0 {
		settings.Timeout = DefaultTimeout
	}
	if settings.Interval == 0 {
		settings.Interval = DefaultInterval
	}

	threshold := settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1, // one probe allowed in half-open state
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			klog.Infof("Circuit breaker for endpoint %s: %s -> %s", name, from, to)
		},
	})

	return &EndpointBreaker{cb: cb}
}

// Execute runs fn under circuit breaker protection. While the circuit is
// open it returns ErrEndpointUnavailable without invoking fn.
func (b *EndpointBreaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w (endpoint %s)", ErrEndpointUnavailable, b.cb.Name())
	}

	return err
}

// State returns the current breaker state as a string (for logging).
func (b *EndpointBreaker) State() string {
	return b.cb.State().String()
}
