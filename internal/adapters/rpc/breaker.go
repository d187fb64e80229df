package rpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig configures every breaker of a registry
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker
	ConsecutiveFailures uint32
	// Cooldown is how long an open breaker refuses calls
	Cooldown time.Duration
	// HalfOpenRequests are let through once the cooldown ends
	HalfOpenRequests uint32
}

// DefaultBreakerConfig opens after 3 consecutive failures for 30s
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{ConsecutiveFailures: 3, Cooldown: 30 * time.Second, HalfOpenRequests: 1}
}

// Registry owns one breaker per procedure. Each gateway gets its own
// registry so breaker state never leaks between clients or tests.
type Registry struct {
	mu       sync.RWMutex
	cfg      BreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
	log      *zap.Logger
}

// NewRegistry creates an empty breaker registry
func NewRegistry(cfg BreakerConfig, log *zap.Logger) *Registry {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{cfg: cfg, breakers: make(map[string]*gobreaker.CircuitBreaker), log: log}
}

// Get returns the breaker for procedure, creating it on first use
func (r *Registry) Get(procedure string) *gobreaker.CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[procedure]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.breakers[procedure]; ok {
		return cb
	}

	threshold := r.cfg.ConsecutiveFailures
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        procedure,
		MaxRequests: r.cfg.HalfOpenRequests,
		Timeout:     r.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up says nothing about the procedure's health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn("⚡ circuit breaker state changed",
				zap.String("procedure", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	r.breakers[procedure] = cb
	return cb
}

// State reports the state of procedure's breaker; unknown procedures are closed
func (r *Registry) State(procedure string) gobreaker.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cb, ok := r.breakers[procedure]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// States snapshots every known breaker
func (r *Registry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.State().String()
	}
	return out
}
