package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"namlend/internal/pkg/backoff"
	"namlend/internal/pkg/monitor"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config tunes a gateway
type Config struct {
	Timeout     time.Duration // per attempt
	MaxRetries  int           // attempts after the first
	BackoffBase time.Duration
	SlowCall    time.Duration // calls slower than this are reported
	Breaker     BreakerConfig
}

// DefaultConfig returns 3s timeout, 3 retries from 100ms, 1s slow threshold
func DefaultConfig() Config {
	return Config{
		Timeout:     3 * time.Second,
		MaxRetries:  3,
		BackoffBase: 100 * time.Millisecond,
		SlowCall:    time.Second,
		Breaker:     DefaultBreakerConfig(),
	}
}

// Gateway invokes procedures through retry, timeout and circuit breaking
type Gateway struct {
	exec     Executor
	cfg      Config
	breakers *Registry
	monitor  monitor.Monitor
	log      *zap.Logger
}

// NewGateway creates a gateway with its own breaker registry
func NewGateway(exec Executor, cfg Config, mon monitor.Monitor, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if mon == nil {
		mon = monitor.Nop{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Gateway{
		exec:     exec,
		cfg:      cfg,
		breakers: NewRegistry(cfg.Breaker, log),
		monitor:  mon,
		log:      log.Named("rpc"),
	}
}

// Breakers exposes the gateway's breaker registry
func (g *Gateway) Breakers() *Registry {
	return g.breakers
}

// Call invokes procedure and returns its raw reply. Every returned error is
// an *Error. Business failures are not errors: they come back in the reply.
func (g *Gateway) Call(ctx context.Context, procedure string, params Params) (json.RawMessage, error) {
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff.ExponentialWithJitter(g.cfg.BackoffBase, attempt-1)
			g.log.Debug("retrying rpc call",
				zap.String("procedure", procedure),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := backoff.SleepWithContext(ctx, delay); err != nil {
				break
			}
		}

		raw, err := g.attempt(ctx, procedure, params)
		if err == nil {
			g.reportSlow(procedure, time.Since(start), attempt+1)
			return raw, nil
		}

		if errors.Is(err, ErrCircuitOpen) {
			// keep the failure that tripped the breaker when this call caused it
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		// a timed-out attempt may have committed
		if errors.Is(err, ErrTimeout) && !Idempotent(procedure) {
			break
		}
	}

	g.reportFailure(procedure, lastErr, time.Since(start))
	return nil, lastErr
}

type reply struct {
	raw json.RawMessage
	err error
}

func (g *Gateway) attempt(ctx context.Context, procedure string, params Params) (json.RawMessage, error) {
	out, err := g.breakers.Get(procedure).Execute(func() (interface{}, error) {
		actx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		ch := make(chan reply, 1)
		go func() {
			raw, err := g.exec.Execute(actx, procedure, params)
			ch <- reply{raw: raw, err: err}
		}()

		select {
		case r := <-ch:
			return r.raw, r.err
		case <-actx.Done():
			return nil, actx.Err()
		}
	})

	if err == nil {
		raw, _ := out.(json.RawMessage)
		return raw, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, &Error{Tag: TagCircuitOpen, Procedure: procedure, Err: err}
	case errors.Is(err, context.Canceled):
		return nil, &Error{Tag: TagCancelled, Procedure: procedure, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return nil, &Error{Tag: TagTimeout, Procedure: procedure, Err: err}
	default:
		return nil, &Error{Tag: TagTransport, Procedure: procedure, Err: err}
	}
}

func (g *Gateway) reportFailure(procedure string, err error, elapsed time.Duration) {
	if err == nil {
		return
	}
	severity := monitor.SeverityError
	if errors.Is(err, context.Canceled) {
		severity = monitor.SeverityInfo
	}
	g.monitor.Report(monitor.Event{
		Category: monitor.CategoryRPC,
		Severity: severity,
		Message:  "rpc call failed",
		Metadata: map[string]any{
			"procedure":  procedure,
			"tag":        TagOf(err),
			"error":      err.Error(),
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
}

func (g *Gateway) reportSlow(procedure string, elapsed time.Duration, attempts int) {
	if g.cfg.SlowCall <= 0 || elapsed < g.cfg.SlowCall {
		return
	}
	g.monitor.Report(monitor.Event{
		Category: monitor.CategoryRPC,
		Severity: monitor.SeverityWarning,
		Message:  "slow rpc call",
		Metadata: map[string]any{
			"procedure":  procedure,
			"attempts":   attempts,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
}
