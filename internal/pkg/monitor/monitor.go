// Package monitor is the error-monitoring sink: components report failed or
// slow calls and failed side effects as structured events.
package monitor

import (
	"sync"

	"go.uber.org/zap"
)

// Severity of an event
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event categories
const (
	CategoryRPC        = "rpc"
	CategorySideEffect = "side_effect"
	CategoryJob        = "job"
)

// Event is one structured report
type Event struct {
	Category string
	Severity Severity
	Message  string
	Metadata map[string]any
}

// Monitor receives events. Implementations must not block the caller.
type Monitor interface {
	Report(e Event)
}

// ============================================================
// Zap monitor
// ============================================================

type zapMonitor struct {
	log *zap.Logger
}

// NewZap creates a monitor writing events to the logger
func NewZap(log *zap.Logger) Monitor {
	return &zapMonitor{log: log.Named("monitor")}
}

func (m *zapMonitor) Report(e Event) {
	fields := []zap.Field{
		zap.String("category", e.Category),
		zap.String("severity", string(e.Severity)),
	}
	if len(e.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", e.Metadata))
	}

	switch e.Severity {
	case SeverityError:
		m.log.Error(e.Message, fields...)
	case SeverityWarning:
		m.log.Warn(e.Message, fields...)
	default:
		m.log.Info(e.Message, fields...)
	}
}

// Nop discards every event
type Nop struct{}

func (Nop) Report(Event) {}

// ============================================================
// Recorder (tests)
// ============================================================

// Recorder keeps events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of what has been reported
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByCategory filters reported events
func (r *Recorder) ByCategory(category string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}
