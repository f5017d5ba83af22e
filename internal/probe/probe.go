package probe

import (
	"context"
	"fmt"
	"time"
)

// Kinds accepted by New.
const (
	KindPing    = "ping"
	KindICMP    = "icmp"
	KindICMPRaw = "icmp-raw"
)

// Prober performs a single reachability check.
type Prober interface {
	// Probe reports whether address answered within timeout.
	// It returns false for a non-positive timeout.
	Probe(ctx context.Context, address string, timeout time.Duration) bool
}

// Logger defines the logging interface used by probers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Func adapts a plain function to the Prober interface.
type Func func(ctx context.Context, address string, timeout time.Duration) bool

// Probe calls f.
func (f Func) Probe(ctx context.Context, address string, timeout time.Duration) bool {
	return f(ctx, address, timeout)
}

// New builds the prober named by kind. pingBinary is only used by KindPing;
// an empty value means "ping" resolved via PATH.
func New(kind, pingBinary string, logger Logger) (Prober, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	switch kind {
	case "", KindPing:
		p := NewPingProber(pingBinary)
		p.SetLogger(logger)
		return p, nil
	case KindICMP:
		p := NewICMPProber(false)
		p.SetLogger(logger)
		return p, nil
	case KindICMPRaw:
		p := NewICMPProber(true)
		p.SetLogger(logger)
		return p, nil
	default:
		return nil, fmt.Errorf("unknown prober %q", kind)
	}
}
