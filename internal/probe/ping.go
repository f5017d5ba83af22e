package probe

import (
	"bytes"
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/nerrad567/netwatch-core/internal/process"
)

// DefaultPingBinary is used when no binary is configured.
const DefaultPingBinary = "ping"

// PingProber probes by running the system ping command once.
//
// A probe succeeds only if ping exits with status 0 and its output carries a
// TTL marker. The process is killed if it runs longer than twice the probe
// timeout.
type PingProber struct {
	binary string
	goos   string
	logger Logger
}

// NewPingProber creates a prober that runs binary, or DefaultPingBinary if
// binary is empty.
func NewPingProber(binary string) *PingProber {
	if binary == "" {
		binary = DefaultPingBinary
	}
	return &PingProber{
		binary: binary,
		goos:   runtime.GOOS,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the prober.
func (p *PingProber) SetLogger(logger Logger) {
	p.logger = logger
}

// Probe implements Prober.
func (p *PingProber) Probe(ctx context.Context, address string, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}

	res, err := process.Run(ctx, process.Config{
		Name:    "ping",
		Binary:  p.binary,
		Args:    pingArgs(p.goos, address, timeout),
		Timeout: 2 * timeout,
	})
	if err != nil {
		p.logger.Debug("ping failed",
			"address", address,
			"exit_code", res.ExitCode,
			"duration", res.Duration,
			"error", err,
		)
		return false
	}
	return hasTTL(res.Output)
}

// pingArgs builds a single-echo ping command line for the target OS.
// The address is always last, after every flag.
func pingArgs(goos, address string, timeout time.Duration) []string {
	switch goos {
	case "windows":
		// -w takes milliseconds.
		return []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), address}
	case "darwin", "freebsd", "netbsd", "openbsd":
		// BSD ping: -W is the reply wait in milliseconds.
		return []string{"-c", "1", "-W", strconv.FormatInt(timeout.Milliseconds(), 10), address}
	default:
		// iputils ping: -W is seconds and accepts fractions.
		return []string{"-c", "1", "-W", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64), address}
	}
}

// hasTTL reports whether ping output contains an echo reply line.
func hasTTL(output []byte) bool {
	return bytes.Contains(output, []byte("TTL=")) || bytes.Contains(output, []byte("ttl="))
}
