package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// DefaultMaxOutput caps captured output when Config.MaxOutput is zero.
const DefaultMaxOutput = 4096

// waitDelay bounds how long Wait keeps reading output after the process
// has been killed.
const waitDelay = 250 * time.Millisecond

// ErrTimeout is returned when a command is killed for exceeding its timeout.
var ErrTimeout = errors.New("process: timed out")

// Config describes one command invocation.
type Config struct {
	// Name is a human-readable identifier used in errors.
	Name string

	// Binary is the executable name or path. Names are resolved via PATH.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// Timeout is the hard ceiling on run time. Zero means the caller's
	// context is the only limit.
	Timeout time.Duration

	// MaxOutput caps the combined stdout and stderr kept in Result.
	// Zero means DefaultMaxOutput.
	MaxOutput int
}

// Result is the outcome of a finished command.
type Result struct {
	// Output holds combined stdout and stderr, truncated to MaxOutput.
	Output []byte

	// ExitCode is the process exit status, or -1 if it did not exit normally.
	ExitCode int

	Duration time.Duration
}

// Run starts the command, waits for it, and returns its output.
//
// A non-zero exit returns the Result together with an error wrapping
// *exec.ExitError. A command killed by its timeout returns ErrTimeout; one
// killed because ctx ended returns ctx.Err().
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.Binary == "" {
		return Result{ExitCode: -1}, fmt.Errorf("process %s: no binary configured", cfg.Name)
	}

	runCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	limit := cfg.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	out := &limitedBuffer{limit: limit}

	cmd := exec.CommandContext(runCtx, cfg.Binary, cfg.Args...) //nolint:gosec // Binary and args come from validated config
	cmd.Stdout = out
	cmd.Stderr = out
	if cfg.Env != nil {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Output:   out.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, ctx.Err()
	case runCtx.Err() != nil:
		return res, fmt.Errorf("%w: %s after %s", ErrTimeout, cfg.Name, cfg.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, fmt.Errorf("%s exited with status %d: %w", cfg.Name, res.ExitCode, err)
	}
	return res, fmt.Errorf("running %s: %w", cfg.Name, err)
}

// limitedBuffer keeps the first limit bytes written and discards the rest
// without failing the writer.
type limitedBuffer struct {
	buf   []byte
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf
}
