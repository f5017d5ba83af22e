// Package process runs short-lived external commands under a hard deadline.
//
// Each command starts in its own process group. When the deadline passes or
// the caller's context is cancelled, the whole group is killed, so helpers
// spawned by the command cannot outlive it.
//
// Example usage:
//
//	res, err := process.Run(ctx, process.Config{
//	    Name:    "ping",
//	    Binary:  "ping",
//	    Args:    []string{"-c", "1", "-W", "1", "10.0.0.1"},
//	    Timeout: 2 * time.Second,
//	})
//	if errors.Is(err, process.ErrTimeout) {
//	    // killed
//	}
package process
