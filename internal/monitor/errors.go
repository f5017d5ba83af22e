package monitor

import "errors"

// ErrSupervisorClosed is returned by Start after Close has been called.
var ErrSupervisorClosed = errors.New("monitor: supervisor closed")
