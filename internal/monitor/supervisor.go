package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/netwatch-core/internal/device"
	"github.com/nerrad567/netwatch-core/internal/probe"
)

// Defaults applied by New when Options leave a field zero.
const (
	DefaultInterval     = 5 * time.Second
	DefaultTimeout      = 500 * time.Millisecond
	DefaultStopTimeout  = 2 * time.Second
	DefaultStoreTimeout = 5 * time.Second
)

// SessionStatus is the monitoring state of one device.
type SessionStatus string

const (
	SessionStopped SessionStatus = "stopped"
	SessionRunning SessionStatus = "running"
)

// Registry is the subset of the device registry a supervisor needs.
type Registry interface {
	Get(ctx context.Context, id string) (*device.Device, error)
	List(ctx context.Context) ([]device.Device, error)
	RecordCheck(ctx context.Context, id, address string, reachable bool, now time.Time) (device.Event, error)
	Delete(ctx context.Context, id string) error
}

// Logger defines the logging interface used by the supervisor.
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

// Options configures a Supervisor. Zero values take the package defaults.
type Options struct {
	// Interval is the pause between the end of one check and the next.
	Interval time.Duration

	// Timeout is passed to the prober for every check.
	Timeout time.Duration

	// StopTimeout bounds how long Stop waits for a session to exit.
	StopTimeout time.Duration

	// StoreTimeout bounds the write that records a check.
	StoreTimeout time.Duration
}

// session is one running polling loop.
type session struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns the polling sessions, at most one per device.
type Supervisor struct {
	registry Registry
	prober   probe.Prober
	opts     Options
	logger   Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	// monitored holds every id started and not yet deleted, so Stop on an
	// idle device needs no store lookup.
	monitored map[string]struct{}
	observers []Observer
	closed    bool

	commands     chan Command
	commandsOnce sync.Once

	// active counts polling goroutines that have not yet returned.
	active atomic.Int32
}

// New creates a supervisor. No sessions run until Start or StartAll.
func New(registry Registry, prober probe.Prober, opts Options) *Supervisor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		registry:   registry,
		prober:     prober,
		opts:       opts,
		logger:     noopLogger{},
		baseCtx:    ctx,
		baseCancel: cancel,
		sessions:   make(map[string]*session),
		monitored:  make(map[string]struct{}),
		commands:   make(chan Command, commandQueueSize),
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// AddObserver registers o to receive every recorded check.
// Observers added after sessions have started see subsequent checks only.
func (s *Supervisor) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Start begins monitoring a device. Starting a device that is already
// monitored is a no-op. Returns device.ErrDeviceNotFound for unknown IDs.
func (s *Supervisor) Start(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrSupervisorClosed
	}
	if _, err := s.registry.Get(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSupervisorClosed
	}
	if _, ok := s.sessions[id]; ok {
		return nil
	}

	loopCtx, cancel := context.WithCancel(s.baseCtx)
	sess := &session{id: id, cancel: cancel, done: make(chan struct{})}
	s.sessions[id] = sess
	s.monitored[id] = struct{}{}

	s.active.Add(1)
	go s.run(loopCtx, sess)

	s.logger.Info("monitoring started", "device_id", id, "interval", s.opts.Interval)
	return nil
}

// Stop ends monitoring of a device and waits up to StopTimeout for the
// session to exit. Stopping a device that is not monitored is a no-op;
// device.ErrDeviceNotFound is returned only for IDs that were never
// monitored and are not in the registry.
func (s *Supervisor) Stop(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	_, seen := s.monitored[id]
	s.mu.Unlock()

	if !ok {
		if seen {
			return nil
		}
		if _, err := s.registry.Get(ctx, id); err != nil {
			return err
		}
		return nil
	}

	s.halt(sess)
	return nil
}

// halt cancels a session and waits for its loop with a deadline.
func (s *Supervisor) halt(sess *session) {
	sess.cancel()

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()

	select {
	case <-sess.done:
		s.logger.Info("monitoring stopped", "device_id", sess.id)
	case <-timer.C:
		s.logger.Warn("monitoring session did not exit in time",
			"device_id", sess.id,
			"timeout", s.opts.StopTimeout,
		)
	}
}

// StartAll starts monitoring every device in the registry. Failures are
// logged per device and never returned.
func (s *Supervisor) StartAll(ctx context.Context) {
	devices, err := s.registry.List(ctx)
	if err != nil {
		s.logger.Error("listing devices for start all", "error", err)
		return
	}

	started := 0
	for i := range devices {
		if err := s.Start(ctx, devices[i].ID); err != nil {
			s.logger.Warn("starting monitoring failed", "device_id", devices[i].ID, "error", err)
			continue
		}
		started++
	}
	s.logger.Info("monitoring started for all devices", "devices", len(devices), "running", started)
}

// StopAll stops every running session concurrently and waits for all of
// them, each bounded by StopTimeout.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, sess := range sessions {
		g.Go(func() error {
			s.halt(sess)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // halt never fails

	if len(sessions) > 0 {
		s.logger.Info("monitoring stopped for all devices", "stopped", len(sessions))
	}
}

// Delete stops monitoring the device, then removes it from the registry.
func (s *Supervisor) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	delete(s.monitored, id)
	s.mu.Unlock()

	if ok {
		s.halt(sess)
	}
	return s.registry.Delete(ctx, id)
}

// Status reports whether a device is being monitored.
func (s *Supervisor) Status(id string) SessionStatus {
	if s.IsRunning(id) {
		return SessionRunning
	}
	return SessionStopped
}

// IsRunning reports whether a session exists for the device.
func (s *Supervisor) IsRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// Running returns the IDs of monitored devices, sorted.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Active returns the number of polling goroutines still running, including
// sessions that were stopped but have not yet exited.
func (s *Supervisor) Active() int {
	return int(s.active.Load())
}

// Close stops every session and rejects further Start calls.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.StopAll()
	s.baseCancel()
	return nil
}

func (s *Supervisor) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// run is the polling loop of one session.
func (s *Supervisor) run(ctx context.Context, sess *session) {
	defer close(sess.done)
	defer s.active.Add(-1)
	defer s.release(sess)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !s.tick(ctx, sess.id) {
			return
		}
		timer.Reset(s.opts.Interval)
	}
}

// release drops the session from the map if it ended on its own.
func (s *Supervisor) release(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.id] == sess {
		delete(s.sessions, sess.id)
	}
}

// forget drops a vanished device from the monitored set.
func (s *Supervisor) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitored, id)
}

// tick performs one check. It returns false when the session should end.
func (s *Supervisor) tick(ctx context.Context, id string) bool {
	d, err := s.registry.Get(ctx, id)
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		s.logger.Info("device no longer exists, ending monitoring", "device_id", id)
		s.forget(id)
		return false
	case err != nil:
		if ctx.Err() != nil {
			return false
		}
		s.logger.Error("loading device for check", "device_id", id, "error", err)
		return true
	}

	reachable := s.prober.Probe(ctx, d.Address, s.opts.Timeout)
	if ctx.Err() != nil {
		// Stopped mid-probe; the result is not recorded.
		return false
	}
	now := time.Now()

	// The write completes even if the session is cancelled meanwhile.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()

	event, err := s.registry.RecordCheck(storeCtx, id, d.Address, reachable, now)
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		s.logger.Info("device removed during check, ending monitoring", "device_id", id)
		s.forget(id)
		return false
	case err != nil:
		s.logger.Error("persisting check failed", "device_id", id, "error", err)
	}

	s.logger.Debug("device checked",
		"device_id", id,
		"address", d.Address,
		"reachable", reachable,
		"status", event.Status.String(),
	)

	s.notify(storeCtx, Check{
		DeviceID:  id,
		Address:   d.Address,
		Reachable: reachable,
		Event:     event,
		Time:      now,
	})
	return true
}

func (s *Supervisor) notify(ctx context.Context, c Check) {
	s.mu.Lock()
	observers := s.observers
	s.mu.Unlock()

	for _, o := range observers {
		if err := o.ObserveCheck(ctx, c); err != nil {
			s.logger.Warn("check observer failed", "device_id", c.DeviceID, "error", err)
		}
	}
}
