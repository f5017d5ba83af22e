package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/netwatch-core/internal/device"
)

// memRepository is an in-memory device.Repository for supervisor tests.
type memRepository struct {
	mu              sync.Mutex
	devices         map[string]device.Device
	updateStatusErr error
}

func newMemRepository() *memRepository {
	return &memRepository{devices: make(map[string]device.Device)}
}

func (m *memRepository) GetByID(_ context.Context, id string) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *memRepository) List(_ context.Context) ([]device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]device.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepository) Create(_ context.Context, d *device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; ok {
		return device.ErrDeviceExists
	}
	stored := *d.DeepCopy()
	stored.History = device.History{}
	m.devices[d.ID] = stored
	return nil
}

func (m *memRepository) Update(_ context.Context, d *device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.devices[d.ID]
	if !ok {
		return device.ErrDeviceNotFound
	}
	stored.Address, stored.Name, stored.Description = d.Address, d.Name, d.Description
	m.devices[d.ID] = stored
	return nil
}

func (m *memRepository) UpdateStatus(_ context.Context, id string, status device.Status, lastCheck time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	stored, ok := m.devices[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	stored.Status = status
	stored.LastCheck = &lastCheck
	m.devices[id] = stored
	return nil
}

func (m *memRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return device.ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *memRepository) setUpdateStatusErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateStatusErr = err
}

// fakeProber records every probed address and answers with a fixed result.
type fakeProber struct {
	mu        sync.Mutex
	reachable bool
	addresses []string
	// block, when set, makes Probe wait this long regardless of ctx.
	block time.Duration
}

func (p *fakeProber) Probe(_ context.Context, address string, _ time.Duration) bool {
	p.mu.Lock()
	p.addresses = append(p.addresses, address)
	reachable, block := p.reachable, p.block
	p.mu.Unlock()

	if block > 0 {
		time.Sleep(block)
	}
	return reachable
}

func (p *fakeProber) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.addresses)
}

func (p *fakeProber) probed(address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.addresses {
		if a == address {
			return true
		}
	}
	return false
}

// recordingObserver collects every check it is given.
type recordingObserver struct {
	mu     sync.Mutex
	checks []Check
}

func (o *recordingObserver) ObserveCheck(_ context.Context, c Check) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checks = append(o.checks, c)
	return nil
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.checks)
}

type fixture struct {
	repo     *memRepository
	registry *device.Registry
	prober   *fakeProber
	sup      *Supervisor
}

func newFixture(t *testing.T, opts Options, ids ...string) *fixture {
	t.Helper()

	repo := newMemRepository()
	registry := device.NewRegistry(repo)
	for i, id := range ids {
		_, err := registry.Add(context.Background(), &device.Device{
			ID:      id,
			Address: fmt.Sprintf("10.0.0.%d", i+1),
			Name:    "device " + id,
		})
		if err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}

	prober := &fakeProber{reachable: true}
	sup := New(registry, prober, opts)
	t.Cleanup(func() { sup.Close() }) //nolint:errcheck // Test cleanup

	return &fixture{repo: repo, registry: registry, prober: prober, sup: sup}
}

func (f *fixture) events(t *testing.T, id string) int {
	t.Helper()
	snap, err := f.registry.History(context.Background(), id)
	if err != nil {
		t.Fatalf("History(%s) error = %v", id, err)
	}
	return len(snap.Events)
}

// tracked reports whether the supervisor still remembers starting id.
func (f *fixture) tracked(id string) bool {
	f.sup.mu.Lock()
	defer f.sup.mu.Unlock()
	_, ok := f.sup.monitored[id]
	return ok
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
