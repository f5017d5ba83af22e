package device

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	// For testing error paths
	getErr          error
	listErr         error
	createErr       error
	updateErr       error
	updateStatusErr error
	deleteErr       error

	getCalls          int
	updateStatusCalls int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices: make(map[string]*Device),
	}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	if d, ok := m.devices[id]; ok {
		return d.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d.DeepCopy())
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.devices[d.ID]; ok {
		return ErrDeviceExists
	}
	stored := d.DeepCopy()
	stored.History = History{}
	m.devices[d.ID] = stored
	return nil
}

func (m *MockRepository) Update(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.devices[d.ID]
	if !ok {
		return ErrDeviceNotFound
	}
	stored.Address = d.Address
	stored.Name = d.Name
	stored.Description = d.Description
	return nil
}

func (m *MockRepository) UpdateStatus(_ context.Context, id string, status Status, lastCheck time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateStatusCalls++
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	stored, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	stored.Status = status
	stored.LastCheck = &lastCheck
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

// put seeds the store directly, bypassing the registry cache.
func (m *MockRepository) put(d Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d.DeepCopy()
}

func (m *MockRepository) calls() (get, updateStatus int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls, m.updateStatusCalls
}
