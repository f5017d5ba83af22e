package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) (*Registry, *MockRepository) {
	t.Helper()
	repo := NewMockRepository()
	return NewRegistry(repo), repo
}

func addTestDevice(t *testing.T, r *Registry, id, addr string) *Device {
	t.Helper()
	d, err := r.Add(context.Background(), &Device{ID: id, Address: addr, Name: "dev " + id})
	if err != nil {
		t.Fatalf("Add(%s) error = %v", id, err)
	}
	return d
}

func strPtr(s string) *string { return &s }

func TestRegistryAdd(t *testing.T) {
	r, repo := newTestRegistry(t)
	ctx := context.Background()

	d := addTestDevice(t, r, "d1", "10.0.0.1")
	if d.Status != StatusUnknown {
		t.Errorf("Status = %v, want Unknown", d.Status)
	}
	if d.LastCheck != nil {
		t.Errorf("LastCheck = %v, want nil", d.LastCheck)
	}
	if _, err := repo.GetByID(ctx, "d1"); err != nil {
		t.Errorf("device not persisted: %v", err)
	}

	t.Run("duplicate key", func(t *testing.T) {
		_, err := r.Add(ctx, &Device{ID: "d1", Address: "10.0.0.9", Name: "again"})
		if !errors.Is(err, ErrDeviceExists) {
			t.Errorf("Add() duplicate error = %v, want ErrDeviceExists", err)
		}
		got, _ := r.Get(ctx, "d1") //nolint:errcheck // Asserted below
		if got == nil || got.Address != "10.0.0.1" {
			t.Errorf("cached device overwritten by failed add: %+v", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := r.Add(ctx, &Device{ID: "d2", Address: "", Name: "x"})
		if !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("Add() error = %v, want ErrInvalidDevice", err)
		}
	})

	t.Run("store failure not cached", func(t *testing.T) {
		repo.createErr = errors.New("disk full")
		defer func() { repo.createErr = nil }()

		if _, err := r.Add(ctx, &Device{ID: "d3", Address: "10.0.0.3", Name: "x"}); err == nil {
			t.Fatal("Add() error = nil, want store error")
		}
		repo.getErr = ErrDeviceNotFound
		defer func() { repo.getErr = nil }()
		if _, err := r.Get(ctx, "d3"); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("Get() after failed Add error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestRegistryGetReadThrough(t *testing.T) {
	r, repo := newTestRegistry(t)
	ctx := context.Background()

	repo.put(Device{ID: "d1", Address: "10.0.0.1", Name: "stored"})

	d, err := r.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Name != "stored" {
		t.Errorf("Name = %q, want stored", d.Name)
	}

	// Second lookup is served from the cache.
	if _, err := r.Get(ctx, "d1"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gets, _ := repo.calls(); gets != 1 {
		t.Errorf("repository GetByID calls = %d, want 1", gets)
	}

	if _, err := r.Get(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	addTestDevice(t, r, "d1", "10.0.0.1")

	d, _ := r.Get(ctx, "d1") //nolint:errcheck // Added above
	d.Address = "changed"
	d.History.Append(Event{Message: "leak"})

	again, _ := r.Get(ctx, "d1") //nolint:errcheck // Added above
	if again.Address != "10.0.0.1" {
		t.Errorf("cache mutated through returned copy: address = %q", again.Address)
	}
	if again.History.Len() != 0 {
		t.Errorf("cache history mutated through returned copy: len = %d", again.History.Len())
	}
}

func TestRegistryListRefreshesFromStore(t *testing.T) {
	r, repo := newTestRegistry(t)
	ctx := context.Background()

	addTestDevice(t, r, "d1", "10.0.0.1")
	addTestDevice(t, r, "d2", "10.0.0.2")
	if _, err := r.RecordCheck(ctx, "d1", "10.0.0.1", true, time.Now()); err != nil {
		t.Fatalf("RecordCheck() error = %v", err)
	}

	// Out-of-band store changes: d2 renamed, d3 added, d1 untouched.
	repo.put(Device{ID: "d2", Address: "10.0.0.22", Name: "renamed"})
	repo.put(Device{ID: "d3", Address: "10.0.0.3", Name: "new"})

	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(list))
	}

	d2, _ := r.Get(ctx, "d2") //nolint:errcheck // Listed above
	if d2.Address != "10.0.0.22" || d2.Name != "renamed" {
		t.Errorf("d2 not refreshed from store: %+v", d2)
	}

	snap, err := r.History(ctx, "d1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(snap.Events) != 1 {
		t.Errorf("d1 history lost on refresh: %d events", len(snap.Events))
	}
	if snap.Status != StatusOnline {
		t.Errorf("d1 status = %v, want Online", snap.Status)
	}

	// Devices deleted from the store drop out of the cache.
	if err := repo.Delete(ctx, "d3"); err != nil {
		t.Fatalf("repo.Delete() error = %v", err)
	}
	if _, err := r.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
}

func TestRegistryListKeepsNewerCachedStatus(t *testing.T) {
	r, repo := newTestRegistry(t)
	ctx := context.Background()
	addTestDevice(t, r, "d1", "10.0.0.1")

	// The store write for this check fails, so the store lags the cache.
	repo.updateStatusErr = errors.New("locked")
	if _, err := r.RecordCheck(ctx, "d1", "10.0.0.1", false, time.Now()); !errors.Is(err, repo.updateStatusErr) {
		t.Fatalf("RecordCheck() error = %v, want wrapped store error", err)
	}
	repo.updateStatusErr = nil

	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list[0].Status != StatusOffline || list[0].LastCheck == nil {
		t.Errorf("List() status = %v last_check = %v, want cached Offline observation", list[0].Status, list[0].LastCheck)
	}
}

func TestRegistryListError(t *testing.T) {
	r, repo := newTestRegistry(t)
	repo.listErr = errors.New("connection reset")

	if _, err := r.List(context.Background()); !errors.Is(err, repo.listErr) {
		t.Errorf("List() error = %v, want wrapped %v", err, repo.listErr)
	}
}

func TestRegistryUpdate(t *testing.T) {
	r, repo := newTestRegistry(t)
	ctx := context.Background()
	addTestDevice(t, r, "d1", "10.0.0.1")

	tests := []struct {
		name     string
		update   Update
		wantAddr string
		wantName string
		wantDesc string
	}{
		{"address only", Update{Address: strPtr("10.0.0.2")}, "10.0.0.2", "dev d1", ""},
		{"empty address ignored", Update{Address: strPtr("")}, "10.0.0.2", "dev d1", ""},
		{"name and description", Update{Name: strPtr("core"), Description: strPtr("rack 4")}, "10.0.0.2", "core", "rack 4"},
		{"empty name ignored", Update{Name: strPtr("")}, "10.0.0.2", "core", "rack 4"},
		{"description cleared", Update{Description: strPtr("")}, "10.0.0.2", "core", ""},
		{"nothing", Update{}, "10.0.0.2", "core", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := r.Update(ctx, "d1", tt.update)
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if d.Address != tt.wantAddr || d.Name != tt.wantName || d.Description != tt.wantDesc {
				t.Errorf("Update() = {%q %q %q}, want {%q %q %q}",
					d.Address, d.Name, d.Description, tt.wantAddr, tt.wantName, tt.wantDesc)
			}
			stored, _ := repo.GetByID(ctx, "d1") //nolint:errcheck // Exists
			if stored.Address != tt.wantAddr || stored.Name != tt.wantName || stored.Description != tt.wantDesc {
				t.Errorf("stored = {%q %q %q}, want {%q %q %q}",
					stored.Address, stored.Name, stored.Description, tt.wantAddr, tt.wantName, tt.wantDesc)
			}
		})
	}

	t.Run("not found", func(t *testing.T) {
		if _, err := r.Update(ctx, "nope", Update{Name: strPtr("x")}); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("Update(nope) error = %v, want ErrDeviceNotFound", err)
		}
	})

	t.Run("invalid address", func(t *testing.T) {
		if _, err := r.Update(ctx, "d1", Update{Address: strPtr("-f")}); !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("Update() error = %v, want ErrInvalidDevice", err)
		}
	})

	t.Run("store failure keeps cache", func(t *testing.T) {
		repo.updateErr = errors.New("readonly database")
		defer func() { repo.updateErr = nil }()

		if _, err := r.Update(ctx, "d1", Update{Name: strPtr("broken")}); err == nil {
			t.Fatal("Update() error = nil, want store error")
		}
		d, _ := r.Get(ctx, "d1") //nolint:errcheck // Exists
		if d.Name == "broken" {
			t.Error("cache updated despite store failure")
		}
	})
}

func TestRegistryDelete(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	addTestDevice(t, r, "d1", "10.0.0.1")

	if err := r.Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := r.Get(ctx, "d1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrDeviceNotFound", err)
	}
	if err := r.Delete(ctx, "d1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Delete() error = %v, want ErrDeviceNotFound", err)
	}
}

// stallingRepository holds its first GetByID after the store read until
// resume is closed.
type stallingRepository struct {
	*MockRepository
	once   sync.Once
	loaded chan struct{}
	resume chan struct{}
}

func (s *stallingRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	d, err := s.MockRepository.GetByID(ctx, id)
	s.once.Do(func() {
		close(s.loaded)
		<-s.resume
	})
	return d, err
}

func TestRegistryGetOverlappingDelete(t *testing.T) {
	ctx := context.Background()
	repo := &stallingRepository{
		MockRepository: NewMockRepository(),
		loaded:         make(chan struct{}),
		resume:         make(chan struct{}),
	}
	repo.put(Device{ID: "d1", Address: "10.0.0.1", Name: "dev d1"})
	r := NewRegistry(repo)

	got := make(chan error, 1)
	go func() {
		_, err := r.Get(ctx, "d1")
		got <- err
	}()

	<-repo.loaded
	if err := r.Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	close(repo.resume)
	if err := <-got; err != nil {
		t.Fatalf("overlapping Get() error = %v, want nil", err)
	}

	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
	if _, err := r.Get(ctx, "d1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := r.History(ctx, "d1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("History() after Delete error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistryRecordCheckNamesCheckedAddress(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	addTestDevice(t, r, "d1", "10.0.0.1")

	if _, err := r.RecordCheck(ctx, "d1", "10.0.0.1", true, time.Now()); err != nil {
		t.Fatalf("RecordCheck() error = %v", err)
	}
	if _, err := r.Update(ctx, "d1", Update{Address: strPtr("10.0.0.2")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	ev, err := r.RecordCheck(ctx, "d1", "10.0.0.1", false, time.Now())
	if err != nil {
		t.Fatalf("RecordCheck() error = %v", err)
	}
	if !strings.Contains(ev.Message, "10.0.0.1") || strings.Contains(ev.Message, "10.0.0.2") {
		t.Errorf("Message = %q, want the checked address 10.0.0.1", ev.Message)
	}

	ev, err = r.RecordCheck(ctx, "d1", "", true, time.Now())
	if err != nil {
		t.Fatalf("RecordCheck() error = %v", err)
	}
	if !strings.Contains(ev.Message, "10.0.0.2") {
		t.Errorf("Message = %q, want current address 10.0.0.2", ev.Message)
	}
}

func TestRegistryRecordCheck(t *testing.T) {
	r, repo := newTestRegistry(t)
	ctx := context.Background()
	addTestDevice(t, r, "d1", "10.0.0.1")

	t0 := time.Now()
	ev, err := r.RecordCheck(ctx, "d1", "10.0.0.1", true, t0)
	if err != nil {
		t.Fatalf("RecordCheck() error = %v", err)
	}
	if ev.Kind != EventInitial || ev.Status != StatusOnline {
		t.Errorf("first event = %+v, want initial Online", ev)
	}

	ev, err = r.RecordCheck(ctx, "d1", "10.0.0.1", false, t0.Add(time.Second))
	if err != nil {
		t.Fatalf("RecordCheck() error = %v", err)
	}
	if ev.Kind != EventCheck || ev.Status != StatusOffline {
		t.Errorf("second event = %+v, want check Offline", ev)
	}

	snap, err := r.History(ctx, "d1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(snap.Events) != 2 {
		t.Errorf("len(Events) = %d, want 2", len(snap.Events))
	}
	if snap.Status != StatusOffline {
		t.Errorf("Status = %v, want Offline", snap.Status)
	}
	if snap.LastCheck == nil || !snap.LastCheck.Equal(t0.Add(time.Second)) {
		t.Errorf("LastCheck = %v, want %v", snap.LastCheck, t0.Add(time.Second))
	}

	stored, _ := repo.GetByID(ctx, "d1") //nolint:errcheck // Exists
	if stored.Status != StatusOffline {
		t.Errorf("stored Status = %v, want Offline", stored.Status)
	}
	if stored.History.Len() != 0 {
		t.Error("history must not be persisted")
	}

	if _, err := r.RecordCheck(ctx, "missing", "10.0.0.9", true, t0); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("RecordCheck(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistryRecordCheckHistoryBound(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	addTestDevice(t, r, "d1", "10.0.0.1")

	start := time.Now()
	for i := 0; i < HistoryCapacity+25; i++ {
		if _, err := r.RecordCheck(ctx, "d1", "10.0.0.1", i%2 == 0, start.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordCheck(%d) error = %v", i, err)
		}
	}

	snap, _ := r.History(ctx, "d1") //nolint:errcheck // Exists
	if len(snap.Events) != HistoryCapacity {
		t.Errorf("len(Events) = %d, want %d", len(snap.Events), HistoryCapacity)
	}
	if snap.Events[0].Kind != EventCheck {
		t.Error("initial event should have been evicted")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		addTestDevice(t, r, fmt.Sprintf("d%d", i), fmt.Sprintf("10.0.0.%d", i+1))
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("d%d", i)
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = r.RecordCheck(ctx, id, "", j%3 != 0, time.Now()) //nolint:errcheck // Exercising locks
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap, err := r.History(ctx, id)
				if err != nil {
					t.Errorf("History() error = %v", err)
					return
				}
				// Status and last check move together.
				if (snap.Status == StatusUnknown) != (snap.LastCheck == nil) {
					t.Errorf("torn read: status %v, last_check %v", snap.Status, snap.LastCheck)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = r.Update(ctx, id, Update{Description: strPtr(fmt.Sprintf("rev %d", j))}) //nolint:errcheck // Exercising locks
				_, _ = r.List(ctx)                                                             //nolint:errcheck // Exercising locks
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		snap, _ := r.History(ctx, fmt.Sprintf("d%d", i)) //nolint:errcheck // Exists
		if len(snap.Events) != 50 {
			t.Errorf("d%d events = %d, want 50", i, len(snap.Events))
		}
	}
}
