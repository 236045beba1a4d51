package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps devices in process memory. It is used when no
// database is configured, so enrollments are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]Device
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[string]Device), now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[d.Name]; ok {
		return ErrExists
	}
	for _, existing := range m.devices {
		if existing.Address == d.Address || existing.PublicKey == d.PublicKey {
			return ErrExists
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = m.now().UTC()
	}
	m.devices[d.Name] = *d
	return nil
}

func (m *MemoryStore) Get(_ context.Context, name string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Device, error) {
	m.mu.RLock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[name]; !ok {
		return ErrNotFound
	}
	delete(m.devices, name)
	return nil
}

func (m *MemoryStore) Addresses(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d.Address)
	}
	return out, nil
}
