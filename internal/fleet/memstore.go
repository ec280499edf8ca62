package fleet

import (
	"errors"
	"sync"
	"time"

	"fleetd/internal/models"
)

// ─────────────────────────── in-memory store (fallback) ───────────────────────────

type memStore struct {
	mu     sync.RWMutex
	byUUID map[string]*models.Device
	events []models.DeviceEvent
	nextID uint
}

func NewMemStore() *memStore {
	return &memStore{byUUID: make(map[string]*models.Device), nextID: 1}
}

var errMemNotFound = errors.New("not found")

func (m *memStore) FindByUUID(id string) (models.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.byUUID[id]
	if !ok {
		return models.Device{}, false
	}
	return *d, true
}

func (m *memStore) FindByToken(token string) (models.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.byUUID {
		if d.AgentToken != "" && d.AgentToken == token {
			return *d, true
		}
	}
	return models.Device{}, false
}

func (m *memStore) FindByHostname(clientID uint, hostname string) (models.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.byUUID {
		if d.ClientID == clientID && d.Hostname == hostname {
			return *d, true
		}
	}
	return models.Device{}, false
}

func (m *memStore) Create(d *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.nextID
	m.nextID++
	d.CreatedAt = time.Now()
	cp := *d
	m.byUUID[d.UUID] = &cp
	return nil
}

func (m *memStore) Save(d *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUUID[d.UUID]; !ok {
		return errMemNotFound
	}
	d.UpdatedAt = time.Now()
	cp := *d
	m.byUUID[d.UUID] = &cp
	return nil
}

func (m *memStore) List() ([]models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Device, 0, len(m.byUUID))
	for _, d := range m.byUUID {
		out = append(out, *d)
	}
	return out, nil
}

func (m *memStore) Touch(uuid string, at time.Time, qs QuickStatus, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byUUID[uuid]
	if !ok || d.Status != models.DeviceStatusActive {
		return errMemNotFound
	}
	t := at
	d.IsOnline = true
	d.LastHeartbeatAt = &t
	d.LastSeenAt = &t
	d.CPUUsage = qs.CPUUsage
	d.MemoryUsage = qs.MemoryUsage
	d.UptimeSeconds = qs.UptimeSeconds
	if version != "" {
		d.AgentVersion = version
	}
	d.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) SetCommand(uuid, command string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byUUID[uuid]
	if !ok {
		return errMemNotFound
	}
	t := at
	d.PendingCommand = command
	d.PendingCommandAt = &t
	d.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) ClearCommand(uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byUUID[uuid]
	if !ok {
		return errMemNotFound
	}
	d.PendingCommand = ""
	d.PendingCommandAt = nil
	d.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) MarkOffline(cutoff time.Time) ([]models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var flipped []models.Device
	for _, d := range m.byUUID {
		if !d.IsOnline || d.Status != models.DeviceStatusActive {
			continue
		}
		if d.LastHeartbeatAt == nil || d.LastHeartbeatAt.Before(cutoff) {
			d.IsOnline = false
			d.UpdatedAt = time.Now()
			flipped = append(flipped, *d)
		}
	}
	return flipped, nil
}

func (m *memStore) ClearStaleCommands(cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.byUUID {
		if d.PendingCommand != "" && d.PendingCommandAt != nil && d.PendingCommandAt.Before(cutoff) {
			d.PendingCommand = ""
			d.PendingCommandAt = nil
			d.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountActive(contractID uint) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, d := range m.byUUID {
		if d.ContractID == contractID && d.Status == models.DeviceStatusActive {
			n++
		}
	}
	return n, nil
}

func (m *memStore) LogEvent(deviceUUID, kind, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, models.DeviceEvent{
		DeviceUUID: deviceUUID,
		Kind:       kind,
		Detail:     detail,
	})
	return nil
}

// Events — снимок журнала (для тестов).
func (m *memStore) Events() []models.DeviceEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.DeviceEvent, len(m.events))
	copy(out, m.events)
	return out
}
