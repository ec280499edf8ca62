package quota

import (
	"sort"
	"sync"
	"time"

	"fleetd/internal/models"
)

// ─────────────────────────── in-memory store (fallback) ───────────────────────────

type quotaKey struct {
	contract uint
	category string
}

type memStore struct {
	mu     sync.Mutex
	rows   map[quotaKey]*models.Quota
	nextID uint
}

func NewMemStore() *memStore {
	return &memStore{rows: make(map[quotaKey]*models.Quota), nextID: 1}
}

func (m *memStore) Find(contractID uint, category string) (models.Quota, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[quotaKey{contractID, category}]
	if !ok {
		return models.Quota{}, false
	}
	return *q, true
}

func (m *memStore) FindAll(contractID uint) ([]models.Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Quota
	for k, q := range m.rows {
		if k.contract == contractID {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (m *memStore) Upsert(q *models.Quota) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := quotaKey{q.ContractID, q.Category}
	if ex, ok := m.rows[k]; ok {
		ex.LimitCount = q.LimitCount
		ex.AllowExceed = q.AllowExceed
		ex.AlertThreshold = q.AlertThreshold
		ex.UpdatedAt = time.Now()
		q.ID = ex.ID
		q.Used = ex.Used
		return nil
	}
	q.ID = m.nextID
	m.nextID++
	q.CreatedAt = time.Now()
	cp := *q
	m.rows[k] = &cp
	return nil
}

func (m *memStore) AddUsed(contractID uint, category string, delta int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[quotaKey{contractID, category}]
	if !ok {
		return false, nil
	}
	q.Used += delta
	if q.Used < 0 {
		q.Used = 0
	}
	q.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) SetUsed(contractID uint, category string, used int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.rows[quotaKey{contractID, category}]; ok {
		q.Used = used
		q.UpdatedAt = time.Now()
	}
	return nil
}
