package activation

import (
	"sort"
	"sync"
	"time"

	"fleetd/internal/models"
)

// ─────────────────────────── in-memory store (fallback) ───────────────────────────

type memStore struct {
	mu     sync.RWMutex
	byCode map[string]*models.ActivationCode
	nextID uint
}

func NewMemStore() *memStore {
	return &memStore{byCode: make(map[string]*models.ActivationCode), nextID: 1}
}

func (m *memStore) Create(c *models.ActivationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCode[c.Code]; ok {
		return ErrDuplicateCode
	}
	c.ID = m.nextID
	m.nextID++
	c.CreatedAt = time.Now()
	cp := *c
	m.byCode[c.Code] = &cp
	return nil
}

func (m *memStore) FindByCode(code string) (models.ActivationCode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byCode[code]
	if !ok {
		return models.ActivationCode{}, false
	}
	return *c, true
}

func (m *memStore) Consume(code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byCode[code]
	if !ok {
		return errNotFound
	}
	c.TimesUsed++
	c.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) Deactivate(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byCode {
		if c.ID == id {
			c.IsActive = false
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return nil // идемпотентно: неизвестный id не ошибка
}

func (m *memStore) List() ([]models.ActivationCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ActivationCode, 0, len(m.byCode))
	for _, c := range m.byCode {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) PurgeExpired(olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for code, c := range m.byCode {
		if c.ExpiresAt.Before(olderThan) {
			delete(m.byCode, code)
			n++
		}
	}
	return n, nil
}
