package fleet

import (
	"time"

	"fleetd/internal/logs"
)

// Monitor переводит замолчавшие устройства в offline. Это единственный
// источник перехода online → offline: "goodbye"-сигнала у агентов нет.
type Monitor struct{ store Store }

func NewMonitor(store Store) *Monitor { return &Monitor{store: store} }

// SweepOffline — один проход: выбрать is_online ∧ last_heartbeat_at < now-timeout,
// погасить одним батчем, по одному событию на устройство. Повторный запуск
// подряд безопасен — выборка каждый раз перечитывает текущее состояние.
func (m *Monitor) SweepOffline(timeout time.Duration) (int, error) {
	flipped, err := m.store.MarkOffline(time.Now().Add(-timeout))
	if err != nil {
		return 0, err
	}
	for _, d := range flipped {
		_ = m.store.LogEvent(d.UUID, EventWentOffline, "no heartbeat for "+timeout.String())
		logs.Logger.WithFields(map[string]interface{}{
			"device":   d.UUID,
			"hostname": d.Hostname,
		}).Warn("device went offline")
	}
	return len(flipped), nil
}
