package fleet

import (
	"time"

	"fleetd/internal/models"
)

// QuickStatus — дешёвые поля heartbeat; полный инвентарь идёт
// отдельным update-inventory.
type QuickStatus struct {
	CPUUsage      float64 `json:"cpuUsage"`
	MemoryUsage   float64 `json:"memoryUsage"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
}

// Store — контракт хранилища устройств. Реализации: gorm (internal/repo)
// и in-memory (режим без БД и тесты).
type Store interface {
	FindByUUID(id string) (models.Device, bool)
	FindByToken(token string) (models.Device, bool)
	FindByHostname(clientID uint, hostname string) (models.Device, bool)
	Create(d *models.Device) error
	Save(d *models.Device) error
	List() ([]models.Device, error)

	// Touch — liveness-поля heartbeat'а; last-writer-wins по is_online,
	// чтобы heartbeat выигрывал у конкурентного офлайн-свипа.
	Touch(uuid string, at time.Time, qs QuickStatus, version string) error

	// слот команды (не более одной на устройство)
	SetCommand(uuid, command string, at time.Time) error
	ClearCommand(uuid string) error

	// батчи для периодических задач
	MarkOffline(cutoff time.Time) ([]models.Device, error)
	ClearStaleCommands(cutoff time.Time) (int64, error)

	CountActive(contractID uint) (int64, error)
	LogEvent(deviceUUID, kind, detail string) error
}
