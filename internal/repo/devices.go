package repo

import (
	"time"

	"fleetd/internal/fleet"
	"fleetd/internal/models"

	"gorm.io/gorm"
)

// DeviceStore — gorm-реализация fleet.Store.
type DeviceStore struct {
	db *gorm.DB
}

func NewDeviceStore(db *gorm.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

func (s *DeviceStore) FindByUUID(id string) (models.Device, bool) {
	var m models.Device
	if err := s.db.Where("uuid = ?", id).First(&m).Error; err != nil {
		return models.Device{}, false
	}
	return m, true
}

func (s *DeviceStore) FindByToken(token string) (models.Device, bool) {
	if token == "" {
		return models.Device{}, false
	}
	var m models.Device
	if err := s.db.Where("agent_token = ?", token).First(&m).Error; err != nil {
		return models.Device{}, false
	}
	return m, true
}

func (s *DeviceStore) FindByHostname(clientID uint, hostname string) (models.Device, bool) {
	var m models.Device
	err := s.db.Where("client_id = ? AND hostname = ?", clientID, hostname).First(&m).Error
	if err != nil {
		return models.Device{}, false
	}
	return m, true
}

func (s *DeviceStore) Create(d *models.Device) error {
	return s.db.Create(d).Error
}

func (s *DeviceStore) Save(d *models.Device) error {
	return s.db.Save(d).Error
}

func (s *DeviceStore) List() ([]models.Device, error) {
	var out []models.Device
	err := s.db.Order("id").Find(&out).Error
	return out, err
}

// Touch — точечный апдейт liveness-полей, не всей строки: полный Save
// затирал бы конкурентно выставленный слот команды.
func (s *DeviceStore) Touch(uuid string, at time.Time, qs fleet.QuickStatus, version string) error {
	fields := map[string]any{
		"is_online":         true,
		"last_heartbeat_at": at,
		"last_seen_at":      at,
		"cpu_usage":         qs.CPUUsage,
		"memory_usage":      qs.MemoryUsage,
		"uptime_seconds":    qs.UptimeSeconds,
	}
	if version != "" {
		fields["agent_version"] = version
	}
	tx := s.db.Model(&models.Device{}).
		Where("uuid = ? AND status = ?", uuid, models.DeviceStatusActive).
		Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *DeviceStore) SetCommand(uuid, command string, at time.Time) error {
	return s.db.Model(&models.Device{}).
		Where("uuid = ?", uuid).
		Updates(map[string]any{
			"pending_command":    command,
			"pending_command_at": at,
		}).Error
}

func (s *DeviceStore) ClearCommand(uuid string) error {
	return s.db.Model(&models.Device{}).
		Where("uuid = ?", uuid).
		Updates(map[string]any{
			"pending_command":    "",
			"pending_command_at": nil,
		}).Error
}

// MarkOffline — выборка и батч-флип в одной транзакции; heartbeat,
// пришедший между ними, проиграет только на один sweep-период.
func (s *DeviceStore) MarkOffline(cutoff time.Time) ([]models.Device, error) {
	var flipped []models.Device
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("is_online = ? AND status = ? AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)",
				true, models.DeviceStatusActive, cutoff).
			Find(&flipped).Error; err != nil {
			return err
		}
		if len(flipped) == 0 {
			return nil
		}
		ids := make([]string, 0, len(flipped))
		for _, d := range flipped {
			ids = append(ids, d.UUID)
		}
		return tx.Model(&models.Device{}).
			Where("uuid IN ?", ids).
			Update("is_online", false).Error
	})
	return flipped, err
}

func (s *DeviceStore) ClearStaleCommands(cutoff time.Time) (int64, error) {
	tx := s.db.Model(&models.Device{}).
		Where("pending_command <> '' AND pending_command_at < ?", cutoff).
		Updates(map[string]any{
			"pending_command":    "",
			"pending_command_at": nil,
		})
	return tx.RowsAffected, tx.Error
}

func (s *DeviceStore) CountActive(contractID uint) (int64, error) {
	var n int64
	err := s.db.Model(&models.Device{}).
		Where("contract_id = ? AND status = ?", contractID, models.DeviceStatusActive).
		Count(&n).Error
	return n, err
}

func (s *DeviceStore) LogEvent(deviceUUID, kind, detail string) error {
	return s.db.Create(&models.DeviceEvent{
		DeviceUUID: deviceUUID,
		Kind:       kind,
		Detail:     detail,
	}).Error
}
