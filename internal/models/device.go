package models

import (
	"time"

	"gorm.io/gorm"
)

// Статусы жизненного цикла устройства.
const (
	DeviceStatusActive  = "active"
	DeviceStatusRetired = "retired"
)

// Device — зарегистрированный агент (удалённая машина клиента).
// Слот команды встроен прямо в строку: не более одной отложенной
// команды на устройство.
type Device struct {
	gorm.Model
	UUID         string `gorm:"column:uuid;uniqueIndex;size:36"`
	ResourceCode string `gorm:"column:resource_code;index;size:16"`
	AgentToken   string `gorm:"column:agent_token;index;size:64"`
	ClientID     uint   `gorm:"index:idx_devices_client_host,priority:1"`
	ContractID   uint   `gorm:"index"`
	Hostname     string `gorm:"index:idx_devices_client_host,priority:2;size:255"`
	Status       string `gorm:"size:16;default:active"`

	IsOnline        bool       `gorm:"column:is_online;index"`
	LastHeartbeatAt *time.Time `gorm:"column:last_heartbeat_at"`
	LastSeenAt      *time.Time `gorm:"column:last_seen_at"`

	PendingCommand   string     `gorm:"column:pending_command;size:32"`
	PendingCommandAt *time.Time `gorm:"column:pending_command_at"`

	// быстрый статус из heartbeat
	AgentVersion  string  `gorm:"size:32"`
	CPUUsage      float64 `gorm:"column:cpu_usage"`
	MemoryUsage   float64 `gorm:"column:memory_usage"`
	UptimeSeconds int64

	// полный снимок инвентаря (JSON), заменяется целиком при update-inventory
	Inventory string `gorm:"type:text"`
}

// DeviceEvent — журнал событий устройства (went_offline, command_sent и т.д.).
type DeviceEvent struct {
	gorm.Model
	DeviceUUID string `gorm:"index;size:36"`
	Kind       string `gorm:"size:32"`
	Detail     string `gorm:"size:255"`
}
