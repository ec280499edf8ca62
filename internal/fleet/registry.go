package fleet

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"fleetd/internal/logs"
	"fleetd/internal/models"

	"github.com/google/uuid"
)

const quotaCategoryDevice = "device"

// Виды событий устройства (журнал models.DeviceEvent).
const (
	EventRegistered       = "registered"
	EventWentOffline      = "went_offline"
	EventCameOnline       = "came_online"
	EventRetired          = "retired"
	EventCommandSent      = "command_sent"
	EventCommandConfirmed = "command_confirmed"
	EventUninstalled      = "uninstalled"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrNotFound      = errors.New("device not found")
)

// ActivationAuthority — проверка/расход активационных кодов.
type ActivationAuthority interface {
	Validate(code string) (valid bool, reason string)
	Consume(code string) error
}

// QuotaLedger — учёт квот контракта.
type QuotaLedger interface {
	Check(contractID uint, category string) (allowed bool, reason string)
	Increment(contractID uint, category string) error
	Decrement(contractID uint, category string) error
}

// Registry владеет идентичностью устройств и их bearer-токенами.
type Registry struct {
	store Store
	codes ActivationAuthority
	quota QuotaLedger
}

func NewRegistry(store Store, codes ActivationAuthority, quota QuotaLedger) *Registry {
	return &Registry{store: store, codes: codes, quota: quota}
}

type RegisterPayload struct {
	ClientID     uint
	ContractID   uint
	Hostname     string
	AgentVersion string
	Inventory    string // сырой JSON-снимок инсталлятора
}

type RegisterResult struct {
	DeviceID     string
	Token        string
	ResourceCode string
	IsNew        bool
}

// ValidateCanRegister — чистая проверка допуска, без побочных эффектов.
func (r *Registry) ValidateCanRegister(clientID, contractID uint) (bool, string) {
	_ = clientID // допуск считается по контракту
	return r.quota.Check(contractID, quotaCategoryDevice)
}

// Register — единственная точка входа агента в парк.
//
// Повторная регистрация той же пары (hostname, clientID) — не новый допуск:
// ротируем токен, обновляем снимок, чистим залежавшуюся команду, квоту не
// трогаем. Новое (или retired) устройство проходит через квоту; код
// активации расходуется только после успеха.
func (r *Registry) Register(code string, p RegisterPayload) (RegisterResult, error) {
	if p.Hostname == "" || p.ClientID == 0 {
		return RegisterResult{}, fmt.Errorf("%w: clientId and hostname are required", ErrValidation)
	}
	valid, reason := r.codes.Validate(code)
	if !valid {
		return RegisterResult{}, fmt.Errorf("%w: activation code %s", ErrUnauthorized, reason)
	}

	token, err := newToken()
	if err != nil {
		return RegisterResult{}, err
	}
	now := time.Now()

	existing, found := r.store.FindByHostname(p.ClientID, p.Hostname)
	if found && existing.Status == models.DeviceStatusActive {
		refresh(&existing, token, p, now)
		if err := r.store.Save(&existing); err != nil {
			return RegisterResult{}, err
		}
		r.consume(code)
		_ = r.store.LogEvent(existing.UUID, EventRegistered, "re-registered, token rotated")
		return RegisterResult{DeviceID: existing.UUID, Token: token, ResourceCode: existing.ResourceCode}, nil
	}

	contractID := p.ContractID
	if found && contractID == 0 {
		contractID = existing.ContractID
	}
	allowed, qreason := r.quota.Check(contractID, quotaCategoryDevice)
	if !allowed {
		// код активации при отказе НЕ расходуется
		return RegisterResult{}, fmt.Errorf("%w: %s", ErrQuotaExceeded, qreason)
	}

	if found {
		// retired возвращается в строй только через регистрацию —
		// и это снова допуск
		existing.Status = models.DeviceStatusActive
		existing.ContractID = contractID
		refresh(&existing, token, p, now)
		if err := r.store.Save(&existing); err != nil {
			return RegisterResult{}, err
		}
		r.incrementQuota(contractID)
		r.consume(code)
		_ = r.store.LogEvent(existing.UUID, EventRegistered, "re-admitted after retirement")
		return RegisterResult{DeviceID: existing.UUID, Token: token, ResourceCode: existing.ResourceCode}, nil
	}

	d := models.Device{
		UUID:            uuid.NewString(),
		ResourceCode:    newResourceCode(),
		AgentToken:      token,
		ClientID:        p.ClientID,
		ContractID:      contractID,
		Hostname:        p.Hostname,
		Status:          models.DeviceStatusActive,
		IsOnline:        true,
		LastHeartbeatAt: &now,
		LastSeenAt:      &now,
		AgentVersion:    p.AgentVersion,
		Inventory:       p.Inventory,
	}
	if err := r.store.Create(&d); err != nil {
		return RegisterResult{}, err
	}
	r.incrementQuota(contractID)
	r.consume(code)
	_ = r.store.LogEvent(d.UUID, EventRegistered, "registered "+p.Hostname)
	return RegisterResult{DeviceID: d.UUID, Token: token, ResourceCode: d.ResourceCode, IsNew: true}, nil
}

func refresh(d *models.Device, token string, p RegisterPayload, now time.Time) {
	d.AgentToken = token
	if p.AgentVersion != "" {
		d.AgentVersion = p.AgentVersion
	}
	if p.Inventory != "" {
		d.Inventory = p.Inventory
	}
	if p.ContractID != 0 {
		d.ContractID = p.ContractID
	}
	d.IsOnline = true
	d.LastHeartbeatAt = &now
	d.LastSeenAt = &now
	d.PendingCommand = ""
	d.PendingCommandAt = nil
}

// Authenticate — поиск устройства по bearer-токену. Неизвестный или
// ротированный токен даёт Unauthorized, не раскрывая существование
// устройства; retired закрыт наглухо.
func (r *Registry) Authenticate(token string) (models.Device, error) {
	if token == "" {
		return models.Device{}, ErrUnauthorized
	}
	d, ok := r.store.FindByToken(token)
	if !ok || d.Status != models.DeviceStatusActive {
		return models.Device{}, ErrUnauthorized
	}
	return d, nil
}

// Heartbeat — дешёвый liveness-пинг; серверное время выигрывает всегда.
// Возврат из offline фиксируется в журнале событий.
func (r *Registry) Heartbeat(deviceUUID string, qs QuickStatus, version string) error {
	d, found := r.store.FindByUUID(deviceUUID)
	if err := r.store.Touch(deviceUUID, time.Now(), qs, version); err != nil {
		return err
	}
	if found && !d.IsOnline {
		_ = r.store.LogEvent(deviceUUID, EventCameOnline, "")
	}
	return nil
}

// UpdateInventory — как heartbeat, плюс полная замена снимка.
func (r *Registry) UpdateInventory(deviceUUID string, snapshot string) error {
	d, ok := r.store.FindByUUID(deviceUUID)
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	wasOffline := !d.IsOnline
	d.Inventory = snapshot
	d.IsOnline = true
	d.LastHeartbeatAt = &now
	d.LastSeenAt = &now
	if err := r.store.Save(&d); err != nil {
		return err
	}
	if wasOffline {
		_ = r.store.LogEvent(deviceUUID, EventCameOnline, "")
	}
	return nil
}

// Retire — явный вывод из строя оператором; идемпотентно.
func (r *Registry) Retire(deviceUUID string) error {
	d, ok := r.store.FindByUUID(deviceUUID)
	if !ok {
		return ErrNotFound
	}
	if d.Status == models.DeviceStatusRetired {
		return nil
	}
	d.Status = models.DeviceStatusRetired
	d.AgentToken = ""
	d.AgentVersion = ""
	d.IsOnline = false
	d.PendingCommand = ""
	d.PendingCommandAt = nil
	if err := r.store.Save(&d); err != nil {
		return err
	}
	if err := r.quota.Decrement(d.ContractID, quotaCategoryDevice); err != nil {
		logs.Logger.Warnf("quota decrement on retire %s: %v", deviceUUID, err)
	}
	_ = r.store.LogEvent(d.UUID, EventRetired, "")
	return nil
}

func (r *Registry) Get(deviceUUID string) (models.Device, bool) {
	return r.store.FindByUUID(deviceUUID)
}

func (r *Registry) List() ([]models.Device, error) {
	return r.store.List()
}

func (r *Registry) consume(code string) {
	if err := r.codes.Consume(code); err != nil {
		logs.Logger.Warnf("activation code consume: %v", err)
	}
}

func (r *Registry) incrementQuota(contractID uint) {
	if err := r.quota.Increment(contractID, quotaCategoryDevice); err != nil {
		logs.Logger.Warnf("quota increment for contract %d: %v", contractID, err)
	}
}

// ActiveCounter — авторитетный источник для quota.Reconcile: живые
// устройства считаем мы, лицензии — внешний контур.
type ActiveCounter struct{ store Store }

func NewActiveCounter(store Store) ActiveCounter { return ActiveCounter{store: store} }

func (c ActiveCounter) Count(contractID uint, category string) (int64, bool, error) {
	if category != quotaCategoryDevice {
		return 0, false, nil
	}
	n, err := c.store.CountActive(contractID)
	return n, true, err
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// короткий публичный код ресурса — печатается в тикетах
func newResourceCode() string {
	return "AGT-" + strings.ToUpper(uuid.NewString()[:8])
}
