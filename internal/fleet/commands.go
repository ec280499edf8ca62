package fleet

import (
	"errors"
	"fmt"
	"time"

	"fleetd/internal/logs"
	"fleetd/internal/models"
)

// Закрытый набор удалённых команд.
const (
	CommandUninstall   = "uninstall"
	CommandRestart     = "restart"
	CommandUpdate      = "update"
	CommandCollectInfo = "collect_info"
)

func ValidCommand(cmd string) bool {
	switch cmd {
	case CommandUninstall, CommandRestart, CommandUpdate, CommandCollectInfo:
		return true
	}
	return false
}

var (
	ErrCommandPending = errors.New("command already pending")
	ErrInvalidCommand = errors.New("invalid_command")
	ErrNoAgent        = errors.New("no agent installed")
)

// Dispatcher — доставка не более одной команды на устройство.
// Повторов нет: "at most once delivered per Send" — вся гарантия;
// потерянная команда — это новый явный Send оператора.
type Dispatcher struct {
	store Store
	quota QuotaLedger
}

func NewDispatcher(store Store, quota QuotaLedger) *Dispatcher {
	return &Dispatcher{store: store, quota: quota}
}

// Send ставит команду в слот; занятый слот — Conflict, не очередь.
func (d *Dispatcher) Send(deviceUUID, command string) error {
	if !ValidCommand(command) {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
	dev, ok := d.store.FindByUUID(deviceUUID)
	if !ok {
		return ErrNotFound
	}
	if dev.Status != models.DeviceStatusActive || dev.AgentToken == "" {
		return ErrNoAgent
	}
	if dev.PendingCommand != "" {
		return fmt.Errorf("%w: %s", ErrCommandPending, dev.PendingCommand)
	}
	if err := d.store.SetCommand(deviceUUID, command, time.Now()); err != nil {
		return err
	}
	_ = d.store.LogEvent(deviceUUID, EventCommandSent, command)
	return nil
}

// Poll — только чтение; сверку токена с устройством из пути делает
// HTTP-слой (чужой токен не должен читать чужой слот).
func (d *Dispatcher) Poll(deviceUUID string) (string, *time.Time, error) {
	dev, ok := d.store.FindByUUID(deviceUUID)
	if !ok {
		return "", nil, ErrNotFound
	}
	return dev.PendingCommand, dev.PendingCommandAt, nil
}

// Confirm очищает слот безусловно — и при success=false, иначе слот
// заклинит. Неудача НЕ ставит команду на автоматический повтор.
// uninstall с success=true дополнительно гасит учётные данные устройства —
// единственная команда с переходом состояния за пределами слота.
func (d *Dispatcher) Confirm(deviceUUID, command string, success bool, message string) error {
	dev, ok := d.store.FindByUUID(deviceUUID)
	if !ok {
		return ErrNotFound
	}
	if err := d.store.ClearCommand(deviceUUID); err != nil {
		return err
	}
	detail := command
	if !success {
		detail = command + ": failed"
		if message != "" {
			detail += " (" + message + ")"
		}
	}
	_ = d.store.LogEvent(deviceUUID, EventCommandConfirmed, detail)

	teardown := command == CommandUninstall && success && dev.Status == models.DeviceStatusActive

	// подтверждение пришло от живого агента — это тоже liveness-сигнал
	// (кроме успешного uninstall: он уводит устройство в offline)
	if dev.Status == models.DeviceStatusActive && !teardown {
		qs := QuickStatus{CPUUsage: dev.CPUUsage, MemoryUsage: dev.MemoryUsage, UptimeSeconds: dev.UptimeSeconds}
		if err := d.store.Touch(deviceUUID, time.Now(), qs, ""); err != nil {
			logs.Logger.Warnf("liveness touch on confirm %s: %v", deviceUUID, err)
		}
	}

	if teardown {
		dev.PendingCommand = ""
		dev.PendingCommandAt = nil
		dev.AgentToken = ""
		dev.AgentVersion = ""
		dev.IsOnline = false
		dev.Status = models.DeviceStatusRetired
		if err := d.store.Save(&dev); err != nil {
			return err
		}
		if err := d.quota.Decrement(dev.ContractID, quotaCategoryDevice); err != nil {
			logs.Logger.Warnf("quota decrement on uninstall %s: %v", deviceUUID, err)
		}
		_ = d.store.LogEvent(deviceUUID, EventUninstalled, "")
	}
	return nil
}

// ClearStale освобождает слоты старше maxAge без подтверждения — агент,
// который никогда не вернётся, не должен заклинить слот навсегда.
// Слот просто бросается, команда не переотправляется.
func (d *Dispatcher) ClearStale(maxAge time.Duration) (int64, error) {
	n, err := d.store.ClearStaleCommands(time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logs.Logger.Infof("cleared %d stale pending command(s)", n)
	}
	return n, nil
}
