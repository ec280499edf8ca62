package quota

import (
	"fleetd/internal/logs"
	"fleetd/internal/models"
)

// CategoryDevice — учёт зарегистрированных агентов; лицензии внешнего
// контура идут произвольными категориями ("license_office" и т.п.).
const CategoryDevice = "device"

// Исходы Check. Отсутствие строки квоты — отказ по умолчанию
// (no_quota_configured), это НЕ то же самое, что limit=0 (безлимит).
const (
	ReasonOK        = "ok"
	ReasonUnlimited = "unlimited"
	ReasonExceeded  = "exceeded"
	ReasonNoQuota   = "no_quota_configured"
)

// Store — контракт хранилища счётчиков.
type Store interface {
	Find(contractID uint, category string) (models.Quota, bool)
	FindAll(contractID uint) ([]models.Quota, error)
	Upsert(q *models.Quota) error
	// AddUsed — атомарный read-modify-write на уровне хранилища
	// (used = used + delta, floor 0); false — строки нет.
	AddUsed(contractID uint, category string, delta int) (bool, error)
	SetUsed(contractID uint, category string, used int) error
}

// Counter — авторитетный источник живых счётчиков для Reconcile.
// ok=false — у категории нет источника в этом контуре, пропускаем.
type Counter interface {
	Count(contractID uint, category string) (n int64, ok bool, err error)
}

type Ledger struct {
	store  Store
	counts Counter
}

func NewLedger(store Store, counts Counter) *Ledger {
	return &Ledger{store: store, counts: counts}
}

// Check — чистая проверка допуска.
func (l *Ledger) Check(contractID uint, category string) (bool, string) {
	q, ok := l.store.Find(contractID, category)
	if !ok {
		return false, ReasonNoQuota
	}
	if q.LimitCount == 0 {
		return true, ReasonUnlimited
	}
	if q.Used >= q.LimitCount && !q.AllowExceed {
		return false, ReasonExceeded
	}
	return true, ReasonOK
}

// Increment — no-op если квота для контракта не заведена (квоты опциональны).
func (l *Ledger) Increment(contractID uint, category string) error {
	ok, err := l.store.AddUsed(contractID, category, 1)
	if err != nil {
		return err
	}
	if !ok {
		logs.Logger.Debugf("quota: contract %d has no %s quota, increment skipped", contractID, category)
		return nil
	}
	l.checkAlert(contractID, category)
	return nil
}

// Decrement — floor на нуле, no-op без строки.
func (l *Ledger) Decrement(contractID uint, category string) error {
	ok, err := l.store.AddUsed(contractID, category, -1)
	if err != nil {
		return err
	}
	if !ok {
		logs.Logger.Debugf("quota: contract %d has no %s quota, decrement skipped", contractID, category)
	}
	return nil
}

// Reconcile пересчитывает used из живых счётчиков и перезаписывает
// ведомость — единственный путь, обязанный быть верным даже если
// инкременты когда-то терялись.
func (l *Ledger) Reconcile(contractID uint) ([]models.Quota, error) {
	qs, err := l.store.FindAll(contractID)
	if err != nil {
		return nil, err
	}
	for i := range qs {
		n, ok, err := l.counts.Count(contractID, qs[i].Category)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := l.store.SetUsed(contractID, qs[i].Category, int(n)); err != nil {
			return nil, err
		}
		qs[i].Used = int(n)
	}
	return qs, nil
}

func (l *Ledger) Usage(contractID uint) ([]models.Quota, error) {
	return l.store.FindAll(contractID)
}

// Configure заводит/правит квоту контракта; used не трогаем.
func (l *Ledger) Configure(q *models.Quota) error {
	return l.store.Upsert(q)
}

func (l *Ledger) checkAlert(contractID uint, category string) {
	q, ok := l.store.Find(contractID, category)
	if !ok || q.LimitCount == 0 || q.AlertThreshold == 0 {
		return
	}
	if q.Used*100 >= q.LimitCount*q.AlertThreshold {
		logs.Logger.WithFields(map[string]interface{}{
			"contract": contractID,
			"category": category,
			"used":     q.Used,
			"limit":    q.LimitCount,
		}).Warnf("quota above %d%% threshold", q.AlertThreshold)
	}
}
