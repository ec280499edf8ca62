package activation

import (
	"errors"
	"time"

	"fleetd/internal/logs"
	"fleetd/internal/models"
)

// Причины отказа Validate (машинно-читаемые, уходят агенту как есть).
const (
	ReasonOK              = "ok"
	ReasonNotFound        = "not_found"
	ReasonInactive        = "inactive"
	ReasonExpired         = "expired"
	ReasonUseLimitReached = "use_limit_reached"
)

const maxGenerateAttempts = 5

var (
	// ErrGenerationExhausted — повторные коллизии при генерации; признак
	// давления на кодовое пространство, наружу уходит как 5xx.
	ErrGenerationExhausted = errors.New("activation code generation exhausted")

	// ErrDuplicateCode возвращает Store при коллизии кода.
	ErrDuplicateCode = errors.New("duplicate activation code")

	errNotFound = errors.New("activation code not found")
)

// Store — контракт хранилища активационных кодов.
type Store interface {
	Create(c *models.ActivationCode) error
	FindByCode(code string) (models.ActivationCode, bool)
	Consume(code string) error // атомарный times_used + 1
	Deactivate(id uint) error  // идемпотентный soft-revoke
	List() ([]models.ActivationCode, error)
	PurgeExpired(olderThan time.Time) (int64, error)
}

type Service struct {
	store      Store
	defaultTTL time.Duration
}

func NewService(store Store, defaultTTL time.Duration) *Service {
	return &Service{store: store, defaultTTL: defaultTTL}
}

// Issue выпускает новый код; коллизии ретраятся внутри до предела.
func (s *Service) Issue(description string, ttl time.Duration, maxUses int, issuer string) (models.ActivationCode, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	for i := 0; i < maxGenerateAttempts; i++ {
		code, err := newCode()
		if err != nil {
			return models.ActivationCode{}, err
		}
		c := models.ActivationCode{
			Code:        code,
			Description: description,
			ExpiresAt:   time.Now().Add(ttl),
			MaxUses:     maxUses,
			IsActive:    true,
			IssuedBy:    issuer,
		}
		err = s.store.Create(&c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrDuplicateCode) {
			return models.ActivationCode{}, err
		}
		logs.Logger.Warnf("activation code collision, retry %d/%d", i+1, maxGenerateAttempts)
	}
	return models.ActivationCode{}, ErrGenerationExhausted
}

// Validate — чистая проверка, ничего не мутирует.
func (s *Service) Validate(code string) (bool, string) {
	c, ok := s.store.FindByCode(normalize(code))
	if !ok {
		return false, ReasonNotFound
	}
	now := time.Now()
	switch {
	case !c.IsActive:
		return false, ReasonInactive
	case !now.Before(c.ExpiresAt):
		return false, ReasonExpired
	case c.MaxUses > 0 && c.TimesUsed >= c.MaxUses:
		return false, ReasonUseLimitReached
	}
	return true, ReasonOK
}

// Consume дёргается только после успеха действия, которое код открывает —
// иначе использование сгорает впустую на неудавшейся регистрации.
func (s *Service) Consume(code string) error {
	return s.store.Consume(normalize(code))
}

func (s *Service) Deactivate(id uint) error {
	return s.store.Deactivate(id)
}

func (s *Service) List() ([]models.ActivationCode, error) {
	return s.store.List()
}

// PurgeExpired — retention: сносим давно истёкшие коды.
func (s *Service) PurgeExpired(olderThan time.Duration) (int64, error) {
	return s.store.PurgeExpired(time.Now().Add(-olderThan))
}
