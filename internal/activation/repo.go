package activation

import (
	"time"

	"fleetd/internal/models"

	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Create(c *models.ActivationCode) error {
	// check-then-create: уникальный индекс по code всё равно страхует
	var existing models.ActivationCode
	if err := r.db.Where("code = ?", c.Code).First(&existing).Error; err == nil {
		return ErrDuplicateCode
	}
	return r.db.Create(c).Error
}

func (r *Repo) FindByCode(code string) (models.ActivationCode, bool) {
	var c models.ActivationCode
	if err := r.db.Where("code = ?", code).First(&c).Error; err != nil {
		return models.ActivationCode{}, false
	}
	return c, true
}

// Consume — атомарный инкремент счётчика использований.
func (r *Repo) Consume(code string) error {
	tx := r.db.Model(&models.ActivationCode{}).
		Where("code = ?", code).
		UpdateColumn("times_used", gorm.Expr("times_used + 1"))
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return errNotFound
	}
	return nil
}

func (r *Repo) Deactivate(id uint) error {
	return r.db.Model(&models.ActivationCode{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *Repo) List() ([]models.ActivationCode, error) {
	var out []models.ActivationCode
	err := r.db.Order("id").Find(&out).Error
	return out, err
}

func (r *Repo) PurgeExpired(olderThan time.Time) (int64, error) {
	tx := r.db.Unscoped().
		Where("expires_at < ?", olderThan).
		Delete(&models.ActivationCode{})
	return tx.RowsAffected, tx.Error
}
