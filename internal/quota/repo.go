package quota

import (
	"errors"

	"fleetd/internal/models"

	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Find(contractID uint, category string) (models.Quota, bool) {
	var q models.Quota
	err := r.db.Where("contract_id = ? AND category = ?", contractID, category).First(&q).Error
	if err != nil {
		return models.Quota{}, false
	}
	return q, true
}

func (r *Repo) FindAll(contractID uint) ([]models.Quota, error) {
	var out []models.Quota
	err := r.db.Where("contract_id = ?", contractID).Order("category").Find(&out).Error
	return out, err
}

func (r *Repo) Upsert(q *models.Quota) error {
	var ex models.Quota
	tx := r.db.Where("contract_id = ? AND category = ?", q.ContractID, q.Category).First(&ex)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return r.db.Create(q).Error
		}
		return tx.Error
	}
	// лимитные поля правим, used не трогаем
	err := r.db.Model(&ex).Updates(map[string]any{
		"limit_count":     q.LimitCount,
		"allow_exceed":    q.AllowExceed,
		"alert_threshold": q.AlertThreshold,
	}).Error
	if err != nil {
		return err
	}
	q.ID = ex.ID
	q.Used = ex.Used
	return nil
}

// AddUsed — атомарный "add N" на стороне БД; naive read-then-write здесь
// теряет апдейты под конкурентными регистрациями одного контракта.
func (r *Repo) AddUsed(contractID uint, category string, delta int) (bool, error) {
	tx := r.db.Model(&models.Quota{}).
		Where("contract_id = ? AND category = ?", contractID, category).
		UpdateColumn("used", gorm.Expr("GREATEST(used + ?, 0)", delta))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *Repo) SetUsed(contractID uint, category string, used int) error {
	return r.db.Model(&models.Quota{}).
		Where("contract_id = ? AND category = ?", contractID, category).
		UpdateColumn("used", used).Error
}
