package models

import (
	"time"

	"gorm.io/gorm"
)

// ActivationCode — одноразовый/многоразовый код подключения агента.
// Валиден, пока активен, не истёк и не выбран лимит использований.
type ActivationCode struct {
	gorm.Model
	Code        string    `gorm:"uniqueIndex;size:32"`
	Description string    `gorm:"size:255"`
	ExpiresAt   time.Time `gorm:"index"`
	MaxUses     int       // 0 = без лимита
	TimesUsed   int
	IsActive    bool   `gorm:"default:true"`
	IssuedBy    string `gorm:"size:64"`
}

// Valid — чистая проверка без побочных эффектов.
func (c *ActivationCode) Valid(now time.Time) bool {
	if !c.IsActive || !now.Before(c.ExpiresAt) {
		return false
	}
	return c.MaxUses == 0 || c.TimesUsed < c.MaxUses
}
