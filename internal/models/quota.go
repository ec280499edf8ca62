package models

import "gorm.io/gorm"

// Quota — счётчик ресурсов контракта по категории (device, license_*...).
// LimitCount = 0 значит "без лимита"; отсутствие строки — отказ по умолчанию.
type Quota struct {
	gorm.Model
	ContractID     uint   `gorm:"uniqueIndex:ux_quota_contract_cat,priority:1"`
	Category       string `gorm:"uniqueIndex:ux_quota_contract_cat,priority:2;size:32"`
	LimitCount     int    `gorm:"column:limit_count"` // `limit` — reserved word
	Used           int
	AllowExceed    bool
	AlertThreshold int // процент от лимита, 0 = без алертов
}
