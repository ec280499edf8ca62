package db

import (
	"fmt"

	"gorm.io/gorm"
)

// MigrateReservedColumns — одноразовый перенос колонок, названных
// зарезервированными словами (MySQL/MariaDB safe).
// quotas.limit -> quotas.limit_count
func MigrateReservedColumns(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	dialect := db.Dialector.Name()

	if db.Migrator().HasTable("quotas") {
		hasOld := db.Migrator().HasColumn("quotas", "limit")
		hasNew := db.Migrator().HasColumn("quotas", "limit_count")
		if hasOld && !hasNew {
			if err := db.Migrator().RenameColumn("quotas", "limit", "limit_count"); err != nil {
				var e error
				switch dialect {
				case "mysql":
					e = db.Exec("ALTER TABLE `quotas` CHANGE COLUMN `limit` `limit_count` int NOT NULL DEFAULT 0").Error
				case "postgres":
					e = db.Exec(`ALTER TABLE "quotas" RENAME COLUMN "limit" TO "limit_count"`).Error
				default:
					e = err
				}
				if e != nil {
					return fmt.Errorf("rename quotas.limit -> limit_count: %w", e)
				}
			}
		}
	}
	return nil
}
