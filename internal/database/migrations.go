package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pinboardly/pinboardly/internal/pinboard"
)

const migrationBackfillRestoreDeadlines = "2026-05-10_backfill_restore_deadlines"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillRestoreDeadlines, apply: backfillRestoreDeadlines},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillRestoreDeadlines repairs removed pinboards written before the
// restore window existed: their deadline becomes removal time plus the
// standard window.
func backfillRestoreDeadlines(db *gorm.DB) error {
	windowSeconds := int64(pinboard.RestoreWindow / time.Second)
	return db.Model(&pinboard.Pinboard{}).
		Where("status = ? AND removed_at_s IS NOT NULL AND restore_until_s IS NULL", pinboard.StatusRemoved).
		Update("restore_until_s", gorm.Expr("removed_at_s + ?", windowSeconds)).Error
}
