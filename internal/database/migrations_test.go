package database

import (
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pinboardly/pinboardly/internal/pinboard"
)

func TestApplyMigrationsBackfillsRestoreDeadlines(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&pinboard.Pinboard{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	removedAt := int64(1700000000)
	stale := pinboard.Pinboard{
		PinboardID:       "pb-1",
		OwnerID:          "org-1",
		Slug:             "climbing-club",
		Title:            "Climbing Club",
		Status:           pinboard.StatusRemoved,
		RemovedAtSeconds: &removedAt,
	}
	if err := database.Create(&stale).Error; err != nil {
		testContext.Fatalf("failed to insert pinboard: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored pinboard.Pinboard
	if err := database.Where("pinboard_id = ?", "pb-1").Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload pinboard: %v", err)
	}
	if stored.RestoreUntilSeconds == nil {
		testContext.Fatalf("expected restore deadline to be backfilled")
	}
	expected := removedAt + int64(pinboard.RestoreWindow/time.Second)
	if *stored.RestoreUntilSeconds != expected {
		testContext.Fatalf("expected restore deadline %d, got %d", expected, *stored.RestoreUntilSeconds)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillRestoreDeadlines).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}
