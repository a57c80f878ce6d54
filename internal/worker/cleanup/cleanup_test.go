package cleanup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mprlab/colist/internal/database"
	"github.com/mprlab/colist/internal/model"
)

func mustOpenDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "colist.db"), nil)
	if err != nil {
		t.Fatalf("unexpected database error: %v", err)
	}
	return db
}

func mustCreateTombstone(t *testing.T, db *gorm.DB, deletedAt time.Time) model.Task {
	t.Helper()
	task := model.Task{
		ID:        uuid.NewString(),
		ListID:    uuid.NewString(),
		Title:     "tombstoned",
		CreatedBy: uuid.NewString(),
		IsDeleted: true,
		DeletedAt: &deletedAt,
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("unexpected task create error: %v", err)
	}
	return task
}

func TestRunSweepsOnlyExpiredTombstones(t *testing.T) {
	db := mustOpenDatabase(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job := NewJob(db, func() time.Time { return now }, nil)

	old := mustCreateTombstone(t, db, now.AddDate(0, 0, -45))
	recent := mustCreateTombstone(t, db, now.AddDate(0, 0, -5))
	live := model.Task{ID: uuid.NewString(), ListID: uuid.NewString(), Title: "live", CreatedBy: uuid.NewString()}
	if err := db.Create(&live).Error; err != nil {
		t.Fatalf("unexpected task create error: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected sweep error: %v", err)
	}

	var count int64
	if err := db.Model(&model.Task{}).Where("id = ?", old.ID).Count(&count).Error; err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected expired tombstone to be removed")
	}

	for _, id := range []string{recent.ID, live.ID} {
		if err := db.Model(&model.Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
			t.Fatalf("unexpected query error: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected %s to survive the sweep", id)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	db := mustOpenDatabase(t)
	job := NewJob(db, nil, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error on empty sweep: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error on repeat sweep: %v", err)
	}
}
