// Package cleanup removes task tombstones once their retention window has
// passed. Deleted tasks stay queryable as tombstones until the sweep so the
// activity trail survives accidental deletions for a while.
package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mprlab/colist/internal/model"
)

const defaultRetentionDays = 30

// Job is the periodic tombstone sweep. Idempotent; a run with nothing to
// delete is not an error.
type Job struct {
	db            *gorm.DB
	clock         func() time.Time
	logger        *zap.Logger
	RetentionDays int
}

// NewJob constructs the sweep with the default 30 day retention.
func NewJob(db *gorm.DB, clock func() time.Time, logger *zap.Logger) *Job {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{db: db, clock: clock, logger: logger, RetentionDays: defaultRetentionDays}
}

// Run deletes every task tombstoned longer ago than the retention window,
// subtask tombstones included since they carry their own deleted_at.
func (j *Job) Run(ctx context.Context) error {
	start := j.clock()
	cutoff := start.UTC().AddDate(0, 0, -j.RetentionDays)

	result := j.db.WithContext(ctx).
		Where("is_deleted = ? AND deleted_at < ?", true, cutoff).
		Delete(&model.Task{})
	if result.Error != nil {
		j.logger.Error("task tombstone sweep failed",
			zap.Int("retention_days", j.RetentionDays),
			zap.Error(result.Error))
		return result.Error
	}

	j.logger.Info("task tombstone sweep completed",
		zap.Int64("deleted_count", result.RowsAffected),
		zap.Int("retention_days", j.RetentionDays),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// RunPeriodically runs the sweep once immediately and then on every tick
// until the context is cancelled.
func (j *Job) RunPeriodically(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
