package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/javery-app/javery-backend/pkg/logger"
)

const (
	defaultRetentionDays   = 30
	defaultRetentionBatch  = 200
	maxRetentionBatchCalls = 50
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxPruner
	Retention  int
	BatchSize  int
}

// NewOutboxRetentionJob deletes published outbox events older than the
// retention window. Pending and failed events are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultRetentionDays
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRetentionBatch
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxPruner
	retention int
	batch     int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	total := 0
	for i := 0; i < maxRetentionBatchCalls; i++ {
		deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("outbox retention: %w", err)
		}
		total += deleted
		if deleted < j.batch {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   total,
	}), "outbox retention cleanup complete")
	return nil
}
