package pg

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"promptforge/internal/core/domain"
	"promptforge/internal/core/ports"
)

// Archive persists terminal jobs to Postgres for history queries. The queue
// never reads from it; losing the database loses history, nothing else.
type Archive struct {
	db *gorm.DB
}

var _ ports.JobArchive = (*Archive)(nil)

func NewArchive(dsn string) (*Archive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := db.AutoMigrate(&domain.Job{}); err != nil {
		return nil, fmt.Errorf("migrating jobs table: %w", err)
	}
	return &Archive{db: db}, nil
}

// RecordTerminal upserts the job row. Retried jobs reach a terminal state
// more than once only through manual retry, in which case the latest outcome
// wins.
func (a *Archive) RecordTerminal(ctx context.Context, job *domain.Job) error {
	return a.db.WithContext(ctx).Save(job).Error
}

func (a *Archive) ListRecent(ctx context.Context, offset, limit int) ([]*domain.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var jobs []*domain.Job
	err := a.db.WithContext(ctx).
		Order("completed_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (a *Archive) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	type row struct {
		Status domain.JobStatus
		Total  int64
	}
	var rows []row
	err := a.db.WithContext(ctx).
		Model(&domain.Job{}).
		Select("status, count(*) as total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.JobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

// Ping verifies database connectivity for health checks.
func (a *Archive) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
