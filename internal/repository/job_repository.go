package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fadilmartias/bioreport-worker/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrClaimLost means the row was reclaimed or finished by another worker
	// since it was claimed, so the write was not applied.
	ErrClaimLost        = errors.New("job claim lost")
	ErrJobNotFound      = errors.New("job not found")
	ErrDocumentNotFound = errors.New("document not found")
)

func utcNow() time.Time {
	return time.Now().UTC()
}

// JobRepository owns the queue table.
type JobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db, now: utcNow}
}

// WithClock replaces the time source used for lock timestamps and the stale cutoff.
func (r *JobRepository) WithClock(now func() time.Time) *JobRepository {
	return &JobRepository{db: r.db, now: now}
}

// ClaimOne locks the oldest claimable job, marks it processing and returns the
// updated row. A row is claimable when pending, or when processing with a lock
// older than staleLock. Rows locked by concurrent claimers are skipped.
// It returns (nil, nil) when nothing is claimable.
func (r *JobRepository) ClaimOne(ctx context.Context, staleLock time.Duration) (*model.PdfJob, error) {
	var claimed *model.PdfJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		cutoff := now.Add(-staleLock)

		var job model.PdfJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", model.JobStatusPending).
			Or("status = ? AND locked_at IS NOT NULL AND locked_at < ?", model.JobStatusProcessing, cutoff).
			Order("id ASC").
			Take(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		err = tx.Model(&model.PdfJob{}).Where("id = ?", job.ID).Updates(map[string]any{
			"status":        model.JobStatusProcessing,
			"locked_at":     now,
			"attempts":      gorm.Expr("attempts + 1"),
			"error_message": nil,
			"updated_at":    now,
		}).Error
		if err != nil {
			return err
		}

		var updated model.PdfJob
		if err := tx.Take(&updated, job.ID).Error; err != nil {
			return err
		}
		claimed = &updated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return claimed, nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uint64) (*model.PdfJob, error) {
	var job model.PdfJob
	err := r.db.WithContext(ctx).Take(&job, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job %d: %w", id, err)
	}
	return &job, nil
}

// List returns one page of jobs, newest first. An empty status lists all jobs.
func (r *JobRepository) List(ctx context.Context, status model.JobStatus, page, pageSize int) ([]model.PdfJob, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.PdfJob{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	jobs := []model.PdfJob{}
	err := query.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&jobs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, total, nil
}

func (r *JobRepository) CountByStatus(ctx context.Context) (map[model.JobStatus]int64, error) {
	var rows []struct {
		Status model.JobStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&model.PdfJob{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}

	counts := map[model.JobStatus]int64{
		model.JobStatusPending:    0,
		model.JobStatusProcessing: 0,
		model.JobStatusDone:       0,
		model.JobStatusFailed:     0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
