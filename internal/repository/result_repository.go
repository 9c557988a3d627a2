package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/fadilmartias/bioreport-worker/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const MaxErrorMessageBytes = 4096

// ResultRepository performs the writes that end a claim: commit, fail and requeue.
// Each write is fenced on the claim generation (the attempts value returned by
// ClaimOne) and the processing status, so a worker whose claim went stale cannot
// overwrite the outcome of the worker that reclaimed the job.
type ResultRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db, now: utcNow}
}

func (r *ResultRepository) WithClock(now func() time.Time) *ResultRepository {
	return &ResultRepository{db: r.db, now: now}
}

// FindDocument returns (nil, nil) when the document row does not exist.
func (r *ResultRepository) FindDocument(ctx context.Context, id uint64) (*model.UploadedDocument, error) {
	var doc model.UploadedDocument
	err := r.db.WithContext(ctx).Take(&doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document %d: %w", id, err)
	}
	return &doc, nil
}

// Commit stores the analysis results on the document and marks the job done
// in one transaction.
func (r *ResultRepository) Commit(ctx context.Context, job *model.PdfJob, raw, normalized []byte) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()

		res := claimed(tx, job).Updates(map[string]any{
			"status":     model.JobStatusDone,
			"updated_at": now,
		})
		if res.Error != nil {
			return fmt.Errorf("mark job %d done: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrClaimLost
		}

		res = tx.Model(&model.UploadedDocument{}).
			Where("id = ?", job.UploadedDocumentID).
			Updates(map[string]any{
				"raw_result":        datatypes.JSON(raw),
				"normalized_result": datatypes.JSON(normalized),
				"processed_at":      now,
				"updated_at":        now,
			})
		if res.Error != nil {
			return fmt.Errorf("store results for document %d: %w", job.UploadedDocumentID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrDocumentNotFound
		}
		return nil
	})
}

// Fail marks the job failed. The message is cut to MaxErrorMessageBytes.
func (r *ResultRepository) Fail(ctx context.Context, job *model.PdfJob, message string) error {
	res := claimed(r.db.WithContext(ctx), job).Updates(map[string]any{
		"status":        model.JobStatusFailed,
		"error_message": TruncateMessage(message, MaxErrorMessageBytes),
		"updated_at":    r.now(),
	})
	if res.Error != nil {
		return fmt.Errorf("fail job %d: %w", job.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// Requeue makes the job immediately claimable again.
func (r *ResultRepository) Requeue(ctx context.Context, job *model.PdfJob) error {
	res := claimed(r.db.WithContext(ctx), job).Updates(map[string]any{
		"status":        model.JobStatusPending,
		"error_message": nil,
		"locked_at":     nil,
		"updated_at":    r.now(),
	})
	if res.Error != nil {
		return fmt.Errorf("requeue job %d: %w", job.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

func claimed(db *gorm.DB, job *model.PdfJob) *gorm.DB {
	return db.Model(&model.PdfJob{}).
		Where("id = ? AND status = ? AND attempts = ?", job.ID, model.JobStatusProcessing, job.Attempts)
}

// TruncateMessage cuts s to at most limit bytes without splitting a UTF-8 sequence.
func TruncateMessage(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
