package model

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

func ParseJobStatus(s string) (JobStatus, error) {
	switch status := JobStatus(s); status {
	case JobStatusPending, JobStatusProcessing, JobStatusDone, JobStatusFailed:
		return status, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// PdfJob is one row of the queue table. Rows are created by the upload service;
// the worker only transitions them.
type PdfJob struct {
	ID                 uint64     `gorm:"primaryKey" json:"id"`
	UploadedDocumentID uint64     `gorm:"not null;index" json:"uploaded_document_id"`
	Status             JobStatus  `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Attempts           int        `gorm:"not null;default:0" json:"attempts"`
	ErrorMessage       *string    `gorm:"type:text" json:"error_message"`
	LockedAt           *time.Time `gorm:"index" json:"locked_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (PdfJob) TableName() string {
	return "pdf_jobs"
}
