package dto

import (
	"time"

	"github.com/fadilmartias/bioreport-worker/internal/model"
)

type JobDTO struct {
	ID                 uint64          `json:"id"`
	UploadedDocumentID uint64          `json:"uploaded_document_id"`
	Status             model.JobStatus `json:"status"`
	Attempts           int             `json:"attempts"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
	LockedAt           *time.Time      `json:"locked_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func NewJobDTO(job model.PdfJob) JobDTO {
	return JobDTO{
		ID:                 job.ID,
		UploadedDocumentID: job.UploadedDocumentID,
		Status:             job.Status,
		Attempts:           job.Attempts,
		ErrorMessage:       job.ErrorMessage,
		LockedAt:           job.LockedAt,
		CreatedAt:          job.CreatedAt,
		UpdatedAt:          job.UpdatedAt,
	}
}

type JobStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Done       int64 `json:"done"`
	Failed     int64 `json:"failed"`
}
