package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const StorageDiskLocal = "local"

// UploadedDocument is owned by the upload service. The worker only writes
// RawResult, NormalizedResult, ProcessedAt and UpdatedAt.
type UploadedDocument struct {
	ID               uint64         `gorm:"primaryKey" json:"id"`
	UUID             uuid.UUID      `gorm:"column:uuid;type:uuid;not null;uniqueIndex" json:"uuid"`
	UserID           uint64         `gorm:"not null;index" json:"user_id"`
	StorageDisk      string         `gorm:"type:varchar(20);not null;default:'local'" json:"storage_disk"`
	OriginalFilename string         `gorm:"type:varchar(255)" json:"original_filename"`
	MimeType         string         `gorm:"type:varchar(100)" json:"mime_type"`
	RawResult        datatypes.JSON `gorm:"type:jsonb" json:"raw_result"`
	NormalizedResult datatypes.JSON `gorm:"type:jsonb" json:"normalized_result"`
	ProcessedAt      *time.Time     `json:"processed_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (UploadedDocument) TableName() string {
	return "uploaded_documents"
}
