package model

import "time"

const (
	SyncLogStatusSuccess = "success"
	SyncLogStatusPartial = "partial"
	SyncLogStatusFailed  = "failed"
)

// SyncLog records the outcome of one sync run. Details only carry a bounded
// sample of per-item failures; the full list stays in logs.
type SyncLog struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	DataType string `gorm:"size:30;index;not null"`
	Status   string `gorm:"size:20;not null"`
	Message  string `gorm:"size:500"`
	Details  string `gorm:"type:text"`

	CreatedAt time.Time
}

func (SyncLog) TableName() string { return "sync_logs" }
