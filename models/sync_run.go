package models

import "time"

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredCron   = "cron"
	SyncTriggeredSystem = "system"
)

const (
	SyncModeReport = "report"
	SyncModeFeed   = "feed"
)

// StocksSyncRun is the bookkeeping record for one pipeline run.
type StocksSyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	Mode          string     `gorm:"index;size:20;not null" json:"mode"`
	Status        string     `gorm:"index;size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	TaskId        string     `gorm:"size:128" json:"task_id"`
	RowsFetched   int        `json:"rows_fetched"`
	RowsUpserted  int        `json:"rows_upserted"`
	RowsDropped   int        `json:"rows_dropped"`
	WarningCount  int        `json:"warning_count"`
	StatsJSON     []byte     `gorm:"type:json" json:"stats"`
	ErrorMessage  string     `gorm:"type:text" json:"error_message"`
	CorrelationId string     `gorm:"size:64" json:"correlation_id"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// StocksSyncError records one advisory problem observed during a run
// (rollup mismatch, dropped row). Fatal errors live on the run itself.
type StocksSyncError struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	SyncRunId   uint      `gorm:"index;not null" json:"sync_run_id"`
	NmId        int64     `gorm:"index" json:"nm_id"`
	ErrorCode   string    `gorm:"size:64" json:"error_code"`
	Message     string    `gorm:"type:text" json:"message"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
