package model

import "time"

// SyncStatus represents the state of a feed sync run.
type SyncStatus string

const (
	SyncStatusRunning  SyncStatus = "running"
	SyncStatusComplete SyncStatus = "complete"
	SyncStatusFailed   SyncStatus = "failed"
)

// SyncRun records one fetch-classify-persist cycle.
type SyncRun struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Status     SyncStatus `json:"status"`
	Fetched    int        `json:"fetched"`
	New        int        `json:"new"`
	LandQuakes int        `json:"land_quakes"`
	SinkErrors int        `json:"sink_errors"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
