package domain

import "time"

// ExportStatus is the state of a snapshot export job.
type ExportStatus string

const (
	ExportRunning   ExportStatus = "running"
	ExportCompleted ExportStatus = "completed"
	ExportDiscarded ExportStatus = "discarded"
	ExportFailed    ExportStatus = "failed"
)

// ExportJob tracks one chunked snapshot export.
type ExportJob struct {
	JobID     string       `db:"job_id"     json:"job_id"`
	Status    ExportStatus `db:"status"     json:"status"`
	Cursor    int64        `db:"cursor"     json:"cursor"`
	Written   int          `db:"written"    json:"written"`
	TempPath  string       `db:"temp_path"  json:"-"`
	StartedAt time.Time    `db:"started_at" json:"started_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// ContentAnalysis is one snapshot row: the indexed record plus link counters.
type ContentAnalysis struct {
	ContentRecord

	ActiveLinks   int `db:"active_links"   json:"active_links"`
	PendingLinks  int `db:"pending_links"  json:"pending_links"`
	InboundLinks  int `db:"inbound_links"  json:"inbound_links"`
	BrokenAnchors int `db:"broken_anchors" json:"broken_anchors"`
}
