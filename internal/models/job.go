package models

import "time"

// Job is a queued recomputation run for one user.
type Job struct {
	ID     int64  `json:"id" db:"id"`
	UserID int64  `json:"user_id" db:"user_id"`
	Skill  string `json:"skill" db:"skill"` // track_generation, transport_mode_backfill, visit_detection
	Mode   string `json:"mode" db:"mode"`   // bulk, daily, incremental

	// Window parameters. StartAt/EndAt are optional bounds for bulk runs,
	// Day (YYYY-MM-DD, UTC) selects the day for daily and incremental runs.
	StartAt *int64 `json:"start_at,omitempty" db:"start_at"`
	EndAt   *int64 `json:"end_at,omitempty" db:"end_at"`
	Day     string `json:"day,omitempty" db:"day"`

	Status        string `json:"status" db:"status"`
	Processed     int    `json:"processed" db:"processed"`
	Failed        int    `json:"failed" db:"failed"`
	ResultSummary string `json:"result_summary,omitempty" db:"result_summary"` // JSON object
	ErrorMessage  string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Job skills
const (
	SkillTrackGeneration       = "track_generation"
	SkillTransportModeBackfill = "transport_mode_backfill"
	SkillVisitDetection        = "visit_detection"
)

// Run modes
const (
	RunBulk        = "bulk"
	RunDaily       = "daily"
	RunIncremental = "incremental"
)

// Job statuses
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// DayLayout is the layout of Job.Day.
const DayLayout = "2006-01-02"
