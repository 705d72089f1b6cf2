package db

import "time"

// ConversionRecord is one settled conversion, kept for history and stats.
type ConversionRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TaskID       string    `gorm:"index" json:"task_id"`
	SourceName   string    `json:"source_name"`
	SourceExt    string    `json:"source_ext"`
	TargetExt    string    `json:"target_ext"`
	Status       string    `gorm:"index" json:"status"` // complete, error
	ErrorMessage string    `json:"error_message,omitempty"`
	OutputSize   int64     `json:"output_size"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// Preference is one session's persisted preferences: a JSON payload keyed
// by session id.
type Preference struct {
	SessionID string    `gorm:"primaryKey" json:"session_id"`
	Payload   string    `json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats aggregates the conversion history.
type Stats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}
