package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/castlemill/convertd/internal/adapter"
)

// Status is a task's position in its lifecycle. Legal transitions:
// pending -> converting -> complete | error, and error -> pending via an
// explicit retry. A complete task is only ever removed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConverting Status = "converting"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Task is one user file tracked through the conversion lifecycle. Tasks are
// owned exclusively by the Store; callers only ever see copies.
type Task struct {
	ID           uuid.UUID `json:"id"`
	SourceName   string    `json:"source_name"`
	SourceBytes  []byte    `json:"-"`
	SourceExt    string    `json:"source_ext"`
	SourceMIME   string    `json:"source_mime"`
	TargetExt    string    `json:"target_ext,omitempty"` // empty = none selected
	Status       Status    `json:"status"`
	Progress     int       `json:"progress"` // 0-100, meaningful while converting
	ErrorMessage string    `json:"error_message,omitempty"`
	ResultBytes  []byte    `json:"-"`
	ResultMIME   string    `json:"result_mime,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Input is one file handed to Add.
type Input struct {
	Name  string
	MIME  string
	Bytes []byte
}

// SettingsPatch shallow-merges into the global settings; nil fields are
// left untouched.
type SettingsPatch struct {
	Mode         *adapter.Mode `json:"mode,omitempty"`
	QualityLevel *int          `json:"quality_level,omitempty"`
	BitrateKbps  *int          `json:"bitrate_kbps,omitempty"`
	SampleRateHz *int          `json:"sample_rate_hz,omitempty"`
}
