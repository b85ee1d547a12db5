package store

import (
	"database/sql"
	"time"
)

// VoiceJob status constants
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// VoiceJob is one row per phone call that produced a recording. The caller
// and recording fields are set once at ingestion; the transcript and
// category fields stay null until the completion step fills them in.
type VoiceJob struct {
	VoiceJobID           string          `db:"voice_job_id"`
	CallerPhone          string          `db:"caller_phone"`
	RecordingID          string          `db:"recording_id"`
	RecordingURL         string          `db:"recording_url"`
	TranscriptionEventID string          `db:"transcription_event_id"`
	Status               string          `db:"status"`
	Transcription        sql.NullString  `db:"transcription"`
	Category             sql.NullString  `db:"category"`
	CategoryConfidence   sql.NullFloat64 `db:"category_confidence"`
	CategoryIndicators   sql.NullString  `db:"category_indicators"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

// JobPatch is an idempotent partial update; nil fields are left untouched.
type JobPatch struct {
	Status             *string
	Transcription      *string
	Category           *string
	CategoryConfidence *float64
	CategoryIndicators *string
}
