package store

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/gigline/voice-intake/shared/postgresql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const voiceJobColumns = `
	voice_job_id, caller_phone, recording_id, recording_url,
	transcription_event_id, status, transcription, category,
	category_confidence, category_indicators, created_at, updated_at
`

// Store persists voice jobs in PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New creates a Store on an established database client.
func New(pg *postgresql.Client, logger *slog.Logger) *Store {
	return &Store{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// Create inserts the initial processing row for a recording and returns the
// row id. recording_id is the idempotency key: a duplicate webhook delivery
// lands on the existing row instead of creating a second one, and the
// original row's id is returned unchanged.
func (s *Store) Create(ctx context.Context, job *VoiceJob) (string, error) {
	query := `
		INSERT INTO voice_jobs (
			voice_job_id, caller_phone, recording_id, recording_url,
			transcription_event_id, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, NOW(), NOW()
		)
		ON CONFLICT (recording_id) DO NOTHING
		RETURNING voice_job_id
	`

	status := job.Status
	if status == "" {
		status = StatusProcessing
	}

	var id string
	err := s.db.QueryRowContext(
		ctx,
		query,
		uuid.New().String(),
		job.CallerPhone,
		job.RecordingID,
		job.RecordingURL,
		job.TranscriptionEventID,
		status,
	).Scan(&id)

	if err == nil {
		s.logger.Info("Voice job created",
			slog.String("voice_job_id", id),
			slog.String("recording_id", job.RecordingID),
		)
		return id, nil
	}

	if err != sql.ErrNoRows {
		return "", classify(err)
	}

	// Conflict path: the recording was already ingested. Hand back the
	// existing row's id so a redelivered webhook stays a no-op.
	existing, lookupErr := s.GetByRecordingID(ctx, job.RecordingID)
	if lookupErr != nil {
		return "", lookupErr
	}

	// The redelivered event id never reaches a row, so surface it for
	// operators correlating stray completion callbacks.
	s.logger.Warn("Duplicate recording delivery, reusing existing voice job",
		slog.String("voice_job_id", existing.VoiceJobID),
		slog.String("recording_id", job.RecordingID),
		slog.String("discarded_event_id", job.TranscriptionEventID),
	)

	return existing.VoiceJobID, nil
}

// Update applies a partial patch to a row. Reapplying the same patch is a
// no-op after the first application.
func (s *Store) Update(ctx context.Context, voiceJobID string, patch JobPatch) error {
	query := `
		UPDATE voice_jobs
		SET status = COALESCE($1, status),
			transcription = COALESCE($2, transcription),
			category = COALESCE($3, category),
			category_confidence = COALESCE($4, category_confidence),
			category_indicators = COALESCE($5, category_indicators),
			updated_at = NOW()
		WHERE voice_job_id = $6
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		patch.Status,
		patch.Transcription,
		patch.Category,
		patch.CategoryConfidence,
		patch.CategoryIndicators,
		voiceJobID,
	)
	if err != nil {
		return classify(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetByID retrieves a voice job by its row id.
func (s *Store) GetByID(ctx context.Context, voiceJobID string) (*VoiceJob, error) {
	return s.getOne(ctx, `SELECT `+voiceJobColumns+` FROM voice_jobs WHERE voice_job_id = $1`, voiceJobID)
}

// GetByEventID retrieves a voice job by its transcription event id, used to
// correlate an async completion callback to the original row.
func (s *Store) GetByEventID(ctx context.Context, eventID string) (*VoiceJob, error) {
	return s.getOne(ctx, `SELECT `+voiceJobColumns+` FROM voice_jobs WHERE transcription_event_id = $1`, eventID)
}

// GetByRecordingID retrieves a voice job by the provider's recording id.
func (s *Store) GetByRecordingID(ctx context.Context, recordingID string) (*VoiceJob, error) {
	return s.getOne(ctx, `SELECT `+voiceJobColumns+` FROM voice_jobs WHERE recording_id = $1`, recordingID)
}

func (s *Store) getOne(ctx context.Context, query, arg string) (*VoiceJob, error) {
	var job VoiceJob
	if err := s.db.GetContext(ctx, &job, query, arg); err != nil {
		return nil, classify(err)
	}
	return &job, nil
}
