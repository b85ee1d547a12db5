package store

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *bytes.Buffer) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var logs bytes.Buffer
	s := &Store{
		db:     sqlx.NewDb(db, "sqlmock"),
		logger: slog.New(slog.NewTextHandler(&logs, nil)),
	}
	return s, mock, &logs
}

func voiceJobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"voice_job_id", "caller_phone", "recording_id", "recording_url",
		"transcription_event_id", "status", "transcription", "category",
		"category_confidence", "category_indicators", "created_at", "updated_at",
	})
}

func TestStore_Create_NewRecording(t *testing.T) {
	s, mock, _ := newMockStore(t)

	mock.ExpectQuery("INSERT INTO voice_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"voice_job_id"}).AddRow("vj-new"))

	id, err := s.Create(context.Background(), &VoiceJob{
		CallerPhone:          "+15550100",
		RecordingID:          "rec-1",
		RecordingURL:         "https://cdn.example.com/rec-1.wav",
		TranscriptionEventID: "evt-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "vj-new", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Create_DuplicateRecordingLogsDiscardedEventID(t *testing.T) {
	s, mock, logs := newMockStore(t)

	// ON CONFLICT DO NOTHING returns no row on a redelivery.
	mock.ExpectQuery("INSERT INTO voice_jobs").WillReturnRows(sqlmock.NewRows([]string{"voice_job_id"}))
	mock.ExpectQuery("SELECT (.+) FROM voice_jobs WHERE recording_id").
		WillReturnRows(voiceJobRows().AddRow(
			"vj-existing", "+15550100", "rec-1", "https://cdn.example.com/rec-1.wav",
			"evt-original", StatusProcessing, nil, nil,
			nil, nil, time.Now(), time.Now(),
		))

	id, err := s.Create(context.Background(), &VoiceJob{
		CallerPhone:          "+15550100",
		RecordingID:          "rec-1",
		RecordingURL:         "https://cdn.example.com/rec-1.wav",
		TranscriptionEventID: "evt-redelivered",
	})

	require.NoError(t, err)
	assert.Equal(t, "vj-existing", id, "redelivery must reuse the original row")
	assert.Contains(t, logs.String(), "discarded_event_id=evt-redelivered",
		"operators need the event id that no longer maps to a row")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Update_MissingRow(t *testing.T) {
	s, mock, _ := newMockStore(t)

	mock.ExpectExec("UPDATE voice_jobs").WillReturnResult(sqlmock.NewResult(0, 0))

	status := StatusCompleted
	err := s.Update(context.Background(), "vj-missing", JobPatch{Status: &status})

	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
