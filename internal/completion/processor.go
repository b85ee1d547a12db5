package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gigline/voice-intake/internal/category"
	"github.com/gigline/voice-intake/internal/completion/domain"
	"github.com/gigline/voice-intake/internal/store"
	"github.com/gigline/voice-intake/internal/transcription"
)

// processMessage dispatches one queue message by kind. A retryable failure
// on a message that has already burned through its delivery budget is
// converted into a terminal ErrAttemptsExhausted so the requeue loop cannot
// run forever.
func (w *Worker) processMessage(ctx context.Context, msg *domain.Message) error {
	err := w.dispatch(ctx, msg)
	if err == nil {
		return nil
	}

	var retryableErr *domain.RetryableError
	if errors.As(err, &retryableErr) && msg.Attempt+1 >= w.maxAttempts {
		w.exhaust(ctx, msg)
		return fmt.Errorf("%w after %d deliveries: %v", domain.ErrAttemptsExhausted, msg.Attempt+1, err)
	}

	return err
}

func (w *Worker) dispatch(ctx context.Context, msg *domain.Message) error {
	switch msg.Kind {
	case domain.KindCompletion:
		return w.processCompletion(ctx, msg)
	case domain.KindOrphan:
		return w.processOrphan(ctx, msg)
	default:
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidMessage, msg.Kind)
	}
}

// exhaust records the terminal outcome of a message that ran out of
// deliveries. Completions still have a processing row to move to failed;
// an exhausted orphan replay has no row to land on, so it can only be
// surfaced to operators.
func (w *Worker) exhaust(ctx context.Context, msg *domain.Message) {
	switch msg.Kind {
	case domain.KindCompletion:
		job, err := w.store.GetByEventID(ctx, msg.EventID)
		if err != nil {
			w.logger.Error("Exhausted completion could not be resolved to a voice job",
				slog.String("event_id", msg.EventID),
				slog.String("error", err.Error()),
			)
			return
		}
		w.markFailed(ctx, job.VoiceJobID)
	case domain.KindOrphan:
		w.logger.Error("Orphan replay abandoned, voice job row is lost",
			slog.String("event_id", msg.EventID),
			slog.String("recording_id", msg.Orphan.RecordingID),
		)
	}
}

// processCompletion resolves the transcript for a submitted transcription
// job, categorizes it, and moves the row to a terminal state.
func (w *Worker) processCompletion(ctx context.Context, msg *domain.Message) error {
	if msg.EventID == "" {
		return fmt.Errorf("%w: missing event_id", domain.ErrInvalidMessage)
	}

	job, err := w.store.GetByEventID(ctx, msg.EventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// No row for this event. The nudge endpoint or a gateway
			// re-notify will bring the completion back once the orphan
			// replay has landed.
			w.logger.Warn("No voice job for completion event",
				slog.String("event_id", msg.EventID),
			)
			return fmt.Errorf("%w: no voice job for event %s", domain.ErrInvalidMessage, msg.EventID)
		}
		return domain.NewRetryableError(fmt.Errorf("lookup voice job: %w", err))
	}

	// Terminal rows stay untouched on duplicate delivery
	if job.Status != store.StatusProcessing {
		w.logger.Info("Voice job already finalized, skipping",
			slog.String("voice_job_id", job.VoiceJobID),
			slog.String("status", job.Status),
		)
		return nil
	}

	transcript := msg.Transcript
	if transcript == "" {
		fetched, ready, fetchErr := w.gateway.FetchResult(ctx, msg.EventID)
		if fetchErr != nil {
			var gwErr *transcription.GatewayError
			if errors.As(fetchErr, &gwErr) && gwErr.StatusCode >= 400 && gwErr.StatusCode < 500 {
				// The gateway rejected the event id outright; the job can
				// never complete
				w.markFailed(ctx, job.VoiceJobID)
				return fmt.Errorf("transcript unavailable: %w", fetchErr)
			}
			return domain.NewRetryableError(fmt.Errorf("fetch transcript: %w", fetchErr))
		}
		if !ready {
			return domain.NewRetryableError(
				fmt.Errorf("%w: event %s", domain.ErrTranscriptNotReady, msg.EventID),
			)
		}
		transcript = fetched
	}

	result := category.Categorize(transcript)

	indicators, err := json.Marshal(result.Indicators)
	if err != nil {
		return fmt.Errorf("marshal indicators: %w", err)
	}

	status := store.StatusCompleted
	indicatorsJSON := string(indicators)
	if err := w.store.Update(ctx, job.VoiceJobID, store.JobPatch{
		Status:             &status,
		Transcription:      &transcript,
		Category:           &result.Category,
		CategoryConfidence: &result.Confidence,
		CategoryIndicators: &indicatorsJSON,
	}); err != nil {
		if store.IsRetryable(err) {
			return domain.NewRetryableError(fmt.Errorf("finalize voice job: %w", err))
		}
		return fmt.Errorf("finalize voice job: %w", err)
	}

	w.logger.Info("Voice job completed",
		slog.String("voice_job_id", job.VoiceJobID),
		slog.String("event_id", msg.EventID),
		slog.String("category", result.Category),
		slog.Float64("confidence", result.Confidence),
	)

	return nil
}

// processOrphan replays the initial row insert that the intake service could
// not persist after the transcription job was already submitted.
func (w *Worker) processOrphan(ctx context.Context, msg *domain.Message) error {
	if msg.Orphan == nil || msg.Orphan.RecordingID == "" {
		return fmt.Errorf("%w: missing orphan record", domain.ErrInvalidMessage)
	}

	voiceJobID, err := w.store.Create(ctx, &store.VoiceJob{
		CallerPhone:          msg.Orphan.CallerPhone,
		RecordingID:          msg.Orphan.RecordingID,
		RecordingURL:         msg.Orphan.RecordingURL,
		TranscriptionEventID: msg.EventID,
		Status:               store.StatusProcessing,
	})
	if err != nil {
		if store.IsRetryable(err) {
			return domain.NewRetryableError(fmt.Errorf("replay orphan insert: %w", err))
		}
		return fmt.Errorf("replay orphan insert: %w", err)
	}

	w.logger.Info("Orphan voice job replayed",
		slog.String("voice_job_id", voiceJobID),
		slog.String("recording_id", msg.Orphan.RecordingID),
		slog.String("event_id", msg.EventID),
	)

	return nil
}

// markFailed moves a row to the failed state. Failure to record the failure
// is logged and swallowed; the caller's error is the one that matters.
func (w *Worker) markFailed(ctx context.Context, voiceJobID string) {
	status := store.StatusFailed
	if err := w.store.Update(ctx, voiceJobID, store.JobPatch{Status: &status}); err != nil {
		w.logger.Error("Failed to mark voice job failed",
			slog.String("voice_job_id", voiceJobID),
			slog.String("error", err.Error()),
		)
	}
}
