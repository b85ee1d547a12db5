package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigline/voice-intake/internal/completion/domain"
	"github.com/gigline/voice-intake/internal/store"
	"github.com/gigline/voice-intake/internal/telephony"
)

// Telephony covers the provider lookups the pipeline needs: the originating
// call (for the caller's phone number) and the finished recording's bytes.
type Telephony interface {
	GetCall(ctx context.Context, callID string) (*telephony.Call, error)
	FetchRecording(ctx context.Context, recordingID string) ([]byte, error)
}

// Gateway submits audio for asynchronous transcription.
type Gateway interface {
	Submit(ctx context.Context, audio []byte, filename, mimeType string) (string, error)
}

// JobStore persists the initial voice job row.
type JobStore interface {
	Create(ctx context.Context, job *store.VoiceJob) (string, error)
}

// Notifier fires the best-effort completion trigger.
type Notifier interface {
	Notify(eventID string)
}

// OrphanReporter flags a transcription job that is running externally with
// no corresponding row, so a collaborator can reconcile it.
type OrphanReporter interface {
	PublishOrphan(ctx context.Context, eventID string, orphan *domain.OrphanRecord) error
}

// Callback is the provider's call-completion payload.
type Callback struct {
	RecordingID  string
	CallID       string
	RecordingURL string
}

// Result is returned once the record is persisted.
type Result struct {
	VoiceJobID string
	EventID    string
}

// Orchestrator sequences one webhook invocation through the pipeline:
// fetch the recording, submit it for transcription, persist the processing
// row, then trigger completion best-effort. Strictly linear; each invocation
// is self-contained and shares no state with concurrent ones.
type Orchestrator struct {
	telephony Telephony
	gateway   Gateway
	store     JobStore
	notifier  Notifier
	orphans   OrphanReporter
	logger    *slog.Logger
}

// Dependencies holds everything an Orchestrator needs.
type Dependencies struct {
	Telephony Telephony
	Gateway   Gateway
	Store     JobStore
	Notifier  Notifier
	Orphans   OrphanReporter
	Logger    *slog.Logger
}

// New creates an Orchestrator.
func New(deps *Dependencies) *Orchestrator {
	return &Orchestrator{
		telephony: deps.Telephony,
		gateway:   deps.Gateway,
		store:     deps.Store,
		notifier:  deps.Notifier,
		orphans:   deps.Orphans,
		logger:    deps.Logger,
	}
}

// Ingest runs the pipeline for one finished recording. Failures before the
// store write abort with no side effects; a store failure after a successful
// submit additionally reports an orphaned transcription job before
// returning. The notifier call never affects the outcome.
func (o *Orchestrator) Ingest(ctx context.Context, cb Callback) (*Result, error) {
	call, err := o.telephony.GetCall(ctx, cb.CallID)
	if err != nil {
		return nil, fmt.Errorf("look up call %s: %w", cb.CallID, err)
	}

	audio, err := o.telephony.FetchRecording(ctx, cb.RecordingID)
	if err != nil {
		return nil, fmt.Errorf("fetch recording %s: %w", cb.RecordingID, err)
	}

	o.logger.Info("Recording fetched",
		slog.String("recording_id", cb.RecordingID),
		slog.String("caller", call.From),
		slog.Int("bytes", len(audio)),
	)

	eventID, err := o.gateway.Submit(ctx, audio, cb.RecordingID+".mp3", "audio/mpeg")
	if err != nil {
		return nil, fmt.Errorf("submit recording %s for transcription: %w", cb.RecordingID, err)
	}

	voiceJobID, err := o.store.Create(ctx, &store.VoiceJob{
		CallerPhone:          call.From,
		RecordingID:          cb.RecordingID,
		RecordingURL:         cb.RecordingURL,
		TranscriptionEventID: eventID,
		Status:               store.StatusProcessing,
	})
	if err != nil {
		// The transcription job is already running externally with no row
		// to land on. Flag it for reconciliation before surfacing the error.
		o.reportOrphan(eventID, cb, call.From)
		return nil, fmt.Errorf("persist voice job for recording %s: %w", cb.RecordingID, err)
	}

	o.notifier.Notify(eventID)

	o.logger.Info("Voice job ingested",
		slog.String("voice_job_id", voiceJobID),
		slog.String("recording_id", cb.RecordingID),
		slog.String("event_id", eventID),
	)

	return &Result{VoiceJobID: voiceJobID, EventID: eventID}, nil
}

func (o *Orchestrator) reportOrphan(eventID string, cb Callback, callerPhone string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := o.orphans.PublishOrphan(ctx, eventID, &domain.OrphanRecord{
		CallerPhone:  callerPhone,
		RecordingID:  cb.RecordingID,
		RecordingURL: cb.RecordingURL,
	})
	if err != nil {
		o.logger.Error("Orphaned transcription job could not be reported",
			slog.String("event_id", eventID),
			slog.String("recording_id", cb.RecordingID),
			slog.String("error", err.Error()),
		)
		return
	}

	o.logger.Warn("Orphaned transcription job reported for reconciliation",
		slog.String("event_id", eventID),
		slog.String("recording_id", cb.RecordingID),
	)
}
