package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gigline/voice-intake/internal/category"
	"github.com/gigline/voice-intake/internal/completion/domain"
	"github.com/gigline/voice-intake/internal/store"
	"github.com/gigline/voice-intake/internal/transcription"
	"github.com/gigline/voice-intake/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	jobs      map[string]*store.VoiceJob
	created   []*store.VoiceJob
	updates   map[string]store.JobPatch
	createErr error
	updateErr error
	getErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:    make(map[string]*store.VoiceJob),
		updates: make(map[string]store.JobPatch),
	}
}

func (f *fakeStore) Create(_ context.Context, job *store.VoiceJob) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, job)
	return "vj-replayed", nil
}

func (f *fakeStore) GetByEventID(_ context.Context, eventID string) (*store.VoiceJob, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	job, ok := f.jobs[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeStore) Update(_ context.Context, voiceJobID string, patch store.JobPatch) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates[voiceJobID] = patch
	return nil
}

type fakeGateway struct {
	transcript string
	ready      bool
	err        error
	calls      int
}

func (f *fakeGateway) FetchResult(_ context.Context, _ string) (string, bool, error) {
	f.calls++
	return f.transcript, f.ready, f.err
}

func newTestWorker(st *fakeStore, gw *fakeGateway) *Worker {
	return NewWorker(&WorkerConfig{
		Logger:         logger.NewNop().Logger,
		Store:          st,
		Gateway:        gw,
		QueueName:      "voice_completions",
		Concurrency:    2,
		PrefetchCount:  5,
		ProcessTimeout: 30 * time.Second,
	})
}

func processingJob(eventID string) *store.VoiceJob {
	return &store.VoiceJob{
		VoiceJobID:           "vj-1",
		CallerPhone:          "+27821234567",
		RecordingID:          "RE1",
		TranscriptionEventID: eventID,
		Status:               store.StatusProcessing,
	}
}

func TestProcessCompletion_InlineTranscript(t *testing.T) {
	st := newFakeStore()
	st.jobs["evt-1"] = processingJob("evt-1")
	gw := &fakeGateway{}
	w := newTestWorker(st, gw)

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:       domain.KindCompletion,
		EventID:    "evt-1",
		Transcript: "I need someone to fix my roof",
	})

	require.NoError(t, err)
	assert.Zero(t, gw.calls, "inline transcript should skip the gateway")

	patch, ok := st.updates["vj-1"]
	require.True(t, ok)
	require.NotNil(t, patch.Status)
	assert.Equal(t, store.StatusCompleted, *patch.Status)
	require.NotNil(t, patch.Transcription)
	assert.Equal(t, "I need someone to fix my roof", *patch.Transcription)
	require.NotNil(t, patch.Category)
	assert.Equal(t, category.JobPosting, *patch.Category)
	require.NotNil(t, patch.CategoryConfidence)
	assert.InDelta(t, 0.75, *patch.CategoryConfidence, 1e-9)
	require.NotNil(t, patch.CategoryIndicators)
	assert.Contains(t, *patch.CategoryIndicators, "need_someone_to")
}

func TestProcessCompletion_FetchesTranscript(t *testing.T) {
	st := newFakeStore()
	st.jobs["evt-2"] = processingJob("evt-2")
	gw := &fakeGateway{transcript: "I am looking for work as a plumber", ready: true}
	w := newTestWorker(st, gw)

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:    domain.KindCompletion,
		EventID: "evt-2",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, gw.calls)

	patch := st.updates["vj-1"]
	require.NotNil(t, patch.Category)
	assert.Equal(t, category.WorkRequest, *patch.Category)
}

func TestProcessCompletion_TranscriptNotReady(t *testing.T) {
	st := newFakeStore()
	st.jobs["evt-3"] = processingJob("evt-3")
	w := newTestWorker(st, &fakeGateway{ready: false})

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:    domain.KindCompletion,
		EventID: "evt-3",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTranscriptNotReady)
	assert.True(t, w.shouldRequeue(err), "pending transcript should requeue")
	assert.Empty(t, st.updates)
}

func TestProcessCompletion_GatewayRejectsEvent(t *testing.T) {
	st := newFakeStore()
	st.jobs["evt-4"] = processingJob("evt-4")
	gw := &fakeGateway{err: &transcription.GatewayError{StatusCode: 404}}
	w := newTestWorker(st, gw)

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:    domain.KindCompletion,
		EventID: "evt-4",
	})

	require.Error(t, err)
	assert.False(t, w.shouldRequeue(err), "rejected event should not requeue")

	patch, ok := st.updates["vj-1"]
	require.True(t, ok, "job should be marked failed")
	require.NotNil(t, patch.Status)
	assert.Equal(t, store.StatusFailed, *patch.Status)
}

func TestProcessCompletion_GatewayTransientError(t *testing.T) {
	st := newFakeStore()
	st.jobs["evt-5"] = processingJob("evt-5")
	gw := &fakeGateway{err: &transcription.GatewayError{StatusCode: 503}}
	w := newTestWorker(st, gw)

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:    domain.KindCompletion,
		EventID: "evt-5",
	})

	require.Error(t, err)
	assert.True(t, w.shouldRequeue(err))
	assert.Empty(t, st.updates, "transient failure must not finalize the row")
}

func TestProcessCompletion_UnknownEvent(t *testing.T) {
	w := newTestWorker(newFakeStore(), &fakeGateway{})

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:    domain.KindCompletion,
		EventID: "evt-missing",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
	assert.False(t, w.shouldRequeue(err))
}

func TestProcessCompletion_StoreLookupConnectivity(t *testing.T) {
	st := newFakeStore()
	st.getErr = &store.ConnectivityError{Err: errors.New("connection refused")}
	w := newTestWorker(st, &fakeGateway{})

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:    domain.KindCompletion,
		EventID: "evt-6",
	})

	require.Error(t, err)
	assert.True(t, w.shouldRequeue(err), "store connectivity failures should requeue")
}

func TestProcessCompletion_AlreadyFinalized(t *testing.T) {
	st := newFakeStore()
	job := processingJob("evt-7")
	job.Status = store.StatusCompleted
	st.jobs["evt-7"] = job
	gw := &fakeGateway{}
	w := newTestWorker(st, gw)

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:       domain.KindCompletion,
		EventID:    "evt-7",
		Transcript: "I need a job",
	})

	require.NoError(t, err)
	assert.Empty(t, st.updates, "terminal rows stay untouched on redelivery")
	assert.Zero(t, gw.calls)
}

func TestProcessCompletion_MissingEventID(t *testing.T) {
	w := newTestWorker(newFakeStore(), &fakeGateway{})

	err := w.processMessage(context.Background(), &domain.Message{Kind: domain.KindCompletion})

	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestProcessOrphan_ReplaysInsert(t *testing.T) {
	st := newFakeStore()
	w := newTestWorker(st, &fakeGateway{})

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:    domain.KindOrphan,
		EventID: "evt-8",
		Orphan: &domain.OrphanRecord{
			CallerPhone:  "+27821234567",
			RecordingID:  "RE8",
			RecordingURL: "https://provider.example.com/RE8",
		},
	})

	require.NoError(t, err)
	require.Len(t, st.created, 1)
	assert.Equal(t, "RE8", st.created[0].RecordingID)
	assert.Equal(t, "evt-8", st.created[0].TranscriptionEventID)
	assert.Equal(t, store.StatusProcessing, st.created[0].Status)
}

func TestProcessOrphan_MissingRecord(t *testing.T) {
	w := newTestWorker(newFakeStore(), &fakeGateway{})

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:    domain.KindOrphan,
		EventID: "evt-9",
	})

	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
	assert.False(t, w.shouldRequeue(err))
}

func TestProcessOrphan_StoreDown(t *testing.T) {
	st := newFakeStore()
	st.createErr = &store.ConnectivityError{Err: errors.New("connection refused")}
	w := newTestWorker(st, &fakeGateway{})

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:    domain.KindOrphan,
		EventID: "evt-10",
		Orphan:  &domain.OrphanRecord{RecordingID: "RE10"},
	})

	require.Error(t, err)
	assert.True(t, w.shouldRequeue(err))
}

func TestProcessCompletion_PendingTranscriptExhaustsDeliveryBudget(t *testing.T) {
	st := newFakeStore()
	st.jobs["evt-11"] = processingJob("evt-11")
	gw := &fakeGateway{ready: false}
	w := NewWorker(&WorkerConfig{
		Logger:         logger.NewNop().Logger,
		Store:          st,
		Gateway:        gw,
		Concurrency:    1,
		MaxAttempts:    3,
		ProcessTimeout: 30 * time.Second,
	})

	// Replay the redelivery sequence: each requeue bumps the attempt
	// counter until the budget runs out.
	deliveries := 0
	for attempt := 0; ; attempt++ {
		deliveries++
		err := w.processMessage(context.Background(), &domain.Message{
			Kind:    domain.KindCompletion,
			EventID: "evt-11",
			Attempt: attempt,
		})
		require.Error(t, err)
		if !w.shouldRequeue(err) {
			assert.ErrorIs(t, err, domain.ErrAttemptsExhausted)
			break
		}
		require.Less(t, deliveries, 100, "requeue loop must terminate")
	}

	assert.Equal(t, 3, deliveries)

	patch, ok := st.updates["vj-1"]
	require.True(t, ok, "exhausted completion must move the row to failed")
	require.NotNil(t, patch.Status)
	assert.Equal(t, store.StatusFailed, *patch.Status)
}

func TestProcessCompletion_BudgetNotExhaustedStillRequeues(t *testing.T) {
	st := newFakeStore()
	st.jobs["evt-12"] = processingJob("evt-12")
	w := newTestWorker(st, &fakeGateway{ready: false})

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:    domain.KindCompletion,
		EventID: "evt-12",
		Attempt: 1,
	})

	require.Error(t, err)
	assert.True(t, w.shouldRequeue(err))
	assert.Empty(t, st.updates, "row stays processing while deliveries remain")
}

func TestProcessOrphan_ExhaustedReplayIsDropped(t *testing.T) {
	st := newFakeStore()
	st.createErr = &store.ConnectivityError{Err: errors.New("connection refused")}
	w := NewWorker(&WorkerConfig{
		Logger:         logger.NewNop().Logger,
		Store:          st,
		Gateway:        &fakeGateway{},
		Concurrency:    1,
		MaxAttempts:    2,
		ProcessTimeout: 30 * time.Second,
	})

	err := w.processMessage(context.Background(), &domain.Message{
		Kind:    domain.KindOrphan,
		EventID: "evt-13",
		Attempt: 1,
		Orphan:  &domain.OrphanRecord{RecordingID: "RE13"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAttemptsExhausted)
	assert.False(t, w.shouldRequeue(err))
	assert.Empty(t, st.created)
}

func TestProcessMessage_UnknownKind(t *testing.T) {
	w := newTestWorker(newFakeStore(), &fakeGateway{})

	err := w.processMessage(context.Background(), &domain.Message{Kind: "mystery"})

	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
	assert.False(t, w.shouldRequeue(err))
}
