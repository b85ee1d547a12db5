package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gigline/voice-intake/internal/completion/domain"
	"github.com/gigline/voice-intake/internal/store"
	"github.com/gigline/voice-intake/shared/rabbitmq"
	"github.com/google/uuid"
)

// Gateway resolves transcripts for submitted transcription jobs.
type Gateway interface {
	FetchResult(ctx context.Context, eventID string) (string, bool, error)
}

// JobStore is the persistence surface the worker needs.
type JobStore interface {
	Create(ctx context.Context, job *store.VoiceJob) (string, error)
	GetByEventID(ctx context.Context, eventID string) (*store.VoiceJob, error)
	Update(ctx context.Context, voiceJobID string, patch store.JobPatch) error
}

// WorkerConfig holds completion worker configuration
type WorkerConfig struct {
	Logger         *slog.Logger
	Store          JobStore
	Gateway        Gateway
	RabbitClient   *rabbitmq.Client
	QueueName      string
	Concurrency    int
	PrefetchCount  int
	ProcessTimeout time.Duration

	// MaxAttempts bounds deliveries per message; a retryable failure on the
	// final attempt moves the row to failed instead of requeueing again.
	MaxAttempts int

	// RequeueDelay spaces out redeliveries so a pending transcript is
	// polled on an interval instead of in a tight loop.
	RequeueDelay time.Duration
}

// Worker consumes the completion queue and moves voice jobs to their
// terminal state.
type Worker struct {
	logger         *slog.Logger
	store          JobStore
	gateway        Gateway
	rabbitClient   *rabbitmq.Client
	queueName      string
	concurrency    int
	prefetchCount  int
	processTimeout time.Duration
	maxAttempts    int
	requeueDelay   time.Duration
	workerID       string
	msgsChan       chan *domain.Message
	wg             sync.WaitGroup
	stopChan       chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *WorkerConfig) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	requeueDelay := cfg.RequeueDelay
	if requeueDelay <= 0 {
		requeueDelay = 10 * time.Second
	}

	return &Worker{
		logger:         cfg.Logger,
		store:          cfg.Store,
		gateway:        cfg.Gateway,
		rabbitClient:   cfg.RabbitClient,
		queueName:      cfg.QueueName,
		concurrency:    concurrency,
		prefetchCount:  cfg.PrefetchCount,
		processTimeout: cfg.ProcessTimeout,
		maxAttempts:    maxAttempts,
		requeueDelay:   requeueDelay,
		workerID:       "completion-worker-" + uuid.New().String()[:8],
		msgsChan:       make(chan *domain.Message, concurrency),
		stopChan:       make(chan struct{}),
	}
}

// Start subscribes to the completion queue and processes messages until the
// context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting completion worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("process_timeout", w.processTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	w.logger.Info("Completion worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping completion worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Completion worker stopped")
}

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.msgsChan:
			if !ok {
				return
			}

			processCtx, cancel := context.WithTimeout(ctx, w.processTimeout)
			err := w.processMessage(processCtx, msg)
			cancel()

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("event_id", msg.EventID),
				)
				continue
			}

			if err != nil {
				w.logger.Error("Message processing failed",
					slog.String("worker_name", workerName),
					slog.String("event_id", msg.EventID),
					slog.String("kind", msg.Kind),
					slog.String("error", err.Error()),
				)

				if w.shouldRequeue(err) {
					w.requeueMessage(ctx, msg)
					continue
				}

				if nackErr := channel.Nack(msg.DeliveryTag, false, false); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("error", nackErr.Error()),
					)
				} else {
					w.logger.Info("Message dropped",
						slog.String("worker_name", workerName),
						slog.String("event_id", msg.EventID),
					)
				}
				continue
			}

			if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("error", ackErr.Error()),
				)
			} else {
				w.logger.Info("Message processed",
					slog.String("worker_name", workerName),
					slog.String("event_id", msg.EventID),
					slog.String("kind", msg.Kind),
				)
			}
		}
	}
}

// shouldRequeue determines if a message should be requeued based on the error type
func (w *Worker) shouldRequeue(err error) bool {
	// Malformed messages never get a second delivery
	if errors.Is(err, domain.ErrInvalidMessage) {
		return false
	}

	// Delivery budget spent; the terminal outcome is already recorded
	if errors.Is(err, domain.ErrAttemptsExhausted) {
		return false
	}

	// Transcript still pending or transient infrastructure failure
	var retryableErr *domain.RetryableError
	if errors.As(err, &retryableErr) {
		return true
	}

	// Default: don't requeue for unknown errors
	return false
}

// requeueMessage puts a failed message back on the queue with its attempt
// counter bumped, after a pacing delay. A classic Nack would redeliver
// immediately and without any attempt accounting, so the message is
// republished instead and the original delivery acked.
func (w *Worker) requeueMessage(ctx context.Context, msg *domain.Message) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		w.logger.Error("Failed to get RabbitMQ channel for requeue",
			slog.String("event_id", msg.EventID),
		)
		return
	}

	shutdownNack := func() {
		// Shutting down; hand the message straight back unchanged
		if nackErr := channel.Nack(msg.DeliveryTag, false, true); nackErr != nil {
			w.logger.Error("Failed to NACK message on shutdown",
				slog.String("error", nackErr.Error()),
			)
		}
	}

	select {
	case <-time.After(w.requeueDelay):
	case <-w.stopChan:
		shutdownNack()
		return
	case <-ctx.Done():
		shutdownNack()
		return
	}

	next := *msg
	next.Attempt = msg.Attempt + 1

	body, err := json.Marshal(&next)
	if err != nil {
		w.logger.Error("Failed to marshal message for requeue",
			slog.String("event_id", msg.EventID),
			slog.String("error", err.Error()),
		)
		_ = channel.Nack(msg.DeliveryTag, false, false)
		return
	}

	if err := w.rabbitClient.Publish(ctx, body, "application/json"); err != nil {
		w.logger.Error("Failed to republish message, falling back to broker requeue",
			slog.String("event_id", msg.EventID),
			slog.String("error", err.Error()),
		)
		if nackErr := channel.Nack(msg.DeliveryTag, false, true); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
		w.logger.Error("Failed to ACK message after republish",
			slog.String("error", ackErr.Error()),
		)
		return
	}

	w.logger.Info("Message requeued",
		slog.String("kind", msg.Kind),
		slog.String("event_id", msg.EventID),
		slog.Int("attempt", next.Attempt),
		slog.Int("max_attempts", w.maxAttempts),
	)
}
