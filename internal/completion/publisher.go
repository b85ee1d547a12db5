package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gigline/voice-intake/internal/completion/domain"
	"github.com/gigline/voice-intake/shared/rabbitmq"
)

// Publisher puts completion and orphan messages on the queue.
type Publisher struct {
	rabbitClient *rabbitmq.Client
	logger       *slog.Logger
}

// NewPublisher creates a Publisher on an established RabbitMQ client.
func NewPublisher(rabbitClient *rabbitmq.Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		rabbitClient: rabbitClient,
		logger:       logger,
	}
}

// PublishCompletion enqueues a completion message for an event id. The
// transcript may be empty, in which case the worker fetches it from the
// gateway.
func (p *Publisher) PublishCompletion(ctx context.Context, eventID, transcript string) error {
	return p.publish(ctx, &domain.Message{
		Kind:       domain.KindCompletion,
		EventID:    eventID,
		Transcript: transcript,
	})
}

// PublishOrphan enqueues an orphan message so the worker can replay a row
// insert the intake service could not persist.
func (p *Publisher) PublishOrphan(ctx context.Context, eventID string, orphan *domain.OrphanRecord) error {
	return p.publish(ctx, &domain.Message{
		Kind:    domain.KindOrphan,
		EventID: eventID,
		Orphan:  orphan,
	})
}

func (p *Publisher) publish(ctx context.Context, msg *domain.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal completion message: %w", err)
	}

	if err := p.rabbitClient.Publish(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("publish completion message: %w", err)
	}

	p.logger.Debug("Completion message published",
		slog.String("kind", msg.Kind),
		slog.String("event_id", msg.EventID),
	)

	return nil
}
