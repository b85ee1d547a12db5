package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Notifier fires the asynchronous completion trigger. The call is
// best-effort by contract: it runs detached from the webhook response path
// with a bounded timeout, and failures are logged, never propagated. The
// orchestrator's own success is "record persisted", not "completion
// triggered".
type Notifier struct {
	notifyURL  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewNotifier creates a Notifier for the completion collaborator endpoint.
func NewNotifier(notifyURL string, timeout time.Duration, logger *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &Notifier{
		notifyURL:  notifyURL,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Notify posts the event id to the completion collaborator in a detached
// goroutine and returns immediately.
func (n *Notifier) Notify(eventID string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.post(eventID)
	}()
}

// Wait blocks until all in-flight notifications finish; used on shutdown
// and in tests.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) post(eventID string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"event_id": eventID})
	if err != nil {
		n.logger.Error("Failed to encode completion notification",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.notifyURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("Failed to build completion notification",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("Completion notification failed",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("Completion notification rejected",
			slog.String("event_id", eventID),
			slog.Int("status", resp.StatusCode),
		)
		return
	}

	n.logger.Debug("Completion notification sent",
		slog.String("event_id", eventID),
	)
}
