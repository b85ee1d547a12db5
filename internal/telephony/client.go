package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds the telephony provider API settings.
type Config struct {
	BaseURL        string
	AccountSID     string
	AuthToken      string
	RequestTimeout time.Duration
	MaxRetries     int
}

// Client talks to the telephony provider REST API: call metadata lookups and
// recording downloads, both behind basic auth.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Call is the provider's call metadata for a single call leg.
type Call struct {
	SID    string `json:"sid"`
	From   string `json:"from"`
	To     string `json:"to"`
	Status string `json:"status"`
}

// FetchError reports a failed provider request. StatusCode is zero when the
// transfer failed before a response arrived.
type FetchError struct {
	Resource   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("telephony fetch failed for %s: status %d", e.Resource, e.StatusCode)
	}
	return fmt.Sprintf("telephony fetch failed for %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewClient creates a telephony client from injected configuration.
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// GetCall looks up call metadata by call id, primarily to recover the
// caller's phone number at ingestion time.
func (c *Client) GetCall(ctx context.Context, callID string) (*Call, error) {
	url := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json",
		strings.TrimRight(c.config.BaseURL, "/"), c.config.AccountSID, callID)

	body, err := c.fetch(ctx, url, "call "+callID)
	if err != nil {
		return nil, err
	}

	var call Call
	if err := json.Unmarshal(body, &call); err != nil {
		return nil, &FetchError{Resource: "call " + callID, Err: fmt.Errorf("decode call metadata: %w", err)}
	}

	return &call, nil
}

// FetchRecording downloads the raw audio bytes for a finished recording.
// The whole payload is read into memory; the provider imposes its own
// duration limits, this client caps nothing.
func (c *Client) FetchRecording(ctx context.Context, recordingID string) ([]byte, error) {
	url := fmt.Sprintf("%s/Accounts/%s/Recordings/%s.mp3",
		strings.TrimRight(c.config.BaseURL, "/"), c.config.AccountSID, recordingID)

	return c.fetch(ctx, url, "recording "+recordingID)
}

// fetch performs an authenticated GET with bounded retries. Non-success
// statuses below 500 are permanent; 5xx and transport errors are retried.
func (c *Client) fetch(ctx context.Context, url, resource string) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(&FetchError{Resource: resource, Err: err})
		}
		req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &FetchError{Resource: resource, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return &FetchError{Resource: resource, StatusCode: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(&FetchError{Resource: resource, StatusCode: resp.StatusCode})
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return &FetchError{Resource: resource, Err: fmt.Errorf("read response: %w", err)}
		}

		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries())), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		c.logger.Error("Telephony fetch failed",
			slog.String("resource", resource),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.logger.Debug("Telephony fetch succeeded",
		slog.String("resource", resource),
		slog.Int("bytes", len(body)),
	)

	return body, nil
}

func (c *Client) maxRetries() int {
	if c.config.MaxRetries <= 0 {
		return 3
	}
	return c.config.MaxRetries
}
