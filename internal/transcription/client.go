package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Stage identifies which half of the two-step submission protocol failed,
// so callers know whether a retry must re-upload or only resubmit.
type Stage string

const (
	StageUpload Stage = "upload"
	StageSubmit Stage = "submit"
	StageResult Stage = "result"
)

// Config holds the speech-to-text gateway settings.
type Config struct {
	BaseURL        string
	APIKey         string
	JobName        string
	RequestTimeout time.Duration
	MaxRetries     int
}

// Client submits audio to the transcription gateway. The gateway requires a
// two-call protocol: upload the raw bytes first, then reference the returned
// storage path in a transcription request. The transcript itself comes back
// asynchronously and is correlated by the returned event id.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// GatewayError reports a failed gateway call, tagged with the stage it
// failed in.
type GatewayError struct {
	Stage      Stage
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transcription gateway %s failed: status %d", e.Stage, e.StatusCode)
	}
	return fmt.Sprintf("transcription gateway %s failed: %v", e.Stage, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

type uploadResponse struct {
	Path string `json:"path"`
}

type submitResponse struct {
	EventID string `json:"event_id"`
}

type resultResponse struct {
	Transcript string `json:"transcript"`
}

// NewClient creates a gateway client from injected configuration.
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

// Submit uploads the audio and requests a transcription, returning the
// gateway's asynchronous event id.
func (c *Client) Submit(ctx context.Context, audio []byte, filename, mimeType string) (string, error) {
	path, err := c.upload(ctx, audio, filename, mimeType)
	if err != nil {
		return "", err
	}

	eventID, err := c.submit(ctx, path, filename)
	if err != nil {
		return "", err
	}

	c.logger.Info("Transcription submitted",
		slog.String("filename", filename),
		slog.String("event_id", eventID),
	)

	return eventID, nil
}

// upload POSTs the raw bytes as a multipart file and returns the gateway's
// storage path.
func (c *Client) upload(ctx context.Context, audio []byte, filename, mimeType string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", &GatewayError{Stage: StageUpload, Err: err}
	}
	if _, err := part.Write(audio); err != nil {
		return "", &GatewayError{Stage: StageUpload, Err: err}
	}
	if mimeType != "" {
		_ = writer.WriteField("content_type", mimeType)
	}
	if err := writer.Close(); err != nil {
		return "", &GatewayError{Stage: StageUpload, Err: err}
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/upload"

	var decoded uploadResponse
	if err := c.doJSON(ctx, StageUpload, endpoint, buf.Bytes(), writer.FormDataContentType(), &decoded); err != nil {
		return "", err
	}
	if decoded.Path == "" {
		return "", &GatewayError{Stage: StageUpload, Err: fmt.Errorf("gateway returned empty storage path")}
	}

	return decoded.Path, nil
}

// submit references the uploaded storage path and returns the async event id.
func (c *Client) submit(ctx context.Context, storagePath, filename string) (string, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/call/" + c.config.JobName

	payload, err := json.Marshal(map[string]string{
		"audio_path": storagePath,
		"filename":   filename,
	})
	if err != nil {
		return "", &GatewayError{Stage: StageSubmit, Err: err}
	}

	var decoded submitResponse
	if err := c.doJSON(ctx, StageSubmit, endpoint, payload, "application/json", &decoded); err != nil {
		return "", err
	}
	if decoded.EventID == "" {
		return "", &GatewayError{Stage: StageSubmit, Err: fmt.Errorf("gateway returned empty event id")}
	}

	return decoded.EventID, nil
}

// FetchResult retrieves the finished transcript for an event id. The second
// return value is false while the gateway is still processing.
func (c *Client) FetchResult(ctx context.Context, eventID string) (string, bool, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/result/" + eventID

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false, &GatewayError{Stage: StageResult, Err: err}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, &GatewayError{Stage: StageResult, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, &GatewayError{Stage: StageResult, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, &GatewayError{Stage: StageResult, Err: err}
	}

	var decoded resultResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", false, &GatewayError{Stage: StageResult, Err: fmt.Errorf("decode result: %w", err)}
	}

	return decoded.Transcript, true, nil
}

// doJSON POSTs a body and decodes the JSON response, retrying transport
// errors and 5xx with exponential backoff. 4xx responses are permanent.
func (c *Client) doJSON(ctx context.Context, stage Stage, endpoint string, body []byte, contentType string, target interface{}) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(&GatewayError{Stage: stage, Err: err})
		}
		req.Header.Set("Content-Type", contentType)
		c.authorize(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &GatewayError{Stage: stage, Err: err}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &GatewayError{Stage: stage, Err: fmt.Errorf("read response: %w", err)}
		}

		if resp.StatusCode >= 500 {
			return &GatewayError{Stage: stage, StatusCode: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(&GatewayError{Stage: stage, StatusCode: resp.StatusCode})
		}

		if err := json.Unmarshal(respBody, target); err != nil {
			return backoff.Permanent(&GatewayError{Stage: stage, Err: fmt.Errorf("decode response: %w", err)})
		}

		return nil
	}

	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxRetries)), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		c.logger.Error("Transcription gateway call failed",
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
		return err
	}

	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}
