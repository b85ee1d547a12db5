package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusApproved is the provider sentinel a verification check must return
// for the code to be treated as valid.
const StatusApproved = "approved"

// codeNotFound is the provider error code for an expired or unknown
// verification code.
const codeNotFound = 20404

// ErrCodeExpired means the provider no longer knows the code: it expired,
// was already used, or never existed. Callers map this to a client error.
var ErrCodeExpired = errors.New("verification code expired or not found")

// Config holds the OTP verification provider settings.
type Config struct {
	BaseURL        string
	AccountSID     string
	AuthToken      string
	ServiceSID     string
	RequestTimeout time.Duration
}

// Client is a thin passthrough to the opaque verification provider. It sends
// codes and checks them; delivery mechanics stay on the provider side.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

type statusResponse struct {
	Status string `json:"status"`
	Code   int    `json:"code"`
}

// NewClient creates a verification client from injected configuration.
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Send asks the provider to deliver a one-time code to the phone number and
// returns the provider's status string.
func (c *Client) Send(ctx context.Context, phoneNumber string) (string, error) {
	form := url.Values{}
	form.Set("To", phoneNumber)
	form.Set("Channel", "sms")

	resp, err := c.postForm(ctx, "/Verifications", form)
	if err != nil {
		return "", err
	}

	return resp.Status, nil
}

// Verify checks a code against the provider. It returns true only when the
// provider reports the approved sentinel. ErrCodeExpired is returned for the
// provider's not-found/expired code so callers can reject with a client
// error instead of a server error.
func (c *Client) Verify(ctx context.Context, phoneNumber, code string) (bool, error) {
	form := url.Values{}
	form.Set("To", phoneNumber)
	form.Set("Code", code)

	resp, err := c.postForm(ctx, "/VerificationCheck", form)
	if err != nil {
		return false, err
	}

	return resp.Status == StatusApproved, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*statusResponse, error) {
	endpoint := fmt.Sprintf("%s/Services/%s%s",
		strings.TrimRight(c.config.BaseURL, "/"), c.config.ServiceSID, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verification provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read verification response: %w", err)
	}

	var decoded statusResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("decode verification response: %w", err)
		}
	}

	if decoded.Code == codeNotFound {
		return nil, ErrCodeExpired
	}
	if resp.StatusCode >= 400 {
		c.logger.Warn("Verification provider rejected request",
			slog.Int("status", resp.StatusCode),
			slog.Int("provider_code", decoded.Code),
		)
		return nil, fmt.Errorf("verification provider error: status %d", resp.StatusCode)
	}

	return &decoded, nil
}
