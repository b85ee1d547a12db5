package handler

import (
	"context"
	"log/slog"

	"github.com/gigline/voice-intake/internal/intake/orchestrator"
)

// Ingestor runs the recording pipeline for one webhook delivery.
type Ingestor interface {
	Ingest(ctx context.Context, cb orchestrator.Callback) (*orchestrator.Result, error)
}

// Verifier is the opaque OTP provider surface.
type Verifier interface {
	Send(ctx context.Context, phoneNumber string) (string, error)
	Verify(ctx context.Context, phoneNumber, code string) (bool, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Ingestor   Ingestor
	Verifier   Verifier
	HealthFunc func(ctx context.Context) error
}

// RecordingHandler handles the telephony webhook
type RecordingHandler struct {
	logger   *slog.Logger
	ingestor Ingestor
}

// NewRecordingHandler creates a new RecordingHandler instance
func NewRecordingHandler(deps *Dependencies) *RecordingHandler {
	return &RecordingHandler{
		logger:   deps.Logger,
		ingestor: deps.Ingestor,
	}
}

// OTPHandler handles the OTP passthrough endpoints
type OTPHandler struct {
	logger   *slog.Logger
	verifier Verifier
}

// NewOTPHandler creates a new OTPHandler instance
func NewOTPHandler(deps *Dependencies) *OTPHandler {
	return &OTPHandler{
		logger:   deps.Logger,
		verifier: deps.Verifier,
	}
}
