package dto

// RecordingCallbackRequest is the telephony provider's call-completion
// payload. The provider posts it form-encoded; JSON is accepted too.
type RecordingCallbackRequest struct {
	RecordingSid string `form:"RecordingSid" json:"RecordingSid" binding:"required"`
	CallSid      string `form:"CallSid" json:"CallSid" binding:"required"`
	RecordingUrl string `form:"RecordingUrl" json:"RecordingUrl" binding:"required"`
}

// RecordingCallbackResponse acknowledges a webhook delivery. Both the
// success and error shapes ride on a 200-class status so the provider never
// redelivers for transient downstream failures.
type RecordingCallbackResponse struct {
	Success bool   `json:"success,omitempty"`
	EventID string `json:"eventId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendCodeRequest asks the verification provider to deliver an OTP.
type SendCodeRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
}

// VerifyCodeRequest checks an OTP against the verification provider.
type VerifyCodeRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
	Code        string `json:"code" binding:"required"`
}
