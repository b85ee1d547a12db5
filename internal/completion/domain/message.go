package domain

// Message kinds carried on the completion queue.
const (
	// KindCompletion asks the worker to finish a voice job: resolve the
	// transcript, categorize it, and move the row to a terminal state.
	KindCompletion = "completion"
	// KindOrphan asks the worker to replay an initial row insert that the
	// intake service could not persist after the transcription job was
	// already submitted.
	KindOrphan = "orphan"
)

// Message is the envelope published to the completion queue.
type Message struct {
	Kind       string        `json:"kind"`
	EventID    string        `json:"event_id"`
	Transcript string        `json:"transcript,omitempty"`
	Orphan     *OrphanRecord `json:"orphan,omitempty"`

	// Attempt counts prior deliveries of this message. The worker
	// increments it on every republish and gives up once it reaches the
	// configured ceiling.
	Attempt int `json:"attempt,omitempty"`

	// DeliveryTag correlates the message to its AMQP delivery for ack/nack.
	DeliveryTag uint64 `json:"-"`
}

// OrphanRecord carries everything needed to re-create the voice job row the
// intake service failed to write.
type OrphanRecord struct {
	CallerPhone  string `json:"caller_phone"`
	RecordingID  string `json:"recording_id"`
	RecordingURL string `json:"recording_url"`
}
