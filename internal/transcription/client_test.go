package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gigline/voice-intake/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&Config{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		JobName:    "transcribe-voice-note",
		MaxRetries: 1,
	}, logger.NewNop().Logger)
}

func TestClient_Submit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/upload":
			err := r.ParseMultipartForm(1 << 20)
			require.NoError(t, err)

			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "RE111.mp3", header.Filename)

			json.NewEncoder(w).Encode(map[string]string{"path": "/storage/RE111.mp3"})

		case "/call/transcribe-voice-note":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "/storage/RE111.mp3", body["audio_path"])

			json.NewEncoder(w).Encode(map[string]string{"event_id": "evt-abc123"})

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	eventID, err := newTestClient(server.URL).Submit(context.Background(), []byte("audio"), "RE111.mp3", "audio/mpeg")

	require.NoError(t, err)
	assert.Equal(t, "evt-abc123", eventID)
}

func TestClient_Submit_UploadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Submit(context.Background(), []byte("audio"), "a.mp3", "audio/mpeg")

	require.Error(t, err)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, StageUpload, gwErr.Stage)
	assert.Equal(t, http.StatusForbidden, gwErr.StatusCode)
}

func TestClient_Submit_SubmitFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/upload" {
			json.NewEncoder(w).Encode(map[string]string{"path": "/storage/a.mp3"})
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Submit(context.Background(), []byte("audio"), "a.mp3", "audio/mpeg")

	require.Error(t, err)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, StageSubmit, gwErr.Stage)
}

func TestClient_Submit_TruncatedResponse(t *testing.T) {
	// Advertise a body the handler never delivers; the client's read fails
	// mid-stream instead of surfacing a JSON decode error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "500")
		w.Write([]byte(`{"path":`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Submit(context.Background(), []byte("audio"), "a.mp3", "audio/mpeg")

	require.Error(t, err)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, StageUpload, gwErr.Stage)
	assert.Contains(t, err.Error(), "read response")
}

func TestClient_Submit_EmptyEventID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/upload" {
			json.NewEncoder(w).Encode(map[string]string{"path": "/storage/a.mp3"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Submit(context.Background(), []byte("audio"), "a.mp3", "audio/mpeg")

	require.Error(t, err)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, StageSubmit, gwErr.Stage)
}

func TestClient_FetchResult(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		body           string
		wantTranscript string
		wantDone       bool
		wantErr        bool
	}{
		{
			name:           "finished",
			status:         http.StatusOK,
			body:           `{"transcript":"I need a job"}`,
			wantTranscript: "I need a job",
			wantDone:       true,
		},
		{
			name:     "still processing",
			status:   http.StatusAccepted,
			wantDone: false,
		},
		{
			name:    "unknown event",
			status:  http.StatusNotFound,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/result/evt-1", r.URL.Path)
				w.WriteHeader(tt.status)
				if tt.body != "" {
					w.Write([]byte(tt.body))
				}
			}))
			defer server.Close()

			transcript, done, err := newTestClient(server.URL).FetchResult(context.Background(), "evt-1")

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantDone, done)
			assert.Equal(t, tt.wantTranscript, transcript)
		})
	}
}
