package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gigline/voice-intake/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&Config{
		BaseURL:    baseURL,
		AccountSID: "AC123",
		AuthToken:  "secret",
		MaxRetries: 2,
	}, logger.NewNop().Logger)
}

func TestClient_GetCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Accounts/AC123/Calls/CA999.json", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sid":"CA999","from":"+27821234567","to":"+27101234567","status":"completed"}`))
	}))
	defer server.Close()

	call, err := newTestClient(server.URL).GetCall(context.Background(), "CA999")

	require.NoError(t, err)
	assert.Equal(t, "CA999", call.SID)
	assert.Equal(t, "+27821234567", call.From)
}

func TestClient_FetchRecording(t *testing.T) {
	audio := []byte("fake-mp3-bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Accounts/AC123/Recordings/RE111.mp3", r.URL.Path)
		w.Write(audio)
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).FetchRecording(context.Background(), "RE111")

	require.NoError(t, err)
	assert.Equal(t, audio, got)
}

func TestClient_FetchRecording_NotFoundIsPermanent(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchRecording(context.Background(), "RE404")

	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)

	// 4xx must not be retried
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_FetchRecording_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("audio"))
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).FetchRecording(context.Background(), "RE502")

	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), got)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_FetchRecording_ExhaustsRetries(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchRecording(context.Background(), "RE500")

	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)

	// initial attempt + MaxRetries
	assert.Equal(t, int32(3), hits.Load())
}
