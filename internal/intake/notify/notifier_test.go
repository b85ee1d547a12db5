package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gigline/voice-intake/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_Notify(t *testing.T) {
	received := make(chan map[string]string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received <- body
	}))
	defer server.Close()

	n := NewNotifier(server.URL, time.Second, logger.NewNop().Logger)
	n.Notify("evt-42")
	n.Wait()

	select {
	case body := <-received:
		assert.Equal(t, "evt-42", body["event_id"])
	default:
		t.Fatal("notification never arrived")
	}
}

func TestNotifier_Notify_ErrorsAreSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, time.Second, logger.NewNop().Logger)

	// Must not panic or block the caller.
	n.Notify("evt-broken")
	n.Wait()
}

func TestNotifier_Notify_UnreachableEndpoint(t *testing.T) {
	n := NewNotifier("http://127.0.0.1:1/nope", 200*time.Millisecond, logger.NewNop().Logger)

	done := make(chan struct{})
	go func() {
		n.Notify("evt-unreachable")
		n.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier blocked past its timeout")
	}
}
