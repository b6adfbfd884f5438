package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSender(t *testing.T) {
	msg := Message{PatientID: uuid.New(), OccurrenceID: uuid.New(), Message: "Time to take your blood pressure"}

	t.Run("posts the message as JSON", func(t *testing.T) {
		var got Message
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		sender := NewWebhookSender(srv.URL, time.Second, nil)
		require.NoError(t, sender.Send(context.Background(), msg))
		assert.Equal(t, msg, got)
	})

	t.Run("non-2xx is a delivery failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer srv.Close()

		err := NewWebhookSender(srv.URL, time.Second, nil).Send(context.Background(), msg)
		assert.ErrorIs(t, err, ErrDeliveryFailed)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("unreachable endpoint is a delivery failure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		err := NewWebhookSender(url, time.Second, nil).Send(context.Background(), msg)
		assert.ErrorIs(t, err, ErrDeliveryFailed)
	})
}

func TestLogSender(t *testing.T) {
	log, buf := logger.GetTestLogger(t)
	msg := Message{PatientID: uuid.New(), OccurrenceID: uuid.New(), Message: "Drink a glass of water"}

	require.NoError(t, NewLogSender(log).Send(context.Background(), msg))

	logger.AssertLogField(t, buf, "occurrence_id", msg.OccurrenceID.String())
	logger.AssertLogField(t, buf, "component", "log_sender")
}
