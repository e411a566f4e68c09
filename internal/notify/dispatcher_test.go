package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/engines/signals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	sent   []Message
	failTo string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Send(_ context.Context, msg Message) error {
	if msg.To == f.failTo {
		return errors.New("delivery refused")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func sampleChange() signals.CategoryChange {
	return signals.CategoryChange{
		SignalID:      42,
		FromCategory:  "Ruido",
		ToCategory:    "Paracrisis",
		ActorName:     "Ana Lista",
		ActorEmail:    "ana@sds.example",
		ReviewerEmail: "revisor@sds.example",
		Confirmed:     true,
		OccurredAt:    time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestNotifyCategoryChange(t *testing.T) {
	ctx := context.Background()

	t.Run("fans out to distinct recipients", func(t *testing.T) {
		backend := &fakeBackend{}
		d := NewDispatcher(backend, nil, "coordinador@sds.example", zap.NewNop())

		require.NoError(t, d.NotifyCategoryChange(ctx, sampleChange()))
		require.Len(t, backend.sent, 3)
		assert.Equal(t, "coordinador@sds.example", backend.sent[0].To)
		assert.Contains(t, backend.sent[0].Subject, "Ruido")
		assert.Contains(t, backend.sent[0].HTML, "Paracrisis")
		assert.Contains(t, backend.sent[0].HTML, "Ana Lista")
	})

	t.Run("duplicate addresses are sent once", func(t *testing.T) {
		backend := &fakeBackend{}
		d := NewDispatcher(backend, nil, "ana@sds.example", zap.NewNop())

		change := sampleChange()
		change.ReviewerEmail = "ANA@sds.example"
		require.NoError(t, d.NotifyCategoryChange(ctx, change))
		assert.Len(t, backend.sent, 1)
	})

	t.Run("one failed recipient does not stop the rest", func(t *testing.T) {
		backend := &fakeBackend{failTo: "ana@sds.example"}
		d := NewDispatcher(backend, nil, "coordinador@sds.example", zap.NewNop())

		err := d.NotifyCategoryChange(ctx, sampleChange())
		require.Error(t, err)
		assert.Len(t, backend.sent, 2)
	})

	t.Run("no backend means no delivery and no error", func(t *testing.T) {
		d := NewDispatcher(nil, nil, "coordinador@sds.example", zap.NewNop())
		require.NoError(t, d.NotifyCategoryChange(ctx, sampleChange()))
	})
}

func TestSendPasswordReset(t *testing.T) {
	backend := &fakeBackend{}
	d := NewDispatcher(backend, nil, "", zap.NewNop())

	require.NoError(t, d.SendPasswordReset(context.Background(), "ana@sds.example", "tok-123"))
	require.Len(t, backend.sent, 1)
	assert.Equal(t, "ana@sds.example", backend.sent[0].To)
	assert.Contains(t, backend.sent[0].HTML, "tok-123")
}

func TestAPIUserBackend(t *testing.T) {
	var got apiPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	backend := newAPIUserBackend(config.EmailConfig{
		Backend:         "api_user",
		From:            "sds@sds.example",
		APIEndpoint:     srv.URL,
		UserAccessToken: "user-token-xyz",
	})

	err := backend.Send(context.Background(), Message{
		To: "ana@sds.example", Subject: "Prueba", HTML: "<p>hola</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer user-token-xyz", auth)
	assert.Equal(t, "ana@sds.example", got.To)
	assert.Equal(t, "sds@sds.example", got.From)

	t.Run("non-2xx is an error", func(t *testing.T) {
		fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer fail.Close()
		backend := newAPIUserBackend(config.EmailConfig{APIEndpoint: fail.URL, UserAccessToken: "t"})
		err := backend.Send(context.Background(), Message{To: "x@y"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})
}

func TestNewBackendSelection(t *testing.T) {
	_, err := NewBackend(config.EmailConfig{Backend: "telegrama"})
	require.Error(t, err)

	b, err := NewBackend(config.EmailConfig{Backend: "api_user", APIEndpoint: "http://mail", UserAccessToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, "api_user", b.Name())

	t.Run("unconfigured smtp means no backend", func(t *testing.T) {
		b, err := NewBackend(config.EmailConfig{Backend: "smtp"})
		require.NoError(t, err)
		assert.Nil(t, b)

		b, err = NewBackend(config.EmailConfig{})
		require.NoError(t, err)
		assert.Nil(t, b)
	})
}
