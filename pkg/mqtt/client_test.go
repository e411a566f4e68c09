package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClient(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name: "valid config",
			config: &Config{
				BrokerURL:            "tcp://localhost:1883",
				ClientID:             "sds-test",
				KeepAlive:            30 * time.Second,
				ConnectTimeout:       5 * time.Second,
				AutoReconnect:        true,
				MaxReconnectInterval: time.Minute,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config, logger)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, client)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, client)
			}
		})
	}

	t.Run("defaults are applied", func(t *testing.T) {
		cfg := &Config{BrokerURL: "tcp://localhost:1883", ClientID: "sds-test"}
		_, err := NewClient(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.KeepAlive)
		assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	})
}

func TestClientNotConnected(t *testing.T) {
	client, err := NewClient(&Config{
		BrokerURL: "tcp://localhost:1883",
		ClientID:  "sds-test",
	}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, client.IsConnected())
	assert.Error(t, client.Publish("sds/senales/event/x", 1, false, []byte("{}")))
	assert.Error(t, client.Subscribe("sds/senales/event/#", 1, func(string, []byte) error { return nil }))
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "sds/senales/event/cambio_categoria", SignalEventTopic("cambio_categoria"))
	assert.Equal(t, "sds/auth/event/sesion_iniciada", AuthEventTopic("sesion_iniciada"))
	assert.Equal(t, "sds/plataforma/health/sds-server", HealthTopic("sds-server"))

	parts, err := ParseTopic("sds/senales/event/cambio_categoria")
	require.NoError(t, err)
	assert.Equal(t, []string{"senales", "event", "cambio_categoria"}, parts)

	_, err = ParseTopic("otra/cosa")
	assert.Error(t, err)

	assert.True(t, ValidTopic("sds/plataforma/status/sds-server"))
	assert.False(t, ValidTopic("sds/x"))
}

func TestMessageEnvelope(t *testing.T) {
	msg, err := NewMessage(MessageTypeEvent, "sds-server", SignalCategoryChangedEvent{
		SignalID:     42,
		FromCategory: "Ruido",
		ToCategory:   "Crisis",
		Actor:        "analista@sds.example",
		OccurredAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, MessageTypeEvent, msg.Type)

	var out SignalCategoryChangedEvent
	require.NoError(t, msg.UnmarshalPayload(&out))
	assert.Equal(t, int64(42), out.SignalID)
	assert.Equal(t, "Crisis", out.ToCategory)
}
