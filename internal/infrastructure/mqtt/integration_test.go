//go:build integration

package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a broker at 127.0.0.1:1883:
//
//	go test -tags=integration -count=1 ./internal/infrastructure/mqtt/...

func TestIntegration_PublishEventRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "provisioner-int-publish"

	client, err := Connect(cfg)
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck // test cleanup
	assert.True(t, client.IsConnected())

	received := make(chan []byte, 1)
	subOpts := pahomqtt.NewClientOptions().AddBroker("tcp://127.0.0.1:1883").SetClientID("provisioner-int-sub")
	sub := pahomqtt.NewClient(subOpts)
	token := sub.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	defer sub.Disconnect(100)

	topic := client.Topics().DeviceProvisioned("Mobile", "Mobile00000001")
	token = sub.Subscribe(topic, 1, func(_ pahomqtt.Client, m pahomqtt.Message) {
		received <- m.Payload()
	})
	require.True(t, token.WaitTimeout(5*time.Second))

	require.NoError(t, client.PublishJSON(topic, map[string]string{"device_id": "Mobile00000001"}))

	select {
	case payload := <-received:
		var body map[string]string
		require.NoError(t, json.Unmarshal(payload, &body))
		assert.Equal(t, "Mobile00000001", body["device_id"])
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999
	cfg.Reconnect.InitialDelay = 1

	_, err := Connect(cfg)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}
