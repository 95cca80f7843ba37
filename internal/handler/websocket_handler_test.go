package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bnc-service/internal/model"
	"bnc-service/pkg/plugin"
)

type wireEvent struct {
	Type string            `json:"type"`
	Data model.PluginEvent `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WebSocketMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg.Type, raw
}

func TestEventBusFiltersByType(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()

	_, all := bus.Subscribe()
	busyID, busy := bus.Subscribe(model.EventBusy)

	bus.Publish(model.NewPluginEvent(model.EventDataReady, plugin.KindViewer, nil))
	bus.Publish(model.NewPluginEvent(model.EventBusy, plugin.KindViewer, model.BusyEventData{Busy: true}))

	assert.Equal(t, model.EventDataReady, (<-all).EventType)
	assert.Equal(t, model.EventBusy, (<-all).EventType)
	assert.Equal(t, model.EventBusy, (<-busy).EventType)

	bus.Unsubscribe(busyID)
	_, open := <-busy
	assert.False(t, open)
	assert.Equal(t, 1, bus.SubscriberCount())

	cancel()
	<-done
	_, open = <-all
	assert.False(t, open, "stopping the bus closes subscribers")
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestWebSocketDataStream(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	busDone := make(chan struct{})
	go func() {
		ts.bus.Run(ctx)
		close(busDone)
	}()
	defer func() {
		cancel()
		<-busDone
	}()

	srv := httptest.NewServer(ts.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/data"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.bus.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	t.Run("events are streamed", func(t *testing.T) {
		ts.bus.Publish(model.NewPluginEvent(model.EventDataReady, plugin.KindViewer, plugin.DataExport{Name: "BNC575"}))

		msgType, raw := readMessage(t, conn)
		require.Equal(t, "event", msgType)
		var ev wireEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, model.EventDataReady, ev.Data.EventType)
		assert.Equal(t, plugin.KindViewer, ev.Data.Kind)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "ping", RequestID: "r1"}))
		msgType, raw := readMessage(t, conn)
		assert.Equal(t, "pong", msgType)
		assert.Contains(t, string(raw), `"request_id":"r1"`)
	})

	t.Run("unknown topic is rejected", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(WebSocketMessage{
			Type: "subscribe",
			Data: SubscriptionRequest{Topics: []model.EventType{"TEMPERATURE"}},
		}))
		msgType, raw := readMessage(t, conn)
		assert.Equal(t, "error", msgType)
		assert.Contains(t, string(raw), "TEMPERATURE")
	})

	t.Run("unsubscribed events are filtered", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(WebSocketMessage{
			Type: "unsubscribe",
			Data: SubscriptionRequest{Topics: []model.EventType{model.EventDataReady, model.EventBusy}},
		}))
		msgType, raw := readMessage(t, conn)
		require.Equal(t, "subscription_confirmed", msgType)
		assert.NotContains(t, string(raw), string(model.EventDataReady))

		ts.bus.Publish(model.NewPluginEvent(model.EventDataReady, plugin.KindViewer, nil))
		ts.bus.Publish(model.NewPluginEvent(model.EventPluginClosed, plugin.KindViewer, nil))

		msgType, raw = readMessage(t, conn)
		require.Equal(t, "event", msgType)
		var ev wireEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, model.EventPluginClosed, ev.Data.EventType)
	})

	stats := ts.ws.connections.GetStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 0, stats.ByTopic[model.EventDataReady])
	assert.Equal(t, 1, stats.ByTopic[model.EventPluginError])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return ts.ws.connections.GetStats().TotalConnections == 0 && ts.bus.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)
}
