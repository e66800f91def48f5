package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/services/events"
)

func dial(t *testing.T, h *WebSocketHandler) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello WSMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "hello", hello.Type)
	return conn
}

// collect reads messages until the deadline passes.
func collect(conn *websocket.Conn, wait time.Duration) []WSMessage {
	var out []WSMessage
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return out
		}
		out = append(out, msg)
	}
}

func TestWebSocket_BroadcastsEvents(t *testing.T) {
	logger := arbor.NewLogger()
	bus := events.NewService(logger)
	h := NewWebSocketHandler(bus, logger, &common.WebSocketConfig{})
	conn := dial(t, h)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventEntryCreated,
		Payload: map[string]interface{}{"filename": "ShoppingCart_1.json"},
	}))

	msgs := collect(conn, 500*time.Millisecond)
	require.Len(t, msgs, 1)
	assert.Equal(t, "entry_created", msgs[0].Type)
	assert.Equal(t, "ShoppingCart_1.json", msgs[0].Payload.(map[string]interface{})["filename"])
}

func TestWebSocket_WhitelistAndThrottle(t *testing.T) {
	logger := arbor.NewLogger()
	bus := events.NewService(logger)
	h := NewWebSocketHandler(bus, logger, &common.WebSocketConfig{
		AllowedEvents:     []string{"job_progress", "job_state_changed"},
		ThrottleIntervals: map[string]string{"job_progress": "1h", "job_state_changed": "1h"},
	})
	conn := dial(t, h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	publish := func(typ interfaces.EventType, jobID string) {
		_ = bus.PublishSync(ctx, interfaces.Event{Type: typ, Payload: map[string]interface{}{"job_id": jobID}})
	}

	publish(interfaces.EventJobProgress, "a")
	publish(interfaces.EventJobProgress, "a") // throttled
	publish(interfaces.EventJobProgress, "b") // separate job
	publish(interfaces.EventEntryCreated, "a") // not whitelisted
	publish(interfaces.EventJobStateChanged, "a")
	publish(interfaces.EventJobStateChanged, "a") // state changes bypass throttling

	msgs := collect(conn, 500*time.Millisecond)
	counts := map[string]int{}
	for _, m := range msgs {
		counts[m.Type]++
	}
	assert.Equal(t, 2, counts["job_progress"])
	assert.Equal(t, 2, counts["job_state_changed"])
	assert.Zero(t, counts["entry_created"])
}
