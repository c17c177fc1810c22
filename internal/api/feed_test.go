package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/moderation/internal/events"
)

func TestDecisionFeedDeliversBusEvents(t *testing.T) {
	bus := events.NewEventBus()
	feed := NewDecisionFeed(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(feed.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Give the hub a beat to register the client before publishing.
	require.Eventually(t, func() bool { return feed.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	bus.Emit(events.TypeContentRejected, "moderation-engine", "content-1", map[string]interface{}{
		"user_id":  "u-1",
		"decision": "rejected",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.CloudEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.TypeContentRejected, got.Type)
	assert.Equal(t, "content-1", got.Subject)
	assert.Equal(t, "u-1", got.UserID)
}

func TestDecisionFeedSSEStreamsEvents(t *testing.T) {
	bus := events.NewEventBus()
	feed := NewDecisionFeed(bus)

	srv := httptest.NewServer(http.HandlerFunc(feed.HandleSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The handler subscribes after the headers go out; wait for it.
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 },
		time.Second, 10*time.Millisecond)

	bus.Emit(events.TypeContentApproved, "moderation-engine", "content-7", map[string]interface{}{
		"user_id":  "u-7",
		"decision": "approved",
	})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: "+events.TypeContentApproved+"\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "data: "))
	assert.Contains(t, line, "content-7")
}

func TestDecisionFeedDropsDisconnectedClients(t *testing.T) {
	bus := events.NewEventBus()
	feed := NewDecisionFeed(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(feed.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	require.Eventually(t, func() bool { return feed.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return feed.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}
