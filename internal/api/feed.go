package api

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sentra/moderation/internal/events"
)

// DecisionFeed fans moderation events out to WebSocket clients.
// Delivery is best-effort: a slow client is dropped, never the event.
type DecisionFeed struct {
	bus        *events.EventBus
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *log.Logger
}

// NewDecisionFeed creates a feed backed by the given event bus.
func NewDecisionFeed(bus *events.EventBus) *DecisionFeed {
	return &DecisionFeed{
		bus:        bus,
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log.New(log.Writer(), "[FEED] ", log.LstdFlags),
	}
}

// Run pumps bus events to connected clients until the context ends.
func (f *DecisionFeed) Run(ctx context.Context) {
	sub := f.bus.Subscribe() // all event types
	defer f.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			f.closeAll()
			return

		case client := <-f.register:
			f.mu.Lock()
			f.clients[client] = true
			total := len(f.clients)
			f.mu.Unlock()
			f.logger.Printf("client connected (total: %d)", total)

		case client := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[client]; ok {
				delete(f.clients, client)
				client.Close()
			}
			total := len(f.clients)
			f.mu.Unlock()
			f.logger.Printf("client disconnected (total: %d)", total)

		case event, ok := <-sub:
			if !ok {
				return
			}
			f.broadcast(event)
		}
	}
}

func (f *DecisionFeed) broadcast(event *events.CloudEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for client := range f.clients {
		if err := client.WriteJSON(event); err != nil {
			f.logger.Printf("write error, dropping client: %v", err)
			client.Close()
			delete(f.clients, client)
		}
	}
}

func (f *DecisionFeed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for client := range f.clients {
		client.Close()
		delete(f.clients, client)
	}
}

// HandleWebSocket upgrades the connection and registers the client.
func (f *DecisionFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Printf("upgrade error: %v", err)
		return
	}

	f.register <- conn

	// Drain client frames so pings are answered; any read error ends the
	// session.
	go func() {
		defer func() { f.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// HandleSSE streams decision events as Server-Sent Events for clients
// behind proxies that cannot hold a WebSocket. One bus subscription per
// request; the stream ends when the client goes away.
func (f *DecisionFeed) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub:
			if !open {
				return
			}
			frame, err := event.SSEFormat()
			if err != nil {
				f.logger.Printf("sse marshal error: %v", err)
				continue
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected feed clients.
func (f *DecisionFeed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}
