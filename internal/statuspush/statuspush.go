// Package statuspush broadcasts transcode-worker progress samples to
// connected status-page clients over Server-Sent Events, as a push
// alternative to polling the state-inspection query (§6).
package statuspush

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/podible/podible/internal/model"
)

// EventType discriminates the kinds of events a client may receive.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventHeartbeat EventType = "heartbeat"
)

// Event is one status-page message.
type Event struct {
	Type   EventType              `json:"type"`
	Status *model.TranscodeStatus `json:"status,omitempty"`
}

func newHeartbeat() Event { return Event{Type: EventHeartbeat} }

// Client is one connected SSE subscriber.
type Client struct {
	ID        string
	Events    chan Event
	Done      chan struct{}
	connected time.Time
}

// Hub fans transcode progress events out to connected clients. One Hub
// per process; the transcode worker calls Publish after each progress
// sample, and each HTTP handler registers/unregisters a Client for the
// lifetime of its connection.
type Hub struct {
	logger            *slog.Logger
	heartbeatInterval time.Duration

	events chan Event

	mu      sync.RWMutex
	clients map[string]*Client

	shutdownMu sync.RWMutex
	shutdown   bool

	wg sync.WaitGroup
}

// New creates a Hub. Run must be called once, in a goroutine, before any
// Publish or client connects.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		logger:            logger,
		heartbeatInterval: 30 * time.Second,
		events:            make(chan Event, 256),
		clients:           make(map[string]*Client),
	}
}

// Run drains the event queue and broadcasts, until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.wg.Add(1)
	defer h.wg.Done()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-h.events:
			h.broadcast(event)
		case <-ticker.C:
			h.broadcast(newHeartbeat())
		case <-ctx.Done():
			h.closeAllClients()
			return
		}
	}
}

// Shutdown marks the hub closed, drains any queued events, and waits for
// Run to exit.
func (h *Hub) Shutdown(ctx context.Context) {
	h.shutdownMu.Lock()
	h.shutdown = true
	close(h.events)
	h.shutdownMu.Unlock()

	drained := make(chan struct{})
	go func() {
		for event := range h.events {
			h.broadcast(event)
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		h.logger.Warn("statuspush shutdown timed out draining events")
	}

	h.wg.Wait()
}

// Publish queues a progress sample for broadcast. Safe to call from the
// transcode worker's progress callback; non-blocking.
func (h *Hub) Publish(status model.TranscodeStatus) {
	h.shutdownMu.RLock()
	defer h.shutdownMu.RUnlock()
	if h.shutdown {
		return
	}

	select {
	case h.events <- Event{Type: EventProgress, Status: &status}:
	default:
		h.logger.Warn("statuspush event queue full, dropping sample", "source", status.Source)
	}
}

// Connect registers a new client and returns it. The caller must
// Disconnect when the connection ends.
func (h *Hub) Connect(id string) *Client {
	client := &Client{
		ID:        id,
		Events:    make(chan Event, 32),
		Done:      make(chan struct{}),
		connected: time.Now(),
	}

	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()

	h.logger.Info("statuspush client connected", "client_id", id)
	return client
}

// Disconnect removes a client and closes its channels. Safe to call once
// per successful Connect.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	client, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, id)
	h.mu.Unlock()

	close(client.Done)
	close(client.Events)
	h.logger.Info("statuspush client disconnected", "client_id", id, "duration", time.Since(client.connected))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("dropped statuspush event for slow client", "client_id", client.ID)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Done)
		close(client.Events)
	}
	h.clients = make(map[string]*Client)
}
