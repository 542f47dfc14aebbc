package statuspush

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/podible/podible/internal/id"
)

// Handler serves the status-page SSE stream.
type Handler struct {
	hub    *Hub
	logger *slog.Logger
}

// NewHandler creates a Handler backed by hub.
func NewHandler(hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush sse headers", "error", err)
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	clientID, err := id.Generate("push")
	if err != nil {
		h.logger.Error("failed to generate client id", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	client := h.hub.Connect(clientID)
	defer h.hub.Disconnect(clientID)

	log := h.logger.With("client_id", clientID)

	if err := h.send(w, rc, "connected", map[string]string{"client_id": clientID}); err != nil {
		log.Warn("failed to send connected event", "error", err)
		return
	}

	ctx := r.Context()
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			if err := h.send(w, rc, string(event.Type), event); err != nil {
				log.Info("client disconnected during send")
				return
			}
		case <-client.Done:
			log.Info("client closed by hub")
			return
		case <-ctx.Done():
			log.Info("client context cancelled")
			return
		}
	}
}

func (h *Handler) send(w http.ResponseWriter, rc *http.ResponseController, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}
	_ = rc.SetWriteDeadline(time.Now().Add(60 * time.Second))
	return nil
}
