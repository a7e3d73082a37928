// Package admin lets the owning backend push an event into a named room
// without holding a live connection itself.
package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"rfq-realtime/core"
)

// Broadcaster is the slice of the gateway the ingress needs. The gateway
// implements it; tests substitute fakes.
type Broadcaster interface {
	BusAvailable() bool
	Inject(ctx context.Context, roomID, event string, payload json.RawMessage) core.Envelope
}

type pushRequest struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// HandlePushEvent accepts POST /api/v1/rooms/{roomID}/events. Requests with
// no room or event name are client errors; a disabled distribution bus is a
// service-unavailable condition because delivery could silently miss members
// on sibling instances.
func HandlePushEvent(b Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		if roomID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Room is required"})
			return
		}

		var req pushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}
		if req.Event == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Event name is required"})
			return
		}

		if !b.BusAvailable() {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"error": "Distribution bus is unavailable"})
			return
		}

		env := b.Inject(r.Context(), roomID, req.Event, req.Payload)
		logrus.WithFields(logrus.Fields{
			"room":  roomID,
			"event": req.Event,
			"id":    env.ID,
		}).Info("Backend event pushed into room")

		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, map[string]string{"id": env.ID})
	}
}
