package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfq-realtime/core"
)

type fakeBroadcaster struct {
	available bool
	injected  []core.Envelope
}

func (f *fakeBroadcaster) BusAvailable() bool { return f.available }

func (f *fakeBroadcaster) Inject(ctx context.Context, roomID, event string, payload json.RawMessage) core.Envelope {
	env := core.Envelope{
		ID:        "01TEST",
		Room:      roomID,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	f.injected = append(f.injected, env)
	return env
}

func newTestRouter(b Broadcaster) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/v1/rooms/{roomID}/events", HandlePushEvent(b))
	return r
}

func TestPushEventAccepted(t *testing.T) {
	b := &fakeBroadcaster{available: true}
	r := newTestRouter(b)

	body := `{"event":"message:received","payload":{"text":"hello"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/rfq:10:5/events", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, b.injected, 1)
	assert.Equal(t, "rfq:10:5", b.injected[0].Room)
	assert.Equal(t, "message:received", b.injected[0].Event)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "01TEST", resp["id"])
}

func TestPushEventMissingEventName(t *testing.T) {
	b := &fakeBroadcaster{available: true}
	r := newTestRouter(b)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/rfq:10:5/events", strings.NewReader(`{"payload":{}}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, b.injected)
}

func TestPushEventMalformedBody(t *testing.T) {
	b := &fakeBroadcaster{available: true}
	r := newTestRouter(b)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/rfq:10:5/events", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPushEventBusUnavailable(t *testing.T) {
	b := &fakeBroadcaster{available: false}
	r := newTestRouter(b)

	body := `{"event":"message:received","payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/rfq:10:5/events", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, b.injected)
}
