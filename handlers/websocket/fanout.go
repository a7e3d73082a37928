package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"rfq-realtime/core"
)

// newEnvelope stamps a payload with sender identity, origin instance and
// timestamp. Envelopes are the only shape that crosses the distribution bus.
func (g *Gateway) newEnvelope(roomID, event string, payload any, sender *core.User) core.Envelope {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logrus.WithError(err).WithField("event", event).Warn("Failed to encode envelope payload")
		} else {
			raw = data
		}
	}

	return core.Envelope{
		ID:        ulid.Make().String(),
		Room:      roomID,
		Event:     event,
		Payload:   raw,
		Sender:    sender,
		Origin:    g.instanceID,
		Timestamp: time.Now().UTC(),
	}
}

// broadcastFrom delivers an event from a connected member to its room.
// Local members are always served first; when the bus is available the
// envelope is additionally published so sibling instances replay it for
// their own members. No acknowledgement, no retries: at-least-once from the
// publisher, best effort to each subscriber.
//
// includeSender distinguishes chat messages (delivered to every member,
// including the sender's own other devices) from presence events, where the
// sender is the originator and is excluded.
func (g *Gateway) broadcastFrom(socket *socketio.Socket, sess *Session, roomID, event string, payload any, includeSender bool) {
	env := g.newEnvelope(roomID, event, payload, &sess.User)

	room := socketio.Room(roomID)
	if includeSender {
		if err := g.io.In(room).Emit(event, env); err != nil {
			logrus.WithError(err).WithField("room", roomID).Warn("Local room emit failed")
		}
	} else {
		if err := socket.Broadcast().To(room).Emit(event, env); err != nil {
			logrus.WithError(err).WithField("room", roomID).Warn("Local room emit failed")
		}
	}

	if g.bus.Available() {
		g.bus.Publish(context.Background(), channelForRoom(roomID), env)
	}
}

// Inject pushes a backend-originated event into a room without a live
// connection, for the administrative ingress.
func (g *Gateway) Inject(ctx context.Context, roomID, event string, payload json.RawMessage) core.Envelope {
	// An absent payload stays absent on the envelope rather than encoding
	// as JSON null.
	var body any
	if len(payload) > 0 {
		body = payload
	}
	env := g.newEnvelope(roomID, event, body, nil)

	if err := g.io.In(socketio.Room(roomID)).Emit(event, env); err != nil {
		logrus.WithError(err).WithField("room", roomID).Warn("Local room emit failed")
	}
	if g.bus.Available() {
		g.bus.Publish(ctx, channelForRoom(roomID), env)
	}
	return env
}

// BusAvailable reports whether cross-process distribution is enabled.
func (g *Gateway) BusAvailable() bool {
	return g.bus.Available()
}

// handleBusMessage replays an envelope published by a sibling instance to
// this process's local room members. Envelopes this instance originated were
// already delivered locally and are dropped, so members see each event once.
func (g *Gateway) handleBusMessage(channel string, payload []byte) {
	var env core.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logrus.WithError(err).WithField("channel", channel).Warn("Dropping undecodable bus envelope")
		return
	}
	if env.Origin == g.instanceID {
		return
	}

	roomID := env.Room
	if roomID == "" {
		roomID = roomFromChannel(channel)
	}
	if roomID == "" || env.Event == "" {
		logrus.WithField("channel", channel).Warn("Dropping bus envelope without room or event")
		return
	}

	if err := g.io.In(socketio.Room(roomID)).Emit(env.Event, env); err != nil {
		logrus.WithError(err).WithField("room", roomID).Warn("Bus replay emit failed")
	}
}
