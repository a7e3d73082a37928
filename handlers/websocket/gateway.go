// Package websocket hosts the realtime gateway: connection authentication,
// room membership, and cross-instance fanout over the distribution bus.
package websocket

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"rfq-realtime/bus"
	"rfq-realtime/config"
	"rfq-realtime/core"
	"rfq-realtime/handlers/auth"
)

// Gateway owns the Socket.IO server and every per-connection session. All
// dependencies are injected at construction so tests can substitute fakes.
type Gateway struct {
	io    *socketio.Server
	cache core.Cache
	bus   bus.Bus
	authn *auth.Authenticator
	cfg   *config.Config

	// instanceID distinguishes this process on the bus so it can drop its
	// own envelopes instead of delivering them twice.
	instanceID string

	mu       sync.RWMutex
	sessions map[socketio.SocketId]*Session
}

// New builds the gateway and registers the connection lifecycle handlers.
func New(cfg *config.Config, cache core.Cache, b bus.Bus, authn *auth.Authenticator) *Gateway {
	g := &Gateway{
		cache:      cache,
		bus:        b,
		authn:      authn,
		cfg:        cfg,
		instanceID: ulid.Make().String(),
		sessions:   make(map[socketio.SocketId]*Session),
	}

	opts := socketio.DefaultServerOptions()
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetPingTimeout(cfg.Socket.PingTimeout)
	opts.SetPingInterval(cfg.Socket.PingInterval)
	opts.SetCors(&types.Cors{
		Origin:      corsOrigin(cfg.Socket.CORSOrigins),
		Credentials: true,
	})

	g.io = socketio.NewServer(nil, opts)
	g.io.Use(g.authMiddleware)
	g.io.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		g.handleConnection(socket)
	})

	return g
}

// Server exposes the underlying Socket.IO server for mounting on the router.
func (g *Gateway) Server() *socketio.Server {
	return g.io
}

// InstanceID returns this process's bus origin identifier.
func (g *Gateway) InstanceID() string {
	return g.instanceID
}

// SessionCount returns the number of live authenticated connections.
func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// StartBusSubscription registers the process-wide pattern subscription.
// Called once at startup; a no-op when distribution is unavailable.
func (g *Gateway) StartBusSubscription(ctx context.Context) {
	if !g.bus.Available() {
		logrus.Warn("Bus subscription skipped - delivery is local-process-only")
		return
	}
	g.bus.PSubscribe(ctx, busPattern, g.handleBusMessage)
}

// Close shuts the Socket.IO server down, disconnecting every client.
func (g *Gateway) Close() {
	g.io.Close(nil)
}

// authMiddleware runs once per new connection, before any handler is
// registered. A connection that fails here never reaches a room.
func (g *Gateway) authMiddleware(socket *socketio.Socket, next func(*socketio.ExtendedError)) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.Backend.Timeout)
	defer cancel()

	var authData any
	if handshake := socket.Handshake(); handshake != nil {
		authData = handshake.Auth
	}

	if err := g.admit(ctx, socket.Id(), authData); err != nil {
		logrus.WithField("socket", socket.Id()).Warn("Connection refused: authentication failed")
		next(socketio.NewExtendedError("Invalid authentication credentials", nil))
		return
	}

	// Registered here rather than in handleConnection so the session record
	// is released even when the connection dies before the connection event.
	socket.On("disconnect", func(...any) {
		g.dropSession(socket.Id())
	})
	next(nil)
}

// admit resolves the handshake credentials to an identity and registers the
// session. On error nothing is registered: the refused connection leaves no
// trace in the session table or any room.
func (g *Gateway) admit(ctx context.Context, id socketio.SocketId, authData any) error {
	token, userType := credentialsFromAuth(authData)
	user, err := g.authn.Authenticate(ctx, token, userType)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.sessions[id] = newSession(string(id), *user, token)
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"user":   user.Name,
		"type":   user.Type,
		"socket": id,
	}).Info("User authenticated")
	return nil
}

// credentialsFromAuth extracts the token and user type from the handshake
// auth object. Anything that is not a JSON object with string fields reads as
// empty credentials.
func credentialsFromAuth(authData any) (string, core.UserType) {
	creds, ok := authData.(map[string]any)
	if !ok {
		return "", ""
	}
	token, _ := creds["token"].(string)
	userType, _ := creds["userType"].(string)
	return token, core.UserType(userType)
}

func (g *Gateway) session(id socketio.SocketId) *Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sessions[id]
}

func (g *Gateway) dropSession(id socketio.SocketId) {
	g.mu.Lock()
	delete(g.sessions, id)
	g.mu.Unlock()
}

// handleConnection registers the event handlers for an authenticated
// connection and pushes the welcome state.
func (g *Gateway) handleConnection(socket *socketio.Socket) {
	sess := g.session(socket.Id())
	if sess == nil {
		// Middleware did not admit this socket; refuse it.
		socket.Disconnect(true)
		return
	}

	logrus.WithFields(logrus.Fields{
		"user":   sess.User.Name,
		"socket": socket.Id(),
	}).Info("Client connected")

	socket.On(EventRoomJoin, g.safe(socket, EventRoomJoin, g.onRoomJoin(socket, sess)))
	socket.On(EventRoomLeave, g.safe(socket, EventRoomLeave, g.onRoomLeave(socket, sess)))
	socket.On(EventMessageSend, g.safe(socket, EventMessageSend, g.onMessageSend(socket, sess)))
	socket.On(EventTypingStart, g.safe(socket, EventTypingStart, g.onTypingStart(socket, sess)))
	socket.On(EventTypingStop, g.safe(socket, EventTypingStop, g.onTypingStop(socket, sess)))

	socket.On(EventNotificationSubscribe, g.safe(socket, EventNotificationSubscribe, g.onNotificationSubscribe(socket, sess, true)))
	socket.On(EventNotificationUnsubscribe, g.safe(socket, EventNotificationUnsubscribe, g.onNotificationSubscribe(socket, sess, false)))
	socket.On(EventOrderSubscribe, g.safe(socket, EventOrderSubscribe, g.onOrderSubscribe(socket, sess, true)))
	socket.On(EventOrderUnsubscribe, g.safe(socket, EventOrderUnsubscribe, g.onOrderSubscribe(socket, sess, false)))

	socket.On("disconnecting", func(datas ...any) {
		g.teardown(socket, sess)
	})
	socket.On("disconnect", func(datas ...any) {
		reason := ""
		if len(datas) > 0 {
			reason = fmt.Sprint(datas[0])
		}
		logrus.WithFields(logrus.Fields{
			"user":   sess.User.Name,
			"socket": socket.Id(),
			"reason": reason,
		}).Info("Client disconnected")
	})

	socket.Emit("connection:ready", map[string]any{"user": sess.User})
}

// teardown releases every membership and timer the session still holds.
// Runs while the socket is still addressable so member-left reaches peers.
func (g *Gateway) teardown(socket *socketio.Socket, sess *Session) {
	for _, roomID := range sess.Rooms() {
		g.leaveRoom(socket, sess, roomID)
	}
	sess.cancelTimers()
}

func (g *Gateway) onRoomJoin(socket *socketio.Socket, sess *Session) func(...any) {
	return func(datas ...any) {
		var p roomKeyPayload
		if err := g.decodeEvent(socket, EventRoomJoin, datas, &p); err != nil {
			return
		}
		ctx := context.Background()
		roomID := RoomID(p.QuoteID, p.SubQuoteID)

		socket.Join(socketio.Room(roomID))
		sess.trackRoom(roomID)
		g.cache.Set(ctx, memberKey(roomID, sess.SocketID), core.MemberOf(sess.SocketID, sess.User), memberTTL)

		logrus.WithFields(logrus.Fields{
			"user": sess.User.Name,
			"room": roomID,
		}).Info("Joined room")

		g.broadcastFrom(socket, sess, roomID, EventMemberJoined, nil, false)
		socket.Emit(EventMembersSnapshot, map[string]any{
			"room":    roomID,
			"members": g.members(ctx, roomID),
		})
	}
}

func (g *Gateway) onRoomLeave(socket *socketio.Socket, sess *Session) func(...any) {
	return func(datas ...any) {
		var p roomKeyPayload
		if err := g.decodeEvent(socket, EventRoomLeave, datas, &p); err != nil {
			return
		}
		g.leaveRoom(socket, sess, RoomID(p.QuoteID, p.SubQuoteID))
	}
}

// leaveRoom is idempotent: leaving twice, or a room never joined, is a no-op.
func (g *Gateway) leaveRoom(socket *socketio.Socket, sess *Session, roomID string) {
	socket.Leave(socketio.Room(roomID))
	if !sess.untrackRoom(roomID) {
		return
	}
	sess.stopTyping(roomID)
	g.cache.Delete(context.Background(), memberKey(roomID, sess.SocketID))

	logrus.WithFields(logrus.Fields{
		"user": sess.User.Name,
		"room": roomID,
	}).Info("Left room")

	g.broadcastFrom(socket, sess, roomID, EventMemberLeft, nil, false)
}

func (g *Gateway) onMessageSend(socket *socketio.Socket, sess *Session) func(...any) {
	return func(datas ...any) {
		var p sendMessagePayload
		if err := g.decodeEvent(socket, EventMessageSend, datas, &p); err != nil {
			return
		}
		roomID := RoomID(p.QuoteID, p.SubQuoteID)
		g.broadcastFrom(socket, sess, roomID, EventMessageReceived, p.Payload, true)
	}
}

func (g *Gateway) onTypingStart(socket *socketio.Socket, sess *Session) func(...any) {
	return func(datas ...any) {
		var p roomKeyPayload
		if err := g.decodeEvent(socket, EventTypingStart, datas, &p); err != nil {
			return
		}
		roomID := RoomID(p.QuoteID, p.SubQuoteID)
		g.broadcastFrom(socket, sess, roomID, EventTypingStart, nil, false)

		// Safety net: if the client goes silent without an explicit stop,
		// expire the indicator server-side.
		sess.resetTyping(roomID, g.cfg.TypingExpiry, func() {
			g.broadcastFrom(socket, sess, roomID, EventTypingStop, nil, false)
		})
	}
}

func (g *Gateway) onTypingStop(socket *socketio.Socket, sess *Session) func(...any) {
	return func(datas ...any) {
		var p roomKeyPayload
		if err := g.decodeEvent(socket, EventTypingStop, datas, &p); err != nil {
			return
		}
		roomID := RoomID(p.QuoteID, p.SubQuoteID)
		sess.stopTyping(roomID)
		g.broadcastFrom(socket, sess, roomID, EventTypingStop, nil, false)
	}
}

func (g *Gateway) onNotificationSubscribe(socket *socketio.Socket, sess *Session, subscribe bool) func(...any) {
	return func(datas ...any) {
		room := socketio.Room(fmt.Sprintf("notifications:%s:%d", sess.User.Type, sess.User.ID))
		if subscribe {
			socket.Join(room)
			logrus.WithField("user", sess.User.Name).Info("Subscribed to notifications")
		} else {
			socket.Leave(room)
			logrus.WithField("user", sess.User.Name).Info("Unsubscribed from notifications")
		}
	}
}

func (g *Gateway) onOrderSubscribe(socket *socketio.Socket, sess *Session, subscribe bool) func(...any) {
	event := EventOrderSubscribe
	if !subscribe {
		event = EventOrderUnsubscribe
	}
	return func(datas ...any) {
		var p orderPayload
		if err := g.decodeEvent(socket, event, datas, &p); err != nil {
			return
		}
		room := socketio.Room(fmt.Sprintf("order:%d", p.OrderID))
		if subscribe {
			socket.Join(room)
		} else {
			socket.Leave(room)
		}
		logrus.WithFields(logrus.Fields{
			"user":       sess.User.Name,
			"orderId":    p.OrderID,
			"subscribed": subscribe,
		}).Info("Order subscription changed")
	}
}

// decodeEvent validates an inbound payload against its event schema and
// notifies the client on mismatch. The connection stays open either way.
func (g *Gateway) decodeEvent(socket *socketio.Socket, event string, datas []any, dest any) error {
	err := decodePayload(event, datas, dest)
	if err == nil {
		if v, ok := dest.(interface{ validate(string) error }); ok {
			err = v.validate(event)
		}
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"event":  event,
			"socket": socket.Id(),
		}).WithError(err).Warn("Rejected event payload")
		socket.Emit(EventError, map[string]any{"message": err.Error()})
		return err
	}
	return nil
}

// safe contains a handler fault to the single event being processed: the
// panic is logged with stack context and the client receives a generic error.
func (g *Gateway) safe(socket *socketio.Socket, event string, fn func(...any)) func(...any) {
	return func(datas ...any) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"event":  event,
					"socket": socket.Id(),
					"panic":  r,
					"stack":  string(debug.Stack()),
				}).Error("Unhandled fault in event handler")
				socket.Emit(EventError, map[string]any{"message": "Internal server error"})
			}
		}()
		fn(datas...)
	}
}

func corsOrigin(origins []string) any {
	if len(origins) == 0 {
		return "*"
	}
	out := make([]any, 0, len(origins))
	for _, o := range origins {
		out = append(out, o)
	}
	return out
}
