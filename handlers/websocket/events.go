package websocket

import (
	"encoding/json"

	"rfq-realtime/core"
)

// Client-to-server events.
const (
	EventRoomJoin    = "room:join"
	EventRoomLeave   = "room:leave"
	EventMessageSend = "message:send"
	EventTypingStart = "presence:typing-start"
	EventTypingStop  = "presence:typing-stop"

	EventNotificationSubscribe   = "notification:subscribe"
	EventNotificationUnsubscribe = "notification:unsubscribe"
	EventOrderSubscribe          = "order:subscribe"
	EventOrderUnsubscribe        = "order:unsubscribe"
)

// Server-to-client events.
const (
	EventMemberJoined    = "room:member-joined"
	EventMemberLeft      = "room:member-left"
	EventMembersSnapshot = "room:members-snapshot"
	EventMessageReceived = "message:received"
	EventError           = "error"
)

type (
	// roomKeyPayload is the composite business key identifying a negotiation
	// room.
	roomKeyPayload struct {
		QuoteID    int64 `json:"quoteId"`
		SubQuoteID int64 `json:"subQuoteId"`
	}

	// sendMessagePayload carries a chat message for a room.
	sendMessagePayload struct {
		roomKeyPayload
		Payload json.RawMessage `json:"payload"`
	}

	// orderPayload identifies an order update stream.
	orderPayload struct {
		OrderID int64 `json:"orderId"`
	}
)

func (p roomKeyPayload) validate(event string) error {
	if p.QuoteID <= 0 {
		return core.NewValidationError(event, "quoteId is required")
	}
	if p.SubQuoteID <= 0 {
		return core.NewValidationError(event, "subQuoteId is required")
	}
	return nil
}

func (p sendMessagePayload) validate(event string) error {
	if err := p.roomKeyPayload.validate(event); err != nil {
		return err
	}
	if len(p.Payload) == 0 || string(p.Payload) == "null" {
		return core.NewValidationError(event, "payload is required")
	}
	return nil
}

func (p orderPayload) validate(event string) error {
	if p.OrderID <= 0 {
		return core.NewValidationError(event, "orderId is required")
	}
	return nil
}

// decodePayload maps the first event argument onto the event's schema. The
// transport hands payloads over as generic JSON objects; anything that does
// not match the schema is a ValidationError for the caller to surface.
func decodePayload(event string, datas []any, dest any) error {
	if len(datas) == 0 {
		return core.NewValidationError(event, "missing payload")
	}
	obj, ok := datas[0].(map[string]any)
	if !ok {
		return core.NewValidationError(event, "payload must be an object")
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return core.NewValidationError(event, "payload is not serializable")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return core.NewValidationError(event, "payload does not match schema")
	}
	return nil
}
