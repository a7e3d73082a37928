package core

import (
	"encoding/json"
	"time"
)

// UserType is the closed set of participant kinds the backend can resolve a
// credential to.
type UserType string

const (
	UserTypeRequester UserType = "requester"
	UserTypeResponder UserType = "responder"
)

// Valid reports whether t is one of the known participant kinds.
func (t UserType) Valid() bool {
	return t == UserTypeRequester || t == UserTypeResponder
}

type (
	// User is the identity resolved for a connection. It is immutable for the
	// lifetime of that connection.
	User struct {
		ID    int64    `json:"id"`
		Name  string   `json:"name"`
		Email string   `json:"email"`
		Type  UserType `json:"type"`
	}

	// RoomMember is the per-room metadata recorded for a joined connection.
	// The membership manager is its sole writer.
	RoomMember struct {
		SocketID string   `json:"socketId"`
		UserID   int64    `json:"userId"`
		UserName string   `json:"userName"`
		UserType UserType `json:"userType"`
	}

	// Envelope is a published room message. It is transient; durability is the
	// backend's responsibility, not this gateway's.
	Envelope struct {
		ID        string          `json:"id"`
		Room      string          `json:"room"`
		Event     string          `json:"event"`
		Payload   json.RawMessage `json:"payload,omitempty"`
		Sender    *User           `json:"sender,omitempty"`
		Origin    string          `json:"origin"`
		Timestamp time.Time       `json:"timestamp"`
	}
)

// MemberOf builds the membership record for a user on a given socket.
func MemberOf(socketID string, user User) RoomMember {
	return RoomMember{
		SocketID: socketID,
		UserID:   user.ID,
		UserName: user.Name,
		UserType: user.Type,
	}
}
