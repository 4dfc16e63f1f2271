package model

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
)

// Inbound kinds sent by clients.
const (
	KindJoin        = "join"
	KindMessage     = "message"
	KindStartTyping = "start-typing"
	KindStopTyping  = "stop-typing"
)

// Outbound kinds produced by the relay. Chat messages go out as KindMessage.
const (
	KindUserListUpdate = "user-list-update"
	KindTypingUpdate   = "typing-update"
)

var (
	ErrEmptyFrame = errors.New("empty frame")
	ErrNoKind     = errors.New("frame has no type")
	ErrNoPayload  = errors.New("frame has no payload")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	Room  string `json:"room" validate:"required"`
	Email string `json:"email" validate:"required"`
}

type UserListPayload struct {
	Users []string `json:"users"`
}

type TypingPayload struct {
	TypingUsers []string `json:"typingUsers"`
}

// Room is a point-in-time view of one room.
type Room struct {
	ID          string   `json:"room_id"`
	Users       []string `json:"users"`
	TypingUsers []string `json:"typing_users"`
}

// RoomView is handed to store callbacks while the room lock is held.
// Endpoints and Users are index-aligned in join order.
type RoomView struct {
	ID        string
	Endpoints []string
	Users     []string
	Typing    []string
}

type RoomSummary struct {
	ID      string `json:"room_id"`
	Members int    `json:"members"`
	Typing  int    `json:"typing"`
}

// Wire is the outbound half of a connection as the switch sees it.
// Kick must be safe to call more than once.
type Wire struct {
	TX   chan []byte
	Kick func()
}

func NewWire(size int, kick func()) Wire {
	return Wire{
		TX:   make(chan []byte, size),
		Kick: kick,
	}
}

// Decode parses an inbound frame. The payload is left raw.
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if len(bytes.TrimSpace(b)) == 0 {
		return env, ErrEmptyFrame
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return env, err
	}
	if env.Type == "" {
		return env, ErrNoKind
	}
	return env, nil
}

func DecodeJoin(raw json.RawMessage) (JoinPayload, error) {
	var p JoinPayload
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return p, ErrNoPayload
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	if err := validate.Struct(&p); err != nil {
		return p, err
	}
	return p, nil
}

// Frame encodes an outbound envelope. A json.RawMessage payload is written
// byte for byte, anything else goes through json.Marshal.
func Frame(kind string, payload any) ([]byte, error) {
	k, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}

	var raw []byte
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = p
	default:
		if raw, err = json.Marshal(p); err != nil {
			return nil, err
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(k)+len(raw)+24))
	buf.WriteString(`{"type":`)
	buf.Write(k)
	if len(raw) > 0 {
		buf.WriteString(`,"payload":`)
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
