package service

import (
	"encoding/json"
	"errors"

	"github.com/adwski/room-relay/backend/model"
	"github.com/adwski/room-relay/backend/storage/memory"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrProtocol      = errors.New("malformed frame")
	ErrUnknownKind   = errors.New("unknown frame type")
	ErrNotJoined     = errors.New("connection has not joined a room")
	ErrSessionClosed = errors.New("session is closed")
	ErrGet           = errors.New("unable to get room")
)

//go:generate mockgen -source=service.go -destination=mock_switch_test.go -package=service -mock_names=Switch=MockSwitch Switch

type (
	RoomStore interface {
		Join(roomID, endpoint, participant string, notify memory.Notify)
		Leave(roomID, endpoint string, notify memory.Notify) error
		SetTyping(roomID, endpoint string, typing bool, notify memory.Notify) error
		WithMembers(roomID, endpoint string, notify memory.Notify) error
		GetRoom(roomID string) (*model.Room, error)
		Rooms() []model.RoomSummary
	}

	Switch interface {
		Connect(endpoint string, wire model.Wire)
		Disconnect(endpoint string)
		Broadcast(frame []byte, endpoints []string) int
	}

	Service struct {
		store  RoomStore
		sw     Switch
		logger zerolog.Logger
	}

	Config struct {
		RoomStore RoomStore
		Switch    Switch
		Logger    *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:  cfg.RoomStore,
		sw:     cfg.Switch,
		logger: cfg.Logger.With().Str("component", "relay").Logger(),
	}
}

// Connect registers the outbound wire of a new connection and returns
// its session in the unjoined state.
func (svc *Service) Connect(wire model.Wire) *Session {
	s := newSession(uuid.NewString())
	svc.sw.Connect(s.ID, wire)
	svc.logger.Debug().Str("connID", s.ID).Msg("session created")
	return s
}

// Disconnect performs the implicit leave and closes the session.
// Calling it more than once is fine.
func (svc *Service) Disconnect(s *Session) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.state == StateClosed {
		return
	}
	if s.state == StateJoined {
		svc.leave(s)
	}
	s.state = StateClosed
	svc.sw.Disconnect(s.ID)
	svc.logger.Debug().Str("connID", s.ID).Msg("session closed")
}

// Handle decodes one inbound frame and dispatches it by kind.
func (svc *Service) Handle(s *Session, frame []byte) error {
	if state, _, _ := s.Info(); state == StateClosed {
		return ErrSessionClosed
	}

	env, err := model.Decode(frame)
	if err != nil {
		return errors.Join(ErrProtocol, err)
	}

	switch env.Type {
	case model.KindJoin:
		p, err := model.DecodeJoin(env.Payload)
		if err != nil {
			return errors.Join(ErrProtocol, err)
		}
		return svc.Join(s, p.Room, p.Email)
	case model.KindMessage:
		return svc.Message(s, env.Payload)
	case model.KindStartTyping:
		return svc.StartTyping(s)
	case model.KindStopTyping:
		return svc.StopTyping(s)
	default:
		return errors.Join(ErrProtocol, ErrUnknownKind)
	}
}

// Join moves the session into roomID, leaving its current room first.
// Every member of roomID, the joiner included, gets the new user list.
func (svc *Service) Join(s *Session, roomID, participant string) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if s.state == StateJoined {
		svc.leave(s)
	}

	svc.store.Join(roomID, s.ID, participant, svc.pushUsers)
	s.state = StateJoined
	s.roomID = roomID
	s.participant = participant

	svc.logger.Debug().
		Str("connID", s.ID).
		Str("roomID", roomID).
		Str("participant", participant).
		Msg("participant joined room")
	return nil
}

// Message relays payload unchanged to every member of the session's room,
// the sender included.
func (svc *Service) Message(s *Session, payload json.RawMessage) error {
	return svc.inRoom(s, func(roomID string) error {
		frame, err := model.Frame(model.KindMessage, payload)
		if err != nil {
			return err
		}
		return svc.store.WithMembers(roomID, s.ID, func(view model.RoomView) {
			svc.push(view, model.KindMessage, frame)
		})
	})
}

func (svc *Service) StartTyping(s *Session) error {
	return svc.setTyping(s, true)
}

func (svc *Service) StopTyping(s *Session) error {
	return svc.setTyping(s, false)
}

func (svc *Service) GetRoom(roomID string) (*model.Room, error) {
	room, err := svc.store.GetRoom(roomID)
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}
	return room, nil
}

func (svc *Service) Rooms() []model.RoomSummary {
	return svc.store.Rooms()
}

func (svc *Service) setTyping(s *Session, typing bool) error {
	return svc.inRoom(s, func(roomID string) error {
		return svc.store.SetTyping(roomID, s.ID, typing, svc.pushTyping)
	})
}

// inRoom runs fn with the session locked and joined.
func (svc *Service) inRoom(s *Session, fn func(roomID string) error) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateUnjoined:
		return ErrNotJoined
	}
	return fn(s.roomID)
}

// leave expects s.mx to be held and s to be joined.
func (svc *Service) leave(s *Session) {
	err := svc.store.Leave(s.roomID, s.ID, func(view model.RoomView) {
		svc.pushUsers(view)
		svc.pushTyping(view)
	})
	if err != nil {
		svc.logger.Error().Err(err).
			Str("connID", s.ID).
			Str("roomID", s.roomID).
			Msg("leave failed")
	} else {
		svc.logger.Debug().
			Str("connID", s.ID).
			Str("roomID", s.roomID).
			Str("participant", s.participant).
			Msg("participant left room")
	}
	s.state = StateUnjoined
	s.roomID = ""
	s.participant = ""
}

func (svc *Service) pushUsers(view model.RoomView) {
	frame, err := model.Frame(model.KindUserListUpdate, model.UserListPayload{Users: view.Users})
	if err != nil {
		svc.logger.Error().Err(err).Msg("failed to encode user list")
		return
	}
	svc.push(view, model.KindUserListUpdate, frame)
}

func (svc *Service) pushTyping(view model.RoomView) {
	frame, err := model.Frame(model.KindTypingUpdate, model.TypingPayload{TypingUsers: view.Typing})
	if err != nil {
		svc.logger.Error().Err(err).Msg("failed to encode typing set")
		return
	}
	svc.push(view, model.KindTypingUpdate, frame)
}

func (svc *Service) push(view model.RoomView, kind string, frame []byte) {
	sent := svc.sw.Broadcast(frame, view.Endpoints)
	if sent < len(view.Endpoints) {
		svc.logger.Debug().
			Str("roomID", view.ID).
			Str("type", kind).
			Int("members", len(view.Endpoints)).
			Int("sent", sent).
			Msg("broadcast did not reach everyone")
	}
}
