package service

import (
	"sync"
)

type State int

const (
	StateUnjoined State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the relay's record of one connection. Only Service
// transitions it; everything else reads it through Info.
type Session struct {
	ID string

	mx          *sync.Mutex
	state       State
	roomID      string
	participant string
}

func newSession(id string) *Session {
	return &Session{
		ID: id,
		mx: &sync.Mutex{},
	}
}

// Info returns the current state with room and participant ids.
func (s *Session) Info() (State, string, string) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state, s.roomID, s.participant
}
