package memory

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/adwski/room-relay/backend/model"
	"github.com/samber/lo"
)

var (
	ErrRoomNotFound = errors.New("room is not found")
	ErrNotAMember   = errors.New("connection is not a member of this room")
)

// Notify runs with the room lock held, so whatever it sends is ordered
// with respect to every other mutation of that room.
type Notify func(view model.RoomView)

type member struct {
	endpoint    string
	participant string
}

// Room holds one room's live state. The zero value is not usable.
type Room struct {
	ID string

	mx      *sync.Mutex
	members []member
	typing  []string

	// deleted is set once the room is unlinked from the store. A joiner
	// holding a stale pointer must look the room up again.
	deleted bool
}

type MemStore struct {
	mx *sync.Mutex
	db map[string]*Room
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx: &sync.Mutex{},
		db: make(map[string]*Room),
	}
}

// Join adds endpoint to the room, creating the room when absent.
// Joining twice with the same endpoint does not add a second member.
func (ms *MemStore) Join(roomID, endpoint, participant string, notify Notify) {
	for {
		room := ms.getOrCreate(roomID)

		room.mx.Lock()
		if room.deleted {
			room.mx.Unlock()
			continue
		}
		if room.indexOf(endpoint) < 0 {
			room.members = append(room.members, member{
				endpoint:    endpoint,
				participant: participant,
			})
		}
		notify(room.view())
		room.mx.Unlock()
		return
	}
}

// Leave removes endpoint from the room together with its typing flag.
// The last member leaving deletes the room and notify is not called.
func (ms *MemStore) Leave(roomID, endpoint string, notify Notify) error {
	room, err := ms.lockMember(roomID, endpoint)
	if err != nil {
		return err
	}
	defer room.mx.Unlock()

	i := room.indexOf(endpoint)
	gone := room.members[i]
	room.members = slices.Delete(room.members, i, i+1)
	room.typing = lo.Without(room.typing, gone.participant)

	if len(room.members) == 0 {
		room.deleted = true
		ms.mx.Lock()
		if ms.db[roomID] == room {
			delete(ms.db, roomID)
		}
		ms.mx.Unlock()
		return nil
	}
	notify(room.view())
	return nil
}

// SetTyping marks or unmarks the endpoint's participant as typing.
// notify is called even when the flag did not change.
func (ms *MemStore) SetTyping(roomID, endpoint string, typing bool, notify Notify) error {
	room, err := ms.lockMember(roomID, endpoint)
	if err != nil {
		return err
	}
	defer room.mx.Unlock()

	participant := room.members[room.indexOf(endpoint)].participant
	if typing {
		if !lo.Contains(room.typing, participant) {
			room.typing = append(room.typing, participant)
		}
	} else {
		room.typing = lo.Without(room.typing, participant)
	}
	notify(room.view())
	return nil
}

// WithMembers calls notify with the current view if endpoint is a member.
func (ms *MemStore) WithMembers(roomID, endpoint string, notify Notify) error {
	room, err := ms.lockMember(roomID, endpoint)
	if err != nil {
		return err
	}
	defer room.mx.Unlock()

	notify(room.view())
	return nil
}

func (ms *MemStore) GetRoom(roomID string) (*model.Room, error) {
	ms.mx.Lock()
	room, ok := ms.db[roomID]
	ms.mx.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mx.Lock()
	defer room.mx.Unlock()
	if room.deleted {
		return nil, ErrRoomNotFound
	}
	view := room.view()
	return &model.Room{
		ID:          room.ID,
		Users:       view.Users,
		TypingUsers: view.Typing,
	}, nil
}

// Rooms lists every live room ordered by id.
func (ms *MemStore) Rooms() []model.RoomSummary {
	ms.mx.Lock()
	rooms := lo.Values(ms.db)
	ms.mx.Unlock()

	summaries := make([]model.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		room.mx.Lock()
		if !room.deleted {
			summaries = append(summaries, model.RoomSummary{
				ID:      room.ID,
				Members: len(room.members),
				Typing:  len(room.typing),
			})
		}
		room.mx.Unlock()
	}
	slices.SortFunc(summaries, func(a, b model.RoomSummary) int {
		return strings.Compare(a.ID, b.ID)
	})
	return summaries
}

func (ms *MemStore) getOrCreate(roomID string) *Room {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		room = &Room{
			ID: roomID,
			mx: &sync.Mutex{},
		}
		ms.db[roomID] = room
	}
	return room
}

// lockMember returns the room locked. The caller unlocks.
func (ms *MemStore) lockMember(roomID, endpoint string) (*Room, error) {
	ms.mx.Lock()
	room, ok := ms.db[roomID]
	ms.mx.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mx.Lock()
	if room.deleted {
		room.mx.Unlock()
		return nil, ErrRoomNotFound
	}
	if room.indexOf(endpoint) < 0 {
		room.mx.Unlock()
		return nil, ErrNotAMember
	}
	return room, nil
}

func (r *Room) indexOf(endpoint string) int {
	return slices.IndexFunc(r.members, func(m member) bool {
		return m.endpoint == endpoint
	})
}

func (r *Room) view() model.RoomView {
	return model.RoomView{
		ID: r.ID,
		Endpoints: lo.Map(r.members, func(m member, _ int) string {
			return m.endpoint
		}),
		Users: lo.Map(r.members, func(m member, _ int) string {
			return m.participant
		}),
		Typing: append([]string{}, r.typing...),
	}
}
