package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adwski/room-relay/backend/model"
	"github.com/adwski/room-relay/backend/service"
	"github.com/adwski/room-relay/backend/storage/memory"
	sw "github.com/adwski/room-relay/backend/switch"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *service.Service) {
	t.Helper()
	logger := zerolog.Nop()
	svc := service.NewService(service.Config{
		RoomStore: memory.NewMemStore(),
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
	})
	srv := NewServer(Config{
		Logger:       &logger,
		RelayService: svc,
		PingInterval: 50 * time.Millisecond,
		PongWait:     time.Second,
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts, svc
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/room", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// next returns the next data frame. Pings are answered by the default handler.
func next(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := model.Decode(b)
	require.NoError(t, err)
	return env
}

func usersOf(t *testing.T, env model.Envelope) []string {
	t.Helper()
	require.Equal(t, model.KindUserListUpdate, env.Type)
	var p model.UserListPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p.Users
}

func typingOf(t *testing.T, env model.Envelope) []string {
	t.Helper()
	require.Equal(t, model.KindTypingUpdate, env.Type)
	var p model.TypingPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p.TypingUsers
}

func TestServer_Relay(t *testing.T) {
	req := require.New(t)
	ts, svc := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)

	write(t, a, `{"type":"join","payload":{"room":"ABCD","email":"a@x.com"}}`)
	req.Equal([]string{"a@x.com"}, usersOf(t, next(t, a)))

	write(t, b, `{"type":"join","payload":{"room":"ABCD","email":"b@x.com"}}`)
	req.Equal([]string{"a@x.com", "b@x.com"}, usersOf(t, next(t, a)))
	req.Equal([]string{"a@x.com", "b@x.com"}, usersOf(t, next(t, b)))

	write(t, b, `{"type":"start-typing","payload":{}}`)
	req.Equal([]string{"b@x.com"}, typingOf(t, next(t, a)))
	req.Equal([]string{"b@x.com"}, typingOf(t, next(t, b)))

	write(t, b, `{"type":"message","payload":{"id":"1","text":"hi","sender":"b@x.com","timestamp":1}}`)
	for _, conn := range []*websocket.Conn{a, b} {
		env := next(t, conn)
		req.Equal(model.KindMessage, env.Type)
		req.JSONEq(`{"id":"1","text":"hi","sender":"b@x.com","timestamp":1}`, string(env.Payload))
	}

	// When B goes away
	req.NoError(b.Close())

	// Then A learns about it
	req.Equal([]string{"a@x.com"}, usersOf(t, next(t, a)))
	req.Empty(typingOf(t, next(t, a)))

	room, err := svc.GetRoom("ABCD")
	req.NoError(err)
	req.Equal([]string{"a@x.com"}, room.Users)
}

func TestServer_Malformed_Frame_Keeps_Connection(t *testing.T) {
	req := require.New(t)
	ts, _ := newTestServer(t)
	a := dial(t, ts)

	write(t, a, `definitely not json`)
	write(t, a, `{"type":"shout","payload":{}}`)
	write(t, a, `{"type":"message","payload":{"text":"too early"}}`)
	write(t, a, `{"type":"join","payload":{"room":"ABCD","email":"a@x.com"}}`)

	// The first frame A gets is the join answer
	req.Equal([]string{"a@x.com"}, usersOf(t, next(t, a)))
}

func TestServer_Last_Close_Removes_Room(t *testing.T) {
	req := require.New(t)
	ts, svc := newTestServer(t)
	a := dial(t, ts)

	write(t, a, `{"type":"join","payload":{"room":"ABCD","email":"a@x.com"}}`)
	next(t, a)
	req.Len(svc.Rooms(), 1)

	req.NoError(a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	req.Eventually(func() bool {
		return len(svc.Rooms()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
