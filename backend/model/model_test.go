package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	req := require.New(t)

	env, err := Decode([]byte(`{"type":"message","payload":{"text": "hi"}}`))
	req.NoError(err)
	req.Equal(KindMessage, env.Type)
	req.Equal(`{"text": "hi"}`, string(env.Payload))

	_, err = Decode([]byte("  "))
	req.ErrorIs(err, ErrEmptyFrame)

	_, err = Decode([]byte(`{"payload":{}}`))
	req.ErrorIs(err, ErrNoKind)

	_, err = Decode([]byte(`{"type":`))
	req.Error(err)
}

func TestDecodeJoin(t *testing.T) {
	req := require.New(t)

	p, err := DecodeJoin(json.RawMessage(`{"room":"ABCD","email":"a@x.com"}`))
	req.NoError(err)
	req.Equal(JoinPayload{Room: "ABCD", Email: "a@x.com"}, p)

	// Room names are taken as is
	p, err = DecodeJoin(json.RawMessage(`{"room":"abcd ","email":"not an email"}`))
	req.NoError(err)
	req.Equal("abcd ", p.Room)

	_, err = DecodeJoin(nil)
	req.ErrorIs(err, ErrNoPayload)
	_, err = DecodeJoin(json.RawMessage(`null`))
	req.ErrorIs(err, ErrNoPayload)
	_, err = DecodeJoin(json.RawMessage(`{"room":""}`))
	req.Error(err)
}

func TestFrame(t *testing.T) {
	req := require.New(t)

	b, err := Frame(KindMessage, json.RawMessage(`{ "text" : "hi" }`))
	req.NoError(err)
	req.Equal(`{"type":"message","payload":{ "text" : "hi" }}`, string(b))

	b, err = Frame(KindUserListUpdate, UserListPayload{Users: []string{}})
	req.NoError(err)
	req.Equal(`{"type":"user-list-update","payload":{"users":[]}}`, string(b))

	b, err = Frame(KindTypingUpdate, TypingPayload{TypingUsers: []string{"a@x.com"}})
	req.NoError(err)
	req.Equal(`{"type":"typing-update","payload":{"typingUsers":["a@x.com"]}}`, string(b))

	b, err = Frame(KindMessage, nil)
	req.NoError(err)
	req.Equal(`{"type":"message"}`, string(b))

	_, err = Frame(KindMessage, make(chan int))
	req.Error(err)
}
