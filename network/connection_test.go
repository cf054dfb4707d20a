package network

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPair starts a websocket server and returns the server-side WSConnection
// together with the raw client socket.
func newPair(t *testing.T) (*WSConnection, *websocket.Conn) {
	t.Helper()

	serverSide := make(chan *WSConnection, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverSide <- NewWSConnection(conn, 1024)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case c := <-serverSide:
		t.Cleanup(func() { c.Close() })
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side connection not established")
		return nil, nil
	}
}

func TestWSConnection_SendAndRead(t *testing.T) {
	server, client := newPair(t)

	msg, err := NewMessage(EventWaitingForOpponent, map[string]string{"player_count": "1/2"})
	require.NoError(t, err)
	require.NoError(t, server.Send(msg))

	var got Message
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, EventWaitingForOpponent, got.Event)
	assert.JSONEq(t, `{"player_count":"1/2"}`, string(got.Data))

	require.NoError(t, client.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"make_move","data":{"game_id":"R1","position":0,"player":"Alice"}}`)))

	in, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, EventMakeMove, in.Event)

	var move MoveRequest
	require.NoError(t, in.Decode(&move))
	assert.Equal(t, "R1", move.GameID)
	require.NotNil(t, move.Position)
	assert.Equal(t, 0, *move.Position)
}

func TestWSConnection_MalformedFrameKeepsConnection(t *testing.T) {
	server, client := newPair(t)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"event":"end_game"}`)))

	_, err := server.ReadMessage()
	assert.True(t, errors.Is(err, ErrMalformedMessage))
	_, err = server.ReadMessage()
	assert.True(t, errors.Is(err, ErrMalformedMessage))

	msg, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, EventEndGame, msg.Event)
}

func TestWSConnection_CloseIsIdempotent(t *testing.T) {
	server, _ := newPair(t)
	server.SetHeartbeat(50 * time.Millisecond)

	assert.NoError(t, server.Close())
	assert.NoError(t, server.Close())
}

func TestMessage_DecodeEmptyPayload(t *testing.T) {
	msg, err := NewMessage(EventRoomFull, nil)
	require.NoError(t, err)
	assert.Nil(t, msg.Data)

	var req GameRequest
	assert.NoError(t, msg.Decode(&req))
	assert.Equal(t, "", req.GameID)
}
