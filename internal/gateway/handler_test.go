package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/typerace/internal/registry"
	"github.com/mcdev12/typerace/internal/room"
)

func TestClientMessage(t *testing.T) {
	assert.Equal(t, "room not found", clientMessage(room.ErrRoomNotFound))
	assert.Equal(t, "room is full", clientMessage(room.ErrRoomFull))
	assert.Equal(t, "invalid password", clientMessage(room.ErrInvalidPassword))
	assert.Equal(t, "race already in progress", clientMessage(room.ErrRaceInProgress))
	assert.Equal(t, "invalid maxPlayers: must be between 2 and 8",
		clientMessage(&ValidationError{Field: "maxPlayers", Reason: "must be between 2 and 8"}))
	assert.Equal(t, "internal error", clientMessage(assert.AnError))
}

type fixedTexts struct{}

func (fixedTexts) Text(string) string { return "pack my box with five dozen jugs" }

// testClient wraps one dialed websocket with envelope helpers.
type testClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func (c *testClient) send(eventType string, payload any) {
	c.t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(c.t, err)
	frame, err := json.Marshal(Envelope{Type: eventType, Timestamp: time.Now(), Data: data})
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, frame))
}

// expect reads envelopes until one of the given type arrives, skipping
// unrelated broadcasts such as rooms:updated.
func (c *testClient) expect(eventType string) Envelope {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(c.t, c.ws.SetReadDeadline(deadline))
		_, raw, err := c.ws.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", eventType)

		var env Envelope
		require.NoError(c.t, json.Unmarshal(raw, &env))
		if env.Type == eventType {
			return env
		}
	}
}

func startTestServer(t *testing.T) (*httptest.Server, func(query string) *testClient) {
	t.Helper()

	hub := NewHub(DefaultConfig())
	coord := room.NewCoordinator(registry.New(), hub, fixedTexts{}, clockwork.NewRealClock())
	handler := NewHandler(hub, coord)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Start(ctx)

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	dial := func(query string) *testClient {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { ws.Close() })
		return &testClient{t: t, ws: ws}
	}
	return srv, dial
}

func TestConnectReceivesRoomList(t *testing.T) {
	_, dial := startTestServer(t)

	client := dial("name=Alice&userId=u1")
	env := client.expect(room.EventRoomsList)

	var list []room.ListItem
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Empty(t, list)
}

func TestCreateAndJoinOverWire(t *testing.T) {
	_, dial := startTestServer(t)

	host := dial("name=Alice&userId=u1")
	host.expect(room.EventRoomsList)

	host.send(EventCreateRoom, CreateRoomPayload{Name: "wire room", MaxPlayers: 4})
	env := host.expect(room.EventRoomJoined)

	var joined room.RoomJoinedPayload
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	assert.Equal(t, "wire room", joined.Room.Name)
	assert.Equal(t, "Alice", joined.Room.Host)
	require.Len(t, joined.Players, 1)

	// A guest joins by room id and the host hears about it.
	guest := dial("name=Bob")
	guest.expect(room.EventRoomsList)
	guest.send(EventJoinRoom, JoinRoomPayload{RoomID: joined.Room.ID})
	guest.expect(room.EventRoomJoined)

	env = host.expect(room.EventPlayerJoined)
	var pj room.PlayerJoinedPayload
	require.NoError(t, json.Unmarshal(env.Data, &pj))
	assert.Equal(t, "Bob", pj.Player.Name)
	assert.True(t, pj.Player.IsGuest)
}

func TestChatRelayOverWire(t *testing.T) {
	_, dial := startTestServer(t)

	host := dial("name=Alice&userId=u1")
	host.expect(room.EventRoomsList)
	host.send(EventCreateRoom, CreateRoomPayload{Name: "chatty", MaxPlayers: 2})
	host.expect(room.EventRoomJoined)

	host.send(EventSendChat, ChatPayload{Message: "anyone here?"})
	env := host.expect(room.EventChatMessage)

	var msg room.ChatMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "anyone here?", msg.Message)
	assert.Equal(t, "Alice", msg.UserName)
}

func TestInvalidCommandsGetErrorFrames(t *testing.T) {
	_, dial := startTestServer(t)

	client := dial("name=Alice&userId=u1")
	client.expect(room.EventRoomsList)

	// Unknown room.
	client.send(EventJoinRoom, JoinRoomPayload{RoomID: "NOPE99"})
	env := client.expect(EventError)
	var perr ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &perr))
	assert.Equal(t, "room not found", perr.Message)

	// Payload that fails validation before reaching the coordinator.
	client.send(EventCreateRoom, CreateRoomPayload{Name: "room", MaxPlayers: 99})
	env = client.expect(EventError)
	require.NoError(t, json.Unmarshal(env.Data, &perr))
	assert.Contains(t, perr.Message, "maxPlayers")

	// Garbage bytes.
	require.NoError(t, client.ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	env = client.expect(EventError)
	require.NoError(t, json.Unmarshal(env.Data, &perr))
	assert.Equal(t, "malformed message", perr.Message)
}

func TestUserJoinReplacesIdentity(t *testing.T) {
	_, dial := startTestServer(t)

	// Connects anonymously, then announces a signed-in identity.
	client := dial("")
	client.expect(room.EventRoomsList)

	client.send(EventUserJoin, UserJoinPayload{Name: "Dana", UserID: "u9"})
	client.expect(room.EventRoomsList)

	client.send(EventCreateRoom, CreateRoomPayload{Name: "dana's room", MaxPlayers: 4})
	env := client.expect(room.EventRoomJoined)

	var joined room.RoomJoinedPayload
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	assert.Equal(t, "Dana", joined.Room.Host)
	require.Len(t, joined.Players, 1)
	assert.False(t, joined.Players[0].IsGuest)
	assert.Equal(t, "u9", joined.Players[0].UserID)
}

// A peer that vanishes before the pumps start must still be torn down:
// the close callback only ever fires after coordinator registration, so
// the registry entry cannot be orphaned.
func TestImmediateCloseStillUnregisters(t *testing.T) {
	hub := NewHub(DefaultConfig())
	reg := registry.New()
	coord := room.NewCoordinator(reg, hub, fixedTexts{}, clockwork.NewRealClock())
	handler := NewHandler(hub, coord)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Start(ctx)

	clientGone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := hub.Accept(w, r, "p1", handler.dispatch, handler.disconnect)
		if err != nil {
			return
		}
		// Hold the pumps until the peer is gone so their very first
		// socket operation fails.
		<-clientGone
		coord.Connect(registry.Participant{ID: "p1", Name: "Alice"})
		sess.Start()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	close(clientGone)

	require.Eventually(t, func() bool {
		return reg.Count() == 0 && hub.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGuestNameDefaulting(t *testing.T) {
	_, dial := startTestServer(t)

	client := dial("")
	client.expect(room.EventRoomsList)

	client.send(EventCreateRoom, CreateRoomPayload{Name: "anon room", MaxPlayers: 2})
	env := client.expect(room.EventRoomJoined)

	var joined room.RoomJoinedPayload
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	require.Len(t, joined.Players, 1)
	assert.True(t, strings.HasPrefix(joined.Players[0].Name, "Guest-"))
	assert.True(t, joined.Players[0].IsGuest)
}
