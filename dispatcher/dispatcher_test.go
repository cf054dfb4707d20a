package dispatcher

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/tictacserver/broadcast"
	"github.com/wfunc/tictacserver/monitor"
	"github.com/wfunc/tictacserver/network"
	"github.com/wfunc/tictacserver/persistence"
	"github.com/wfunc/tictacserver/room"
	"github.com/wfunc/tictacserver/session"
	"github.com/wfunc/tictacserver/state"
	"github.com/wfunc/tictacserver/timer"
)

// MockConnection records every message sent to it.
type MockConnection struct {
	mu   sync.Mutex
	sent []*network.Message
}

func (m *MockConnection) Send(msg *network.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}
func (m *MockConnection) Close() error                           { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                   { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)    {}
func (m *MockConnection) ReadMessage() (*network.Message, error) { return nil, nil }

func (m *MockConnection) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for _, msg := range m.sent {
		out = append(out, msg.Event)
	}
	return out
}

func (m *MockConnection) last(t *testing.T) (string, map[string]any) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no message sent")
	msg := m.sent[len(m.sent)-1]
	var data map[string]any
	if len(msg.Data) > 0 {
		require.NoError(t, json.Unmarshal(msg.Data, &data))
	}
	return msg.Event, data
}

func (m *MockConnection) reset() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}

type harness struct {
	d        *Dispatcher
	rooms    *room.Manager
	sessions *session.Manager
	archive  *persistence.MemoryArchive
	timers   *timer.TimerManager
	mon      *monitor.Monitor
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		rooms:    room.NewRoomManager(),
		sessions: session.NewManager(),
		archive:  persistence.NewMemoryArchive(),
		timers:   timer.NewTimerManagerWithTick(5 * time.Millisecond),
	}
	h.mon, _ = monitor.NewTestMonitor()
	h.d = New(h.rooms, broadcast.NewRoomBroadcaster(h.rooms, h.sessions), h.archive, h.timers, h.mon, opts)
	t.Cleanup(h.timers.Stop)
	return h
}

func (h *harness) connect(id string) (*session.Session, *MockConnection) {
	conn := &MockConnection{}
	sess := session.NewSession(id, conn)
	h.sessions.Add(sess)
	return sess, conn
}

func (h *harness) send(t *testing.T, sess *session.Session, event string, payload any) error {
	t.Helper()
	msg, err := network.NewMessage(event, payload)
	require.NoError(t, err)
	return h.d.Handle(context.Background(), sess, msg)
}

func move(room, player string, pos int) map[string]any {
	return map[string]any{"game_id": room, "player": player, "position": pos}
}

// startGame joins Alice and Bob to R1 and clears their inboxes.
func (h *harness) startGame(t *testing.T) (alice, bob *session.Session, ca, cb *MockConnection) {
	t.Helper()
	alice, ca = h.connect("tok-alice")
	bob, cb = h.connect("tok-bob")
	require.NoError(t, h.send(t, alice, network.EventJoin, map[string]string{"username": "Alice", "game_id": "R1"}))
	require.NoError(t, h.send(t, bob, network.EventJoin, map[string]string{"username": "Bob", "game_id": "R1"}))
	ca.reset()
	cb.reset()
	return
}

func (h *harness) game(t *testing.T, id string) *room.Room {
	t.Helper()
	r, ok := h.rooms.GetRoom(id)
	require.True(t, ok)
	return r
}

func TestDispatcher_CreatorJoin(t *testing.T) {
	h := newHarness(t, Options{})
	alice, ca := h.connect("tok-alice")

	require.NoError(t, h.send(t, alice, network.EventJoin, map[string]string{"username": "Alice", "game_id": "R1"}))

	event, data := ca.last(t)
	assert.Equal(t, network.EventWaitingForOpponent, event)
	assert.Equal(t, map[string]any{"player_count": "1/2", "player_name": "Alice", "player_symbol": "X"}, data)
	assert.Equal(t, state.WaitingForOpponent, h.game(t, "R1").Game.Phase())

	roomID, name := alice.Binding()
	assert.Equal(t, "R1", roomID)
	assert.Equal(t, "Alice", name)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.mon.Metrics().ActiveRooms))
}

func TestDispatcher_JoinerStartsGame(t *testing.T) {
	h := newHarness(t, Options{})
	alice, ca := h.connect("tok-alice")
	bob, cb := h.connect("tok-bob")
	require.NoError(t, h.send(t, alice, network.EventJoin, map[string]string{"username": "Alice", "game_id": "R1"}))
	require.NoError(t, h.send(t, bob, network.EventJoin, map[string]string{"username": "Bob", "game_id": "R1"}))

	for _, c := range []*MockConnection{ca, cb} {
		event, data := c.last(t)
		assert.Equal(t, network.EventGameStart, event)
		assert.Equal(t, "Alice", data["current_turn"])
		assert.Equal(t, map[string]any{"name": "Alice", "symbol": "X", "avatar": "x.png"}, data["player1"])
		assert.Equal(t, map[string]any{"name": "Bob", "symbol": "O", "avatar": "o.png"}, data["player2"])
	}
	assert.Equal(t, []string{network.EventWaitingForOpponent, network.EventGameStart}, ca.events())
}

func TestDispatcher_OccupiedCellRejected(t *testing.T) {
	h := newHarness(t, Options{})
	alice, bob, ca, cb := h.startGame(t)

	require.NoError(t, h.send(t, alice, network.EventMakeMove, move("R1", "Alice", 0)))
	ca.reset()
	cb.reset()

	require.NoError(t, h.send(t, bob, network.EventMakeMove, move("R1", "Bob", 0)))

	event, data := cb.last(t)
	assert.Equal(t, network.EventMoveRejected, event)
	assert.Equal(t, map[string]any{"position": 0.0, "reason": "cell_occupied"}, data)
	assert.Empty(t, ca.events(), "rejected move must not be broadcast")

	g := h.game(t, "R1").Game
	assert.Equal(t, "Bob", g.TurnOwner())
	assert.Equal(t, "X", string(g.Board()[0]))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.mon.Metrics().MovesRejected.WithLabelValues("cell_occupied")))
}

func TestDispatcher_RowWin(t *testing.T) {
	h := newHarness(t, Options{})
	alice, bob, ca, cb := h.startGame(t)

	plays := []struct {
		sess *session.Session
		name string
		pos  int
	}{
		{alice, "Alice", 0}, {bob, "Bob", 3}, {alice, "Alice", 1}, {bob, "Bob", 4}, {alice, "Alice", 2},
	}
	for _, p := range plays {
		require.NoError(t, h.send(t, p.sess, network.EventMakeMove, move("R1", p.name, p.pos)))
	}

	for _, c := range []*MockConnection{ca, cb} {
		assert.Len(t, c.events(), 5)
		event, data := c.last(t)
		assert.Equal(t, network.EventMoveMade, event)
		assert.Equal(t, "Alice", data["winner"])
		assert.Equal(t, "X", data["symbol"])
		assert.Equal(t, 2.0, data["position"])
		stats := data["stats"].(map[string]any)
		assert.Equal(t, 1.0, stats["p1_wins"])
		assert.Equal(t, 0.0, stats["p2_wins"])
		assert.Equal(t, map[string]any{"p1": "Won", "p2": "Lost"}, stats["last_result"])
	}

	assert.Equal(t, state.RoundOver, h.game(t, "R1").Game.Phase())
	assert.Eventually(t, func() bool { return len(h.archive.Matches()) == 1 }, time.Second, 5*time.Millisecond)
	rec := h.archive.Matches()[0]
	assert.Equal(t, "Alice", rec.Winner)
	assert.Equal(t, "Bob", rec.Player2)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.mon.Metrics().RoundsFinished.WithLabelValues("win")))
}

func TestDispatcher_MoveInProgressHasNullWinner(t *testing.T) {
	h := newHarness(t, Options{})
	alice, _, ca, _ := h.startGame(t)

	require.NoError(t, h.send(t, alice, network.EventMakeMove, move("R1", "", 4)))

	event, data := ca.last(t)
	assert.Equal(t, network.EventMoveMade, event)
	winner, present := data["winner"]
	assert.True(t, present)
	assert.Nil(t, winner)
	assert.Equal(t, "Bob", data["next_turn"])
}

func playDraw(t *testing.T, h *harness, alice, bob *session.Session) {
	t.Helper()
	for i, pos := range []int{0, 1, 2, 4, 3, 5, 7, 6, 8} {
		sess, name := alice, "Alice"
		if i%2 == 1 {
			sess, name = bob, "Bob"
		}
		require.NoError(t, h.send(t, sess, network.EventMakeMove, move("R1", name, pos)))
	}
}

func TestDispatcher_Draw(t *testing.T) {
	h := newHarness(t, Options{})
	alice, bob, ca, _ := h.startGame(t)

	playDraw(t, h, alice, bob)

	event, data := ca.last(t)
	assert.Equal(t, network.EventMoveMade, event)
	assert.Equal(t, "draw", data["winner"])
	stats := data["stats"].(map[string]any)
	assert.Equal(t, 1.0, stats["draws"])
	assert.Equal(t, map[string]any{"p1": "Draw", "p2": "Draw"}, stats["last_result"])

	assert.Eventually(t, func() bool { return len(h.archive.Matches()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.archive.Matches()[0].Draw)
}

func TestDispatcher_ThirdJoinGetsRoomFull(t *testing.T) {
	h := newHarness(t, Options{})
	_, _, ca, cb := h.startGame(t)
	carol, cc := h.connect("tok-carol")

	require.NoError(t, h.send(t, carol, network.EventJoin, map[string]string{"username": "Carol", "game_id": "R1"}))

	assert.Equal(t, []string{network.EventRoomFull}, cc.events())
	assert.Empty(t, ca.events())
	assert.Empty(t, cb.events())
	assert.True(t, h.game(t, "R1").IsSubscribed(carol.ID), "rejected joiner still watches the room")

	roomID, _ := carol.Binding()
	assert.Empty(t, roomID)
}

func TestDispatcher_SpectatorCannotMove(t *testing.T) {
	h := newHarness(t, Options{})
	_, _, ca, _ := h.startGame(t)
	carol, cc := h.connect("tok-carol")
	require.NoError(t, h.send(t, carol, network.EventJoin, map[string]string{"username": "Carol", "game_id": "R1"}))
	cc.reset()

	// 旁观者冒用玩家名字
	require.NoError(t, h.send(t, carol, network.EventMakeMove, move("R1", "Alice", 4)))

	event, data := cc.last(t)
	assert.Equal(t, network.EventError, event)
	assert.Equal(t, CodeNotAPlayer, data["code"])
	assert.Empty(t, ca.events())
	assert.Equal(t, "", string(h.game(t, "R1").Game.Board()[4]))
}

func TestDispatcher_IdentityMismatch(t *testing.T) {
	h := newHarness(t, Options{})
	_, bob, ca, cb := h.startGame(t)

	require.NoError(t, h.send(t, bob, network.EventMakeMove, move("R1", "Alice", 4)))

	event, data := cb.last(t)
	assert.Equal(t, network.EventError, event)
	assert.Equal(t, CodeIdentityMismatch, data["code"])
	assert.Empty(t, ca.events())
	assert.Equal(t, "Alice", h.game(t, "R1").Game.TurnOwner())
}

func TestDispatcher_NameTaken(t *testing.T) {
	h := newHarness(t, Options{})
	alice, _ := h.connect("tok-alice")
	imposter, ci := h.connect("tok-imposter")
	require.NoError(t, h.send(t, alice, network.EventJoin, map[string]string{"username": "Alice", "game_id": "R1"}))

	require.NoError(t, h.send(t, imposter, network.EventJoin, map[string]string{"username": "Alice", "game_id": "R1"}))

	event, data := ci.last(t)
	assert.Equal(t, network.EventError, event)
	assert.Equal(t, CodeNameTaken, data["code"])
	assert.Equal(t, state.WaitingForOpponent, h.game(t, "R1").Game.Phase())
}

func TestDispatcher_AlreadyJoined(t *testing.T) {
	h := newHarness(t, Options{})
	alice, _, ca, _ := h.startGame(t)

	require.NoError(t, h.send(t, alice, network.EventJoin, map[string]string{"username": "Alice", "game_id": "R2"}))

	event, data := ca.last(t)
	assert.Equal(t, network.EventError, event)
	assert.Equal(t, CodeAlreadyJoined, data["code"])
	assert.Equal(t, 1, h.rooms.Count())
}

func TestDispatcher_JoinDetachedRoom(t *testing.T) {
	h := newHarness(t, Options{})
	alice, _ := h.connect("tok-alice")
	bob, cb := h.connect("tok-bob")
	require.NoError(t, h.send(t, alice, network.EventJoin, map[string]string{"username": "Alice", "game_id": "R1"}))

	// 房间已被终止流程摘除订阅者，但仍在注册表中
	r := h.game(t, "R1")
	r.Detach()

	require.NoError(t, h.send(t, bob, network.EventJoin, map[string]string{"username": "Bob", "game_id": "R1"}))
	event, data := cb.last(t)
	assert.Equal(t, network.EventError, event)
	assert.Equal(t, CodeRoomClosed, data["code"])
	assert.False(t, r.IsSubscribed(bob.ID))
	roomID, _ := bob.Binding()
	assert.Empty(t, roomID)
	assert.Empty(t, bob.Watching())

	require.NoError(t, h.send(t, bob, network.EventJoin, map[string]string{"username": "Bob", "game_id": "R2"}))
	event, _ = cb.last(t)
	assert.Equal(t, network.EventWaitingForOpponent, event)
	roomID, name := bob.Binding()
	assert.Equal(t, "R2", roomID)
	assert.Equal(t, "Bob", name)
}

func TestDispatcher_TerminateAfterRegistryRemoval(t *testing.T) {
	h := newHarness(t, Options{})
	alice, bob, _, _ := h.startGame(t)
	r := h.game(t, "R1")
	h.mon.SetActiveRooms(h.rooms.Count())
	require.Equal(t, 1.0, testutil.ToFloat64(h.mon.Metrics().ActiveRooms))

	// 加入流程先一步把已关闭的房间移出注册表
	require.True(t, h.rooms.Remove("R1", r))
	h.d.Terminate(r, "player left")

	assert.Equal(t, 0.0, testutil.ToFloat64(h.mon.Metrics().ActiveRooms))
	assert.Empty(t, r.GetSessions())
	assert.Empty(t, alice.Watching())
	assert.Empty(t, bob.Watching())
	roomID, _ := alice.Binding()
	assert.Empty(t, roomID)
}

func TestDispatcher_UnknownRoomIsNoop(t *testing.T) {
	h := newHarness(t, Options{})
	alice, _, ca, _ := h.startGame(t)

	for _, event := range []string{network.EventMakeMove, network.EventRequestRematch, network.EventDeclineRematch, network.EventAcceptRematch, network.EventEndGame} {
		require.NoError(t, h.send(t, alice, event, move("nope", "Alice", 0)))
	}
	assert.Empty(t, ca.events())
	assert.Equal(t, 1, h.rooms.Count())
}

func TestDispatcher_InvalidPayloads(t *testing.T) {
	h := newHarness(t, Options{})
	alice, _, ca, _ := h.startGame(t)

	err := h.d.Handle(context.Background(), alice, &network.Message{Event: network.EventMakeMove, Data: json.RawMessage(`{"game_id":"R1","position":"x"}`)})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, data := ca.last(t)
	assert.Equal(t, CodeInvalidPayload, data["code"])

	err = h.send(t, alice, network.EventMakeMove, map[string]any{"game_id": "R1"})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	lonely, cl := h.connect("tok-lonely")
	err = h.send(t, lonely, network.EventJoin, map[string]string{"username": "", "game_id": "R9"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, data = cl.last(t)
	assert.Equal(t, CodeInvalidPayload, data["code"])
	assert.Equal(t, 1, h.rooms.Count())
}

func TestDispatcher_UnknownEvent(t *testing.T) {
	h := newHarness(t, Options{})
	sess, conn := h.connect("tok")

	err := h.send(t, sess, "dance", nil)
	assert.ErrorIs(t, err, ErrUnknownEvent)
	_, data := conn.last(t)
	assert.Equal(t, CodeUnknownEvent, data["code"])
}

func TestDispatcher_RematchCycle(t *testing.T) {
	h := newHarness(t, Options{})
	alice, bob, ca, cb := h.startGame(t)
	playDraw(t, h, alice, bob)
	ca.reset()

	require.NoError(t, h.send(t, bob, network.EventRequestRematch, map[string]string{"game_id": "R1", "player": "Bob"}))
	event, data := ca.last(t)
	assert.Equal(t, network.EventRematchRequested, event)
	assert.Equal(t, map[string]any{"requestedBy": "Bob"}, data)

	require.NoError(t, h.send(t, alice, network.EventAcceptRematch, map[string]string{"game_id": "R1"}))
	event, data = cb.last(t)
	assert.Equal(t, network.EventGameReset, event)
	assert.Equal(t, "Alice", data["current_turn"])
	assert.Equal(t, 1.0, data["draws"])
	assert.Equal(t, map[string]any{"p1": "Draw", "p2": "Draw"}, data["last_result"])

	g := h.game(t, "R1").Game
	assert.Equal(t, state.InProgress, g.Phase())
	for _, cell := range g.Board() {
		assert.Empty(t, string(cell))
	}
}

func TestDispatcher_AcceptWithoutRequestIsSilent(t *testing.T) {
	h := newHarness(t, Options{})
	alice, _, ca, cb := h.startGame(t)

	require.NoError(t, h.send(t, alice, network.EventAcceptRematch, map[string]string{"game_id": "R1"}))
	assert.Empty(t, ca.events())
	assert.Empty(t, cb.events())
}

func TestDispatcher_DeclineRematch(t *testing.T) {
	h := newHarness(t, Options{})
	alice, bob, _, cb := h.startGame(t)
	require.NoError(t, h.send(t, alice, network.EventRequestRematch, map[string]string{"game_id": "R1"}))

	require.NoError(t, h.send(t, bob, network.EventDeclineRematch, map[string]string{"game_id": "R1"}))
	event, data := cb.last(t)
	assert.Equal(t, network.EventRematchDeclined, event)
	assert.Nil(t, data)
	assert.Empty(t, h.game(t, "R1").Game.RematchRequestedBy())
}

func TestDispatcher_RematchWhileWaiting(t *testing.T) {
	h := newHarness(t, Options{})
	alice, ca := h.connect("tok-alice")
	require.NoError(t, h.send(t, alice, network.EventJoin, map[string]string{"username": "Alice", "game_id": "R1"}))

	require.NoError(t, h.send(t, alice, network.EventRequestRematch, map[string]string{"game_id": "R1"}))
	event, data := ca.last(t)
	assert.Equal(t, network.EventError, event)
	assert.Equal(t, CodeNoOpponent, data["code"])
}

func TestDispatcher_EndGameTerminatesImmediately(t *testing.T) {
	h := newHarness(t, Options{})
	alice, bob, ca, cb := h.startGame(t)
	playDraw(t, h, alice, bob)

	require.NoError(t, h.send(t, bob, network.EventEndGame, map[string]string{"game_id": "R1"}))

	for _, c := range []*MockConnection{ca, cb} {
		event, data := c.last(t)
		assert.Equal(t, network.EventGameEnded, event)
		assert.Equal(t, 1.0, data["total_matches"])
		assert.Equal(t, "Draw", data["last_winner"])
		assert.Len(t, data["match_history"], 1)
		assert.Equal(t, "Bob", data["player2"].(map[string]any)["name"])
	}

	_, exists := h.rooms.GetRoom("R1")
	assert.False(t, exists)
	roomID, _ := alice.Binding()
	assert.Empty(t, roomID, "terminated room releases its players")

	// 终止后的迟到事件直接忽略
	ca.reset()
	require.NoError(t, h.send(t, alice, network.EventMakeMove, move("R1", "Alice", 0)))
	assert.Empty(t, ca.events())

	assert.Eventually(t, func() bool { return len(h.archive.Summaries()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.archive.Summaries()[0].Draws)
}

func TestDispatcher_EndGameGracePeriod(t *testing.T) {
	h := newHarness(t, Options{EndGrace: 50 * time.Millisecond})
	alice, _, _, _ := h.startGame(t)

	require.NoError(t, h.send(t, alice, network.EventEndGame, map[string]string{"game_id": "R1"}))

	_, exists := h.rooms.GetRoom("R1")
	assert.True(t, exists, "room stays readable during the grace period")
	assert.True(t, h.timers.Pending(endKey("R1")))

	assert.Eventually(t, func() bool {
		_, exists := h.rooms.GetRoom("R1")
		return !exists
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_EndGameWhileWaiting(t *testing.T) {
	h := newHarness(t, Options{})
	alice, ca := h.connect("tok-alice")
	require.NoError(t, h.send(t, alice, network.EventJoin, map[string]string{"username": "Alice", "game_id": "R1"}))

	require.NoError(t, h.send(t, alice, network.EventEndGame, map[string]string{"game_id": "R1"}))
	event, data := ca.last(t)
	assert.Equal(t, network.EventGameEnded, event)
	assert.Nil(t, data["player2"])
	assert.Nil(t, data["last_winner"])
	assert.Equal(t, []any{}, data["match_history"])
}

func TestDispatcher_DisconnectAbandonsRoom(t *testing.T) {
	h := newHarness(t, Options{})
	_, bob, ca, _ := h.startGame(t)
	r := h.game(t, "R1")

	h.d.Disconnect(bob)

	event, data := ca.last(t)
	assert.Equal(t, network.EventPlayerLeft, event)
	assert.Equal(t, map[string]any{"player": "Bob"}, data)
	assert.Equal(t, state.Abandoned, r.Game.Phase())
	_, exists := h.rooms.GetRoom("R1")
	assert.False(t, exists)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.mon.Metrics().ActiveRooms))

	// 再次断开无副作用
	h.d.Disconnect(bob)
}

func TestDispatcher_SpectatorDisconnectKeepsRoom(t *testing.T) {
	h := newHarness(t, Options{})
	_, _, ca, _ := h.startGame(t)
	carol, _ := h.connect("tok-carol")
	require.NoError(t, h.send(t, carol, network.EventJoin, map[string]string{"username": "Carol", "game_id": "R1"}))

	h.d.Disconnect(carol)

	r := h.game(t, "R1")
	assert.False(t, r.IsSubscribed(carol.ID))
	assert.Equal(t, state.InProgress, r.Game.Phase())
	assert.Empty(t, ca.events())
}

func TestDispatcher_SweepIdle(t *testing.T) {
	h := newHarness(t, Options{IdleTimeout: 20 * time.Millisecond})
	_, _, ca, _ := h.startGame(t)

	h.d.SweepIdle()
	_, exists := h.rooms.GetRoom("R1")
	assert.True(t, exists)

	time.Sleep(30 * time.Millisecond)
	h.d.SweepIdle()

	_, exists = h.rooms.GetRoom("R1")
	assert.False(t, exists)
	event, data := ca.last(t)
	assert.Equal(t, network.EventError, event)
	assert.Equal(t, CodeRoomClosed, data["code"])
}

func TestDispatcher_StartStop(t *testing.T) {
	h := newHarness(t, Options{IdleTimeout: time.Minute})
	h.d.Start()
	assert.Equal(t, 1, h.timers.Len())
	h.d.Start()
	assert.Equal(t, 1, h.timers.Len())
	h.d.Stop()
	assert.Equal(t, 0, h.timers.Len())
}

func TestDispatcher_ConcurrentMoves(t *testing.T) {
	h := newHarness(t, Options{})
	alice, bob, _, _ := h.startGame(t)

	var wg sync.WaitGroup
	for pos := 0; pos < 9; pos++ {
		for _, p := range []struct {
			sess *session.Session
			name string
		}{{alice, "Alice"}, {bob, "Bob"}} {
			wg.Add(1)
			go func(sess *session.Session, name string, pos int) {
				defer wg.Done()
				_ = h.send(t, sess, network.EventMakeMove, move("R1", name, pos))
			}(p.sess, p.name, pos)
		}
	}
	wg.Wait()

	g := h.game(t, "R1").Game
	x, o := 0, 0
	for _, cell := range g.Board() {
		switch cell {
		case "X":
			x++
		case "O":
			o++
		}
	}
	assert.True(t, x == o || x == o+1, "X=%d O=%d", x, o)
	counters, total := g.Counters()
	assert.Equal(t, total, counters.P1Wins+counters.P2Wins+counters.Draws)
}
