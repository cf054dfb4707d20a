package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/tictacserver/board"
	"github.com/wfunc/tictacserver/game"
	"github.com/wfunc/tictacserver/logger"
	"github.com/wfunc/tictacserver/models"
	"github.com/wfunc/tictacserver/monitor"
	"github.com/wfunc/tictacserver/network"
	"github.com/wfunc/tictacserver/persistence"
	"github.com/wfunc/tictacserver/room"
	"github.com/wfunc/tictacserver/session"
	"github.com/wfunc/tictacserver/timer"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

const archiveTimeout = 5 * time.Second

// Broadcaster 向房间或单个连接推送事件
type Broadcaster interface {
	BroadcastToRoom(roomID, event string, payload any) error
	SendTo(sessionID, event string, payload any) error
}

// Options controls room lifetime.
type Options struct {
	// IdleTimeout terminates rooms without events for this long; 0 disables.
	IdleTimeout time.Duration
	// EndGrace delays termination after end_game so the stats stay readable.
	EndGrace time.Duration
}

type handlerFunc func(ctx context.Context, sess *session.Session, msg *network.Message) error

// Dispatcher maps inbound events to room operations and emits the resulting
// outbound events.
type Dispatcher struct {
	rooms       *room.Manager
	broadcaster Broadcaster
	archive     persistence.Archive
	timers      *timer.TimerManager
	monitor     *monitor.Monitor
	opts        Options
	handlers    map[string]handlerFunc
	sweepID     int64
}

func New(rooms *room.Manager, b Broadcaster, archive persistence.Archive, timers *timer.TimerManager, mon *monitor.Monitor, opts Options) *Dispatcher {
	d := &Dispatcher{
		rooms:       rooms,
		broadcaster: b,
		archive:     archive,
		timers:      timers,
		monitor:     mon,
		opts:        opts,
	}
	d.handlers = map[string]handlerFunc{
		network.EventJoin:           d.handleJoin,
		network.EventMakeMove:       d.handleMakeMove,
		network.EventRequestRematch: d.handleRequestRematch,
		network.EventDeclineRematch: d.handleDeclineRematch,
		network.EventAcceptRematch:  d.handleAcceptRematch,
		network.EventEndGame:        d.handleEndGame,
	}
	return d
}

// Start 启动空闲房间清理
func (d *Dispatcher) Start() {
	if d.opts.IdleTimeout <= 0 || d.sweepID != 0 {
		return
	}
	interval := d.opts.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	d.sweepID = d.timers.AddTimer(interval, interval, d.SweepIdle)
}

// Stop cancels the idle sweep.
func (d *Dispatcher) Stop() {
	if d.sweepID != 0 {
		d.timers.RemoveTimer(d.sweepID)
		d.sweepID = 0
	}
}

// Handle dispatches one inbound event from sess.
func (d *Dispatcher) Handle(ctx context.Context, sess *session.Session, msg *network.Message) error {
	start := time.Now()
	defer func() {
		d.monitor.ObserveMessageLatency(time.Since(start))
	}()
	sess.Touch()

	handler, ok := d.handlers[msg.Event]
	if !ok {
		d.monitor.IncMessagesReceived("unknown")
		d.sendError(sess, CodeUnknownEvent, fmt.Sprintf("unknown event %q", msg.Event))
		return fmt.Errorf("%w: %s", ErrUnknownEvent, msg.Event)
	}
	d.monitor.IncMessagesReceived(msg.Event)
	return handler(ctx, sess, msg)
}

func (d *Dispatcher) decode(sess *session.Session, msg *network.Message, v any) error {
	if err := msg.Decode(v); err != nil {
		d.sendError(sess, CodeInvalidPayload, "malformed "+msg.Event+" payload")
		return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, msg.Event, err)
	}
	return nil
}

func (d *Dispatcher) handleJoin(ctx context.Context, sess *session.Session, msg *network.Message) error {
	var req network.JoinRequest
	if err := d.decode(sess, msg, &req); err != nil {
		return err
	}
	if bound, name := sess.Binding(); bound != "" {
		d.sendError(sess, CodeAlreadyJoined, fmt.Sprintf("already playing as %s in %s", name, bound))
		return nil
	}

	res, err := d.rooms.Join(req.GameID, req.Username, sess.ID)
	if err != nil {
		if errors.Is(err, room.ErrInvalidJoin) {
			d.sendError(sess, CodeInvalidPayload, err.Error())
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		d.sendError(sess, CodeRoomClosed, err.Error())
		return err
	}

	// 先绑定再订阅：订阅成功后房间终止时一定能解除绑定
	if res.Role != room.Rejected {
		sess.Bind(res.Room.ID, res.Slot.Name)
	}
	sess.Watch(res.Room.ID)
	if !res.Room.Subscribe(sess) {
		sess.Unwatch(res.Room.ID)
		d.sendError(sess, CodeRoomClosed, res.Room.ID+" is closed")
		return nil
	}
	res.Room.Touch()

	switch res.Role {
	case room.Creator:
		d.monitor.SetActiveRooms(d.rooms.Count())
		d.broadcast(res.Room.ID, network.EventWaitingForOpponent, WaitingPayload{
			PlayerCount:  "1/2",
			PlayerName:   res.Slot.Name,
			PlayerSymbol: res.Slot.Symbol,
		})

	case room.Joiner:
		first, _ := res.Room.Game.Players()
		d.broadcast(res.Room.ID, network.EventGameStart, GameStartPayload{
			Player1:     first,
			Player2:     res.Slot,
			CurrentTurn: res.Room.Game.TurnOwner(),
		})

	default:
		if errors.Is(res.Reason, game.ErrNameTaken) {
			d.sendError(sess, CodeNameTaken, fmt.Sprintf("%s is already playing in %s", req.Username, req.GameID))
			return nil
		}
		d.send(sess, network.EventRoomFull, nil)
	}
	return nil
}

// actingPlayer resolves the room and the player bound to sess. It reports
// false when the event must be dropped; the connection has already been told
// why, except for unknown rooms which are only logged.
func (d *Dispatcher) actingPlayer(sess *session.Session, event, roomID, claimed string) (*room.Room, string, bool) {
	r, ok := d.rooms.GetRoom(roomID)
	if !ok {
		logger.Log.Warnw("event for unknown room", "event", event, "room_id", roomID, "session", sess.ID)
		return nil, "", false
	}
	name, ok := r.Game.PlayerByToken(sess.ID)
	if !ok {
		d.sendError(sess, CodeNotAPlayer, "not a player of "+roomID)
		return nil, "", false
	}
	if claimed != "" && claimed != name {
		logger.Log.Warnw("identity mismatch", "event", event, "room_id", roomID, "bound", name, "claimed", claimed)
		d.sendError(sess, CodeIdentityMismatch, fmt.Sprintf("connection plays as %s", name))
		return nil, "", false
	}
	r.Touch()
	return r, name, true
}

func (d *Dispatcher) handleMakeMove(ctx context.Context, sess *session.Session, msg *network.Message) error {
	var req network.MoveRequest
	if err := d.decode(sess, msg, &req); err != nil {
		return err
	}
	if req.Position == nil {
		d.sendError(sess, CodeInvalidPayload, "position is required")
		return fmt.Errorf("%w: missing position", ErrInvalidPayload)
	}

	r, name, ok := d.actingPlayer(sess, msg.Event, req.GameID, req.Player)
	if !ok {
		return nil
	}

	result, err := r.Game.SubmitMove(*req.Position, name)
	if err != nil {
		if errors.Is(err, game.ErrIllegalMove) {
			reason := rejectReason(err)
			d.monitor.MoveRejected(reason)
			d.send(sess, network.EventMoveRejected, MoveRejectedPayload{Position: *req.Position, Reason: reason})
			return nil
		}
		d.gameError(sess, r, err)
		return nil
	}

	d.broadcast(r.ID, network.EventMoveMade, MoveMadePayload{
		Position: result.Position,
		Symbol:   result.Symbol,
		NextTurn: result.NextTurn,
		Winner:   optional(result.Winner),
		Stats:    result.Counters,
	})

	if result.Finished() {
		d.roundFinished(ctx, r, result)
	}
	return nil
}

func (d *Dispatcher) roundFinished(ctx context.Context, r *room.Room, result game.MoveResult) {
	first, second := r.Game.Players()
	record := models.MatchRecord{
		RoomID:     r.ID,
		Player1:    first.Name,
		Summary:    result.Summary,
		FinishedAt: time.Now(),
	}
	if second != nil {
		record.Player2 = second.Name
	}
	if result.Outcome.Kind == board.Draw {
		record.Draw = true
		d.monitor.RoundFinished("draw")
	} else {
		record.Winner = result.Winner
		d.monitor.RoundFinished("win")
	}

	d.archiveAsync(ctx, "match", func(ctx context.Context) error {
		return d.archive.SaveMatch(ctx, record)
	})
}

func (d *Dispatcher) handleRequestRematch(ctx context.Context, sess *session.Session, msg *network.Message) error {
	var req network.RematchRequest
	if err := d.decode(sess, msg, &req); err != nil {
		return err
	}
	r, name, ok := d.actingPlayer(sess, msg.Event, req.GameID, req.Player)
	if !ok {
		return nil
	}

	if err := r.Game.RequestRematch(name); err != nil {
		d.gameError(sess, r, err)
		return nil
	}
	d.broadcast(r.ID, network.EventRematchRequested, RematchRequestedPayload{RequestedBy: name})
	return nil
}

func (d *Dispatcher) handleDeclineRematch(ctx context.Context, sess *session.Session, msg *network.Message) error {
	var req network.GameRequest
	if err := d.decode(sess, msg, &req); err != nil {
		return err
	}
	r, _, ok := d.actingPlayer(sess, msg.Event, req.GameID, "")
	if !ok {
		return nil
	}

	if err := r.Game.DeclineRematch(); err != nil {
		d.gameError(sess, r, err)
		return nil
	}
	d.broadcast(r.ID, network.EventRematchDeclined, nil)
	return nil
}

func (d *Dispatcher) handleAcceptRematch(ctx context.Context, sess *session.Session, msg *network.Message) error {
	var req network.GameRequest
	if err := d.decode(sess, msg, &req); err != nil {
		return err
	}
	r, _, ok := d.actingPlayer(sess, msg.Event, req.GameID, "")
	if !ok {
		return nil
	}

	result, reset, err := r.Game.AcceptRematch()
	if err != nil {
		d.gameError(sess, r, err)
		return nil
	}
	if !reset {
		// 没有待处理的重赛请求
		return nil
	}
	d.broadcast(r.ID, network.EventGameReset, GameResetPayload{
		CurrentTurn: result.CurrentTurn,
		P1Wins:      result.Counters.P1Wins,
		P2Wins:      result.Counters.P2Wins,
		Draws:       result.Counters.Draws,
		LastResult:  result.Counters.LastResult,
	})
	return nil
}

func (d *Dispatcher) handleEndGame(ctx context.Context, sess *session.Session, msg *network.Message) error {
	var req network.GameRequest
	if err := d.decode(sess, msg, &req); err != nil {
		return err
	}
	r, _, ok := d.actingPlayer(sess, msg.Event, req.GameID, "")
	if !ok {
		return nil
	}

	summary := r.Game.SnapshotForEnd()
	d.broadcast(r.ID, network.EventGameEnded, newGameEnded(summary))

	record := models.RoomSummary{
		RoomID:       r.ID,
		Player1:      summary.Player1.Name,
		P1Wins:       summary.Counters.P1Wins,
		P2Wins:       summary.Counters.P2Wins,
		Draws:        summary.Counters.Draws,
		TotalMatches: summary.TotalMatches,
		MatchHistory: summary.MatchHistory,
		LastWinner:   summary.LastWinner,
		EndedAt:      time.Now(),
	}
	if summary.Player2 != nil {
		record.Player2 = summary.Player2.Name
	}
	d.archiveAsync(ctx, "room summary", func(ctx context.Context) error {
		return d.archive.SaveRoomSummary(ctx, record)
	})

	if d.opts.EndGrace <= 0 {
		d.Terminate(r, "game ended")
		return nil
	}
	d.timers.Schedule(endKey(r.ID), d.opts.EndGrace, func() {
		d.Terminate(r, "game ended")
	})
	return nil
}

// Disconnect handles a closed connection: it leaves every room it watched and
// abandons the room it played in.
func (d *Dispatcher) Disconnect(sess *session.Session) {
	boundRoom, name := sess.Binding()

	for _, roomID := range sess.Watching() {
		if r, ok := d.rooms.GetRoom(roomID); ok {
			r.Unsubscribe(sess.ID)
		}
		if roomID != boundRoom {
			sess.Unwatch(roomID)
		}
	}
	if boundRoom == "" {
		return
	}
	sess.Unwatch(boundRoom)

	r, ok := d.rooms.GetRoom(boundRoom)
	if !ok {
		return
	}
	if owner, ok := r.Game.PlayerByToken(sess.ID); !ok || owner != name {
		return
	}
	if err := r.Game.Abandon(name); err != nil {
		if !errors.Is(err, game.ErrSessionClosed) {
			logger.Log.Warnw("abandon failed", "room_id", r.ID, "player", name, "error", err)
		}
		return
	}

	logger.Log.Infow("player left", "room_id", r.ID, "player", name)
	d.broadcast(r.ID, network.EventPlayerLeft, PlayerLeftPayload{Player: name})
	d.Terminate(r, "player left")
}

// Terminate removes r from the registry, closes its session and detaches all
// subscribers. Terminating an already terminated room is a no-op.
func (d *Dispatcher) Terminate(r *room.Room, reason string) {
	// A concurrent join may already have removed a closed room; its
	// subscribers still need releasing.
	removed := d.rooms.Remove(r.ID, r)
	subscribers := r.Detach()
	if !removed && subscribers == nil {
		return
	}

	for _, s := range subscribers {
		s.Unwatch(r.ID)
	}
	if removed {
		d.timers.Cancel(endKey(r.ID))
	}
	d.monitor.SetActiveRooms(d.rooms.Count())
	logger.Log.Infow("room terminated", "room_id", r.ID, "reason", reason, "subscribers", len(subscribers))
}

// SweepIdle 终止超过空闲时间的房间
func (d *Dispatcher) SweepIdle() {
	if d.opts.IdleTimeout <= 0 {
		return
	}
	for _, r := range d.rooms.Idle(d.opts.IdleTimeout) {
		d.broadcast(r.ID, network.EventError, ErrorPayload{Code: CodeRoomClosed, Message: "room closed after inactivity"})
		d.Terminate(r, "idle")
	}
}

// gameError reports a session error that is not an illegal move.
func (d *Dispatcher) gameError(sess *session.Session, r *room.Room, err error) {
	switch {
	case errors.Is(err, game.ErrSessionClosed):
		d.sendError(sess, CodeRoomClosed, r.ID+" is closed")
	case errors.Is(err, game.ErrNoOpponent):
		d.sendError(sess, CodeNoOpponent, "waiting for an opponent")
	default:
		logger.Log.Errorw("room operation failed", "room_id", r.ID, "session", sess.ID, "error", err)
		d.sendError(sess, CodeInvalidPayload, err.Error())
	}
}

func (d *Dispatcher) archiveAsync(ctx context.Context, what string, save func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
		defer cancel()
		if err := save(ctx); err != nil {
			logger.Log.Errorw("archive failed", "record", what, "error", err)
		}
	}()
}

func (d *Dispatcher) broadcast(roomID, event string, payload any) {
	if err := d.broadcaster.BroadcastToRoom(roomID, event, payload); err != nil {
		logger.Log.Warnw("broadcast failed", "room_id", roomID, "event", event, "error", err)
	}
}

func (d *Dispatcher) send(sess *session.Session, event string, payload any) {
	if err := d.broadcaster.SendTo(sess.ID, event, payload); err != nil {
		logger.Log.Warnw("send failed", "session", sess.ID, "event", event, "error", err)
	}
}

func (d *Dispatcher) sendError(sess *session.Session, code, message string) {
	d.send(sess, network.EventError, ErrorPayload{Code: code, Message: message})
}

func endKey(roomID string) string {
	return "end:" + roomID
}
