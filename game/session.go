package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/tictacserver/board"
	"github.com/wfunc/tictacserver/state"
)

// DefaultHistoryLimit is how many match summaries a session keeps.
const DefaultHistoryLimit = 5

// Option configures a Session.
type Option func(*Session)

// WithHistoryLimit caps the stored match history. Values below 1 are ignored.
func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithClock overrides the clock used to stamp match summaries.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session is the authoritative state of one room: the board, both player
// slots, the turn owner, rematch negotiation and the room's cumulative
// statistics. All methods are safe for concurrent use; exactly one mutator
// runs at a time.
type Session struct {
	roomID string

	mu           sync.Mutex
	machine      *state.Machine
	board        *board.Board
	first        PlayerSlot
	second       *PlayerSlot
	turnOwner    string
	rematchBy    string
	winsFirst    int
	winsSecond   int
	draws        int
	totalMatches int
	lastResult   LastResult
	lastWinner   string
	history      []string
	historyLimit int
	now          func() time.Time
}

// NewSession 创建对局，第一个玩家执 X 并先手
func NewSession(roomID, firstName, firstToken string, opts ...Option) *Session {
	s := &Session{
		roomID:       roomID,
		machine:      state.NewGameMachine(),
		board:        board.New(),
		first:        PlayerSlot{Name: firstName, Symbol: board.X, Avatar: "x.png", token: firstToken},
		turnOwner:    firstName,
		lastResult:   LastResult{P1: ResultUnset, P2: ResultUnset},
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RoomID returns the room the session belongs to.
func (s *Session) RoomID() string {
	return s.roomID
}

// AssignSecondPlayer 第二个玩家加入，执 O，对局开始
func (s *Session) AssignSecondPlayer(name, token string) (PlayerSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.IsTerminal() {
		return PlayerSlot{}, ErrSessionClosed
	}
	if s.second != nil || !s.machine.Is(state.WaitingForOpponent) {
		return PlayerSlot{}, ErrRoomFull
	}
	if name == s.first.Name {
		return PlayerSlot{}, ErrNameTaken
	}
	if err := s.machine.Transition(state.InProgress); err != nil {
		return PlayerSlot{}, err
	}

	s.second = &PlayerSlot{Name: name, Symbol: board.O, Avatar: "o.png", token: token}
	s.turnOwner = s.first.Name
	return *s.second, nil
}

// SubmitMove applies a move for player at position. Every rejection wraps
// ErrIllegalMove and leaves the session untouched.
func (s *Session) SubmitMove(position int, player string) (MoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.IsTerminal() {
		return MoveResult{}, ErrSessionClosed
	}
	if !s.machine.Is(state.InProgress) {
		return MoveResult{}, fmt.Errorf("%w: %w", ErrIllegalMove, ErrNotInProgress)
	}
	slot, ok := s.slotByName(player)
	if !ok {
		return MoveResult{}, fmt.Errorf("%w: %w", ErrIllegalMove, ErrUnknownPlayer)
	}
	if player != s.turnOwner {
		return MoveResult{}, fmt.Errorf("%w: %w", ErrIllegalMove, ErrNotYourTurn)
	}
	if position < 0 || position >= board.Size {
		return MoveResult{}, fmt.Errorf("%w: %w", ErrIllegalMove, ErrOutOfRange)
	}
	if !s.board.Place(position, slot.Symbol) {
		return MoveResult{}, fmt.Errorf("%w: %w", ErrIllegalMove, ErrCellOccupied)
	}

	s.turnOwner = s.other(player)

	result := MoveResult{
		Position: position,
		Symbol:   slot.Symbol,
		Player:   player,
		NextTurn: s.turnOwner,
		Outcome:  s.board.Outcome(),
	}

	switch result.Outcome.Kind {
	case board.Winner:
		result.Winner = s.nameFor(result.Outcome.Symbol)
		result.Summary = s.finishRound(result.Winner)
	case board.Draw:
		result.Winner = DrawWinner
		result.Summary = s.finishRound(DrawWinner)
	}

	result.Counters = s.counters()
	return result, nil
}

// finishRound 记录本局结果并进入 round_over；调用方持有锁
func (s *Session) finishRound(winner string) string {
	s.totalMatches++
	stamp := s.now().Format("15:04:05")

	var summary string
	if winner == DrawWinner {
		s.draws++
		s.lastResult = LastResult{P1: ResultDraw, P2: ResultDraw}
		s.lastWinner = ResultDraw
		summary = fmt.Sprintf("Draw at %s", stamp)
	} else {
		if winner == s.first.Name {
			s.winsFirst++
			s.lastResult = LastResult{P1: ResultWon, P2: ResultLost}
		} else {
			s.winsSecond++
			s.lastResult = LastResult{P1: ResultLost, P2: ResultWon}
		}
		s.lastWinner = winner
		summary = fmt.Sprintf("%s won at %s", winner, stamp)
	}

	s.history = append(s.history, summary)
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = append([]string(nil), s.history[over:]...)
	}

	_ = s.machine.Transition(state.RoundOver)
	return summary
}

// RequestRematch records player as the rematch requester. It is accepted
// while a round is in progress or over; a waiting room has no opponent.
func (s *Session) RequestRematch(player string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.IsTerminal() {
		return ErrSessionClosed
	}
	if s.machine.Is(state.WaitingForOpponent) {
		return ErrNoOpponent
	}
	if _, ok := s.slotByName(player); !ok {
		return ErrUnknownPlayer
	}
	s.rematchBy = player
	return nil
}

// DeclineRematch 清除重赛请求，不改变状态
func (s *Session) DeclineRematch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.IsTerminal() {
		return ErrSessionClosed
	}
	s.rematchBy = ""
	return nil
}

// AcceptRematch resets the board when a rematch is pending. It reports false
// and changes nothing when no request is pending.
func (s *Session) AcceptRematch() (RematchResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.IsTerminal() {
		return RematchResult{}, false, ErrSessionClosed
	}
	if s.rematchBy == "" {
		return RematchResult{}, false, nil
	}

	if !s.machine.Is(state.InProgress) {
		if err := s.machine.Transition(state.InProgress); err != nil {
			return RematchResult{}, false, err
		}
	}
	s.board.Reset()
	s.turnOwner = s.first.Name
	s.rematchBy = ""

	return RematchResult{CurrentTurn: s.turnOwner, Counters: s.counters()}, true, nil
}

// RematchRequestedBy returns the pending requester, if any.
func (s *Session) RematchRequestedBy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rematchBy
}

// SnapshotForEnd 结束报告，不修改也不终止对局
func (s *Session) SnapshotForEnd() EndSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return EndSummary{
		Player1:      s.first,
		Player2:      s.secondCopy(),
		Counters:     s.counters(),
		TotalMatches: s.totalMatches,
		MatchHistory: append([]string{}, s.history...),
		LastWinner:   s.lastWinner,
	}
}

// Stats returns the statistics snapshot with at most recent history entries.
func (s *Session) Stats(recent int) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.history
	if recent >= 0 && len(history) > recent {
		history = history[len(history)-recent:]
	}

	return Stats{
		RoomID:        s.roomID,
		Phase:         string(s.machine.Current()),
		Player1:       s.first,
		Player2:       s.secondCopy(),
		P1Wins:        s.winsFirst,
		P2Wins:        s.winsSecond,
		Draws:         s.draws,
		TotalMatches:  s.totalMatches,
		LastResult:    s.lastResult,
		LastWinner:    s.lastWinner,
		RecentMatches: append([]string{}, history...),
	}
}

// Abandon moves the session to the terminal abandoned phase after player
// disconnected.
func (s *Session) Abandon(player string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.IsTerminal() {
		return ErrSessionClosed
	}
	if _, ok := s.slotByName(player); !ok {
		return ErrUnknownPlayer
	}
	return s.machine.Transition(state.Abandoned)
}

// Close terminates the session. Closing a terminated session is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.machine.IsTerminal() {
		_ = s.machine.Transition(state.Closed)
	}
}

// PlayerByToken returns the slot name bound to token.
func (s *Session) PlayerByToken(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		return "", false
	}
	if s.first.token == token {
		return s.first.Name, true
	}
	if s.second != nil && s.second.token == token {
		return s.second.Name, true
	}
	return "", false
}

// Phase 当前阶段
func (s *Session) Phase() state.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// TurnOwner returns the name of the player expected to move.
func (s *Session) TurnOwner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnOwner
}

// Board returns a copy of the cells.
func (s *Session) Board() [board.Size]board.Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Cells()
}

// Players returns both slots; the second is nil until someone joins.
func (s *Session) Players() (PlayerSlot, *PlayerSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.first, s.secondCopy()
}

// Counters returns the running totals.
func (s *Session) Counters() (Counters, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters(), s.totalMatches
}

func (s *Session) counters() Counters {
	return Counters{
		P1Wins:     s.winsFirst,
		P2Wins:     s.winsSecond,
		Draws:      s.draws,
		LastResult: s.lastResult,
	}
}

func (s *Session) slotByName(name string) (PlayerSlot, bool) {
	if name != "" && name == s.first.Name {
		return s.first, true
	}
	if s.second != nil && name != "" && name == s.second.Name {
		return *s.second, true
	}
	return PlayerSlot{}, false
}

func (s *Session) other(name string) string {
	if name == s.first.Name && s.second != nil {
		return s.second.Name
	}
	return s.first.Name
}

func (s *Session) nameFor(symbol board.Symbol) string {
	if symbol == s.first.Symbol {
		return s.first.Name
	}
	return s.second.Name
}

func (s *Session) secondCopy() *PlayerSlot {
	if s.second == nil {
		return nil
	}
	p := *s.second
	return &p
}
