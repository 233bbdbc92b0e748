package match

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pefman/hnefatafl-online/internal/board"
	"github.com/pefman/hnefatafl-online/internal/rules"
)

// Session is the single writer for one match. Every transition goes
// through the mutex; reads hand out copies so observers can never touch
// live state.
type Session struct {
	mu  sync.Mutex
	cfg Config
	eng *rules.Engine

	b         *board.Board
	turn      board.Side
	status    Status
	winCond   WinCondition
	winnerID  string
	moves     []MoveRecord
	lastSeq   map[string]uint64
	positions map[string]int
	clock     clock
	timer     *time.Timer
	endedSent bool

	startedAt  time.Time
	finishedAt time.Time
	now        func() time.Time

	subs    map[int]chan Event
	nextSub int
}

func NewSession(cfg Config) (*Session, error) {
	eng, err := rules.New(cfg.Rules)
	if err != nil {
		return nil, err
	}
	if cfg.MatchID == "" {
		return nil, errors.New("match needs an id")
	}
	if cfg.Attacker.PlayerID == "" || cfg.Defender.PlayerID == "" {
		return nil, errors.New("both seats need players")
	}
	if cfg.Attacker.PlayerID == cfg.Defender.PlayerID {
		return nil, errors.New("seats need distinct players")
	}
	cfg.Attacker.Side = board.SideAttacker
	cfg.Defender.Side = board.SideDefender
	if cfg.Kind == "" {
		cfg.Kind = "casual"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	b, err := board.Initial(cfg.Rules)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:       cfg,
		eng:       eng,
		b:         b,
		turn:      rules.FirstMover,
		status:    StatusActive,
		lastSeq:   make(map[string]uint64),
		positions: make(map[string]int),
		now:       now,
		startedAt: now(),
		subs:      make(map[int]chan Event),
	}
	s.clock = newClock(cfg.Clock, s.startedAt)
	s.positions[rules.PositionKey(b, s.turn)] = 1

	s.mu.Lock()
	s.armTimerLocked()
	s.mu.Unlock()
	return s, nil
}

func (s *Session) ID() string   { return s.cfg.MatchID }
func (s *Session) Kind() string { return s.cfg.Kind }

func (s *Session) Seats() (attacker, defender Seat) {
	return s.cfg.Attacker, s.cfg.Defender
}

// SubmitMove is the only way a move enters the match. seq must be
// strictly greater than the player's last accepted sequence number, so a
// redelivered frame is dropped instead of reapplied.
func (s *Session) SubmitMove(playerID string, mv board.Move, seq uint64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return Snapshot{}, ErrMatchNotActive
	}
	seat, ok := s.seatOf(playerID)
	if !ok {
		return Snapshot{}, ErrNotAPlayer
	}
	if seq <= s.lastSeq[playerID] {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrDuplicateSeq, seq)
	}
	if seat.Side != s.turn {
		return Snapshot{}, fmt.Errorf("%w: it is the %s's move", rules.ErrOutOfTurn, s.turn)
	}
	if err := s.eng.Check(s.b, mv, s.turn); err != nil {
		return Snapshot{}, err
	}
	nb, caps, err := s.eng.Apply(s.b, mv)
	if err != nil {
		return Snapshot{}, err
	}

	rec := MoveRecord{
		Number:   len(s.moves) + 1,
		PlayerID: playerID,
		Side:     seat.Side,
		Move:     mv,
		Captures: caps,
		Seq:      seq,
		PlayedAt: s.now(),
	}
	s.moves = append(s.moves, rec)
	s.lastSeq[playerID] = seq
	s.b = nb
	s.clock.moveMade(seat.Side, rec.PlayedAt)
	s.turn = s.turn.Opponent()

	switch s.eng.Outcome(nb) {
	case rules.OutcomeKingEscaped:
		s.finishLocked(StatusKingEscaped, WinKingEscaped, s.cfg.Defender.PlayerID)
	case rules.OutcomeKingCaptured:
		s.finishLocked(StatusKingCaptured, WinKingCaptured, s.cfg.Attacker.PlayerID)
	default:
		key := rules.PositionKey(nb, s.turn)
		s.positions[key]++
		if s.positions[key] >= s.cfg.Rules.RepetitionLimit {
			s.finishLocked(StatusDrawnByRepetition, WinDraw, "")
		} else {
			s.armTimerLocked()
		}
	}
	return s.broadcastLocked(), nil
}

// Resign ends the match in the opponent's favour. A player may resign
// whether or not it is their turn.
func (s *Session) Resign(playerID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return Snapshot{}, ErrMatchNotActive
	}
	seat, ok := s.seatOf(playerID)
	if !ok {
		return Snapshot{}, ErrNotAPlayer
	}
	winner := s.seatFor(seat.Side.Opponent())
	s.finishLocked(StatusResigned, WinResignation, winner.PlayerID)
	return s.broadcastLocked(), nil
}

// ExpireClock flags the given side if its time is really gone. A move
// accepted while the timer fired wins the race: the session re-derives
// the remaining time under the lock and re-arms instead of flagging.
func (s *Session) ExpireClock(side board.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() || !s.clock.control.Enabled() || side != s.turn {
		return
	}
	left := s.clock.left(side, s.turn, s.now())
	if left > 0 {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = time.AfterFunc(left, func() { s.ExpireClock(side) })
		return
	}
	s.clock.remaining[side] = 0
	winner := s.seatFor(side.Opponent())
	s.finishLocked(StatusTimedOut, WinTimeout, winner.PlayerID)
	s.broadcastLocked()
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// History copies the accepted move list.
func (s *Session) History() []MoveRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MoveRecord, len(s.moves))
	copy(out, s.moves)
	return out
}

// Result is available once the session is terminal.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Terminal() {
		return Result{}, false
	}
	return s.resultLocked(), true
}

// Subscribe registers an observer. Events are dropped, never blocked on,
// when the observer's buffer is full; each observer still sees its own
// events in order. The returned func unsubscribes and is idempotent.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 16)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

func (s *Session) seatOf(playerID string) (Seat, bool) {
	switch playerID {
	case "":
		return Seat{}, false
	case s.cfg.Attacker.PlayerID:
		return s.cfg.Attacker, true
	case s.cfg.Defender.PlayerID:
		return s.cfg.Defender, true
	}
	return Seat{}, false
}

func (s *Session) seatFor(side board.Side) Seat {
	if side == board.SideAttacker {
		return s.cfg.Attacker
	}
	return s.cfg.Defender
}

func (s *Session) finishLocked(st Status, cond WinCondition, winnerID string) {
	s.status = st
	s.winCond = cond
	s.winnerID = winnerID
	s.finishedAt = s.now()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	log.Info().
		Str("match", s.cfg.MatchID).
		Str("status", string(st)).
		Str("winner", winnerID).
		Int("moves", len(s.moves)).
		Msg("match ended")
	if s.cfg.OnEnded != nil {
		res := s.resultLocked()
		go s.cfg.OnEnded(res)
	}
}

func (s *Session) resultLocked() Result {
	res := Result{
		MatchID:      s.cfg.MatchID,
		Kind:         s.cfg.Kind,
		Ruleset:      s.cfg.Rules,
		Status:       s.status,
		WinCondition: s.winCond,
		Attacker:     s.cfg.Attacker,
		Defender:     s.cfg.Defender,
		WinnerID:     s.winnerID,
		Moves:        make([]MoveRecord, len(s.moves)),
		FinalBoard:   s.b.Rows(),
		StartedAt:    s.startedAt,
		FinishedAt:   s.finishedAt,
	}
	copy(res.Moves, s.moves)
	if s.winnerID == s.cfg.Attacker.PlayerID {
		res.LoserID = s.cfg.Defender.PlayerID
	} else if s.winnerID == s.cfg.Defender.PlayerID {
		res.LoserID = s.cfg.Attacker.PlayerID
	}
	return res
}

func (s *Session) snapshotLocked() Snapshot {
	now := s.now()
	running := board.Side("")
	if s.status == StatusActive && s.clock.control.Enabled() {
		running = s.turn
	}
	snap := Snapshot{
		MatchID:      s.cfg.MatchID,
		Kind:         s.cfg.Kind,
		Ruleset:      s.cfg.Rules,
		Board:        s.b.Rows(),
		Turn:         s.turn,
		Status:       s.status,
		WinCondition: s.winCond,
		WinnerID:     s.winnerID,
		Attacker:     s.cfg.Attacker,
		Defender:     s.cfg.Defender,
		Clocks: ClockState{
			AttackerMs:  s.clock.left(board.SideAttacker, running, now).Milliseconds(),
			DefenderMs:  s.clock.left(board.SideDefender, running, now).Milliseconds(),
			IncrementMs: s.clock.control.Increment.Milliseconds(),
			Running:     running,
		},
		MoveCount: len(s.moves),
	}
	if n := len(s.moves); n > 0 {
		last := s.moves[n-1]
		snap.LastMove = &last
	}
	return snap
}

func (s *Session) armTimerLocked() {
	if s.status != StatusActive || !s.clock.control.Enabled() {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	side := s.turn
	d := s.clock.left(side, side, s.now())
	s.timer = time.AfterFunc(d, func() { s.ExpireClock(side) })
}

// broadcastLocked pushes the post-transition snapshot to every
// subscriber and returns it. The terminal transition carries the match
// result exactly once.
func (s *Session) broadcastLocked() Snapshot {
	snap := s.snapshotLocked()
	ev := Event{Snapshot: snap}
	if s.status.Terminal() && !s.endedSent {
		s.endedSent = true
		res := s.resultLocked()
		ev.Ended = &res
	}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return snap
}
