// Package match owns the authoritative state of one running game: board,
// turn, clocks and move history. All mutation is serialized behind a
// per-session mutex; the rules engine itself stays pure. Terminal states
// are absorbing and produce exactly one end-of-match result.
package match

import (
	"errors"
	"time"

	"github.com/pefman/hnefatafl-online/internal/board"
)

var (
	ErrMatchNotActive = errors.New("match is not active")
	ErrNotAPlayer     = errors.New("player has no seat in this match")
	ErrDuplicateSeq   = errors.New("sequence number already applied")
)

// Status is the session state machine. Active transitions to exactly one
// terminal status and never leaves it.
type Status string

const (
	StatusActive            Status = "active"
	StatusKingEscaped       Status = "king_escaped"
	StatusKingCaptured      Status = "king_captured"
	StatusResigned          Status = "resigned"
	StatusTimedOut          Status = "timed_out"
	StatusDrawnByRepetition Status = "drawn_by_repetition"
)

func (s Status) Terminal() bool { return s != StatusActive }

// WinCondition is how the result was decided, for rating and archives.
type WinCondition string

const (
	WinNone         WinCondition = ""
	WinKingEscaped  WinCondition = "king_escaped"
	WinKingCaptured WinCondition = "king_captured"
	WinResignation  WinCondition = "resignation"
	WinTimeout      WinCondition = "timeout"
	WinDraw         WinCondition = "draw"
)

// Seat binds a player to a side of the board.
type Seat struct {
	PlayerID string     `json:"player_id"`
	Name     string     `json:"name"`
	Side     board.Side `json:"side"`
	AI       bool       `json:"ai,omitempty"`
}

// Config describes a match at creation time.
type Config struct {
	MatchID  string
	Rules    board.Ruleset
	Attacker Seat
	Defender Seat
	Clock    TimeControl
	Kind     string

	// OnEnded is called exactly once, from its own goroutine, when the
	// session reaches a terminal status. Used for result reporting.
	OnEnded func(Result)

	// Now overrides the clock source in tests.
	Now func() time.Time
}

// MoveRecord is one accepted ply.
type MoveRecord struct {
	Number   int              `json:"number"`
	PlayerID string           `json:"player_id"`
	Side     board.Side       `json:"side"`
	Move     board.Move       `json:"move"`
	Captures []board.Position `json:"captures,omitempty"`
	Seq      uint64           `json:"seq"`
	PlayedAt time.Time        `json:"played_at"`
}

// ClockState is the wire view of both clocks at snapshot time.
type ClockState struct {
	AttackerMs  int64      `json:"attacker_ms"`
	DefenderMs  int64      `json:"defender_ms"`
	IncrementMs int64      `json:"increment_ms"`
	Running     board.Side `json:"running,omitempty"`
}

// Snapshot is the full observable state of a session, safe to hand to
// any number of readers.
type Snapshot struct {
	MatchID      string        `json:"match_id"`
	Kind         string        `json:"kind"`
	Ruleset      board.Ruleset `json:"ruleset"`
	Board        []string      `json:"board"`
	Turn         board.Side    `json:"turn"`
	Status       Status        `json:"status"`
	WinCondition WinCondition  `json:"win_condition,omitempty"`
	WinnerID     string        `json:"winner_id,omitempty"`
	Attacker     Seat          `json:"attacker"`
	Defender     Seat          `json:"defender"`
	Clocks       ClockState    `json:"clocks"`
	MoveCount    int           `json:"move_count"`
	LastMove     *MoveRecord   `json:"last_move,omitempty"`
}

// Result is the immutable record of a finished match.
type Result struct {
	MatchID      string        `json:"match_id"`
	Kind         string        `json:"kind"`
	Ruleset      board.Ruleset `json:"ruleset"`
	Status       Status        `json:"status"`
	WinCondition WinCondition  `json:"win_condition"`
	Attacker     Seat          `json:"attacker"`
	Defender     Seat          `json:"defender"`
	WinnerID     string        `json:"winner_id,omitempty"`
	LoserID      string        `json:"loser_id,omitempty"`
	Moves        []MoveRecord  `json:"moves"`
	FinalBoard   []string      `json:"final_board"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// Event is pushed to subscribers after every accepted transition. Ended
// is non-nil on the terminal transition only.
type Event struct {
	Snapshot Snapshot
	Ended    *Result
}
