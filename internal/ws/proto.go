// Package ws is the transport layer: one logical channel per connected
// peer, JSON frames, heartbeats, reconnect backoff and the hub that
// demultiplexes frames into match sessions. Delivery to the session is
// at-least-once; the session dedupes by sequence number.
package ws

import (
	"encoding/json"
	"errors"

	"github.com/pefman/hnefatafl-online/internal/board"
	"github.com/pefman/hnefatafl-online/internal/match"
	"github.com/pefman/hnefatafl-online/internal/rules"
)

// Frame is the wire envelope. Inbound payloads stay raw until the
// handler knows the type.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Frame types.
const (
	TypeWelcome = "you"
	TypeJoin    = "join"
	TypeQueue   = "queue"
	TypeMove    = "move"
	TypeResign  = "resign"
	TypeChat    = "chat"
	TypeState   = "state"
	TypeEnded   = "ended"
	TypeError   = "error"
	TypePing    = "ping"
	TypePong    = "pong"
)

// NewFrame marshals v into a frame of the given type.
func NewFrame(typ string, v any) Frame {
	if v == nil {
		return Frame{Type: typ}
	}
	raw, _ := json.Marshal(v)
	return Frame{Type: typ, Data: raw}
}

// Bind unmarshals the frame payload into v.
func (f Frame) Bind(v any) error {
	if len(f.Data) == 0 {
		return errors.New("frame has no payload")
	}
	return json.Unmarshal(f.Data, v)
}

type WelcomePayload struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

type JoinPayload struct {
	MatchID string `json:"match_id"`
}

// QueuePayload asks the matchmaker for a game.
type QueuePayload struct {
	Ruleset     string `json:"ruleset,omitempty"`
	TimeControl string `json:"time_control,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Side        string `json:"side,omitempty"`
	VsAI        bool   `json:"vs_ai,omitempty"`
}

type MovePayload struct {
	MatchID string     `json:"match_id"`
	Move    board.Move `json:"move"`
	Seq     uint64     `json:"seq"`
}

type ResignPayload struct {
	MatchID string `json:"match_id"`
}

type ChatPayload struct {
	MatchID string `json:"match_id"`
	From    string `json:"from,omitempty"`
	Text    string `json:"text"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type EndedPayload struct {
	MatchID      string             `json:"match_id"`
	Status       match.Status       `json:"status"`
	WinnerID     string             `json:"winner_id,omitempty"`
	WinCondition match.WinCondition `json:"win_condition"`
}

// Error codes sent to peers.
const (
	CodeOutOfTurn      = "out_of_turn"
	CodeIllegalMove    = "illegal_move"
	CodeMatchNotActive = "match_not_active"
	CodeDuplicateSeq   = "duplicate_seq"
	CodeUnknownMatch   = "unknown_match"
	CodeBadRequest     = "bad_request"
)

// CodeFor maps session and rules rejections to wire error codes.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, rules.ErrOutOfTurn), errors.Is(err, match.ErrNotAPlayer):
		return CodeOutOfTurn
	case errors.Is(err, rules.ErrNoPieceAtOrigin),
		errors.Is(err, rules.ErrPathBlocked),
		errors.Is(err, rules.ErrIllegalDestination),
		errors.Is(err, rules.ErrNotSlidingAligned):
		return CodeIllegalMove
	case errors.Is(err, match.ErrMatchNotActive):
		return CodeMatchNotActive
	case errors.Is(err, match.ErrDuplicateSeq):
		return CodeDuplicateSeq
	default:
		return CodeBadRequest
	}
}

func errorFrame(code string, err error) Frame {
	return NewFrame(TypeError, ErrorPayload{Code: code, Message: err.Error()})
}
