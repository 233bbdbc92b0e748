package rules

import "github.com/pefman/hnefatafl-online/internal/board"

// Outcome is what the engine can read off a board by itself. Draws by
// repetition, resignations and clock expiry are decided above the engine.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeKingEscaped
	OutcomeKingCaptured
)

func (o Outcome) String() string {
	switch o {
	case OutcomeKingEscaped:
		return "king_escaped"
	case OutcomeKingCaptured:
		return "king_captured"
	}
	return "none"
}

// Outcome inspects a board after a move has been applied: the game is won
// by the defenders when the king stands on a corner refuge and by the
// attackers when the king is gone.
func (e *Engine) Outcome(b *board.Board) Outcome {
	kp, ok := b.KingPos()
	if !ok {
		return OutcomeKingCaptured
	}
	if b.IsCorner(kp) {
		return OutcomeKingEscaped
	}
	return OutcomeNone
}

// PositionKey fingerprints a position together with the side to move.
// Equal keys mean the game has reached the same state for repetition
// purposes.
func PositionKey(b *board.Board, toMove board.Side) string {
	return string(toMove) + ":" + b.Key()
}
