// Package rules implements the tafl rules engine: legal move generation,
// move validation with typed rejections, capture resolution and terminal
// detection. The engine is pure; it never mutates a board it is handed
// and holds no match state beyond the immutable ruleset.
package rules

import (
	"fmt"

	"github.com/pefman/hnefatafl-online/internal/board"
)

// FirstMover opens every tafl game.
const FirstMover = board.SideAttacker

type Engine struct {
	rs board.Ruleset
}

func New(rs board.Ruleset) (*Engine, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &Engine{rs: rs}, nil
}

func (e *Engine) Ruleset() board.Ruleset { return e.rs }

// Scan order for everything directional: north, east, south, west.
var directions = [4]struct{ dr, dc int }{
	{-1, 0},
	{0, 1},
	{1, 0},
	{0, -1},
}

// EachMove visits every legal move for side in a deterministic order:
// origin squares row-major, then north/east/south/west, destinations
// nearest first. fn returns false to stop the walk early.
func (e *Engine) EachMove(b *board.Board, side board.Side, fn func(board.Move) bool) {
	size := b.Size()
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			from := board.Position{Row: r, Col: c}
			if ps, ok := b.At(from).Side(); !ok || ps != side {
				continue
			}
			if !e.eachMoveFrom(b, from, fn) {
				return
			}
		}
	}
}

func (e *Engine) eachMoveFrom(b *board.Board, from board.Position, fn func(board.Move) bool) bool {
	pc := b.At(from)
	for _, d := range directions {
		for step := 1; ; step++ {
			to := board.Position{Row: from.Row + d.dr*step, Col: from.Col + d.dc*step}
			if !b.InBounds(to) || b.At(to) != board.Empty {
				break
			}
			if e.mayRest(b, to, pc) {
				if !fn(board.Move{From: from, To: to}) {
					return false
				}
			}
			if !e.mayPass(b, to, pc) {
				break
			}
		}
	}
	return true
}

// LegalMoves lists every legal move for side in EachMove order.
func (e *Engine) LegalMoves(b *board.Board, side board.Side) []board.Move {
	var moves []board.Move
	e.EachMove(b, side, func(m board.Move) bool {
		moves = append(moves, m)
		return true
	})
	return moves
}

// LegalMovesFrom lists the legal moves of the piece on from, if any.
func (e *Engine) LegalMovesFrom(b *board.Board, from board.Position) []board.Move {
	if _, ok := b.At(from).Side(); !ok {
		return nil
	}
	var moves []board.Move
	e.eachMoveFrom(b, from, func(m board.Move) bool {
		moves = append(moves, m)
		return true
	})
	return moves
}

// HasLegalMove reports whether side can move at all.
func (e *Engine) HasLegalMove(b *board.Board, side board.Side) bool {
	found := false
	e.EachMove(b, side, func(board.Move) bool {
		found = true
		return false
	})
	return found
}

// mayRest reports whether pc may come to rest on an empty square.
func (e *Engine) mayRest(b *board.Board, p board.Position, pc board.Piece) bool {
	return pc == board.King || !b.IsRestricted(p)
}

// mayPass reports whether pc may slide across an empty square.
func (e *Engine) mayPass(b *board.Board, p board.Position, pc board.Piece) bool {
	if b.IsThrone(p) && pc != board.King {
		return e.rs.ThronePassable
	}
	return true
}

// Check validates a single move for the given side to move. It returns
// nil for a legal move, otherwise an error wrapping one of the rejection
// classes in errors.go. Check never mutates the board.
func (e *Engine) Check(b *board.Board, m board.Move, side board.Side) error {
	pc := b.At(m.From)
	if pc == board.Empty {
		return fmt.Errorf("%w: %s", ErrNoPieceAtOrigin, m.From)
	}
	if ps, _ := pc.Side(); ps != side {
		return fmt.Errorf("%w: %s belongs to the %s", ErrOutOfTurn, m.From, ps)
	}
	if !b.InBounds(m.To) {
		return fmt.Errorf("%w: %s is off the board", ErrIllegalDestination, m.To)
	}
	if m.From == m.To || (m.From.Row != m.To.Row && m.From.Col != m.To.Col) {
		return fmt.Errorf("%w: %s", ErrNotSlidingAligned, m)
	}
	dr, dc := sign(m.To.Row-m.From.Row), sign(m.To.Col-m.From.Col)
	cur := m.From
	for {
		cur = board.Position{Row: cur.Row + dr, Col: cur.Col + dc}
		if b.At(cur) != board.Empty {
			return fmt.Errorf("%w: %s is occupied", ErrPathBlocked, cur)
		}
		if cur == m.To {
			break
		}
		if !e.mayPass(b, cur, pc) {
			return fmt.Errorf("%w: the throne blocks %s", ErrPathBlocked, m)
		}
	}
	if !e.mayRest(b, m.To, pc) {
		return fmt.Errorf("%w: only the king may stop on %s", ErrIllegalDestination, m.To)
	}
	return nil
}

// IsLegal is Check as a predicate.
func (e *Engine) IsLegal(b *board.Board, m board.Move, side board.Side) bool {
	return e.Check(b, m, side) == nil
}

// Apply validates m for the side owning the origin piece, then returns a
// new board with the move made and all resulting captures removed, plus
// the captured squares in resolution order. The input board is never
// mutated; on error it is returned untouched logic-wise and the board
// result is nil.
func (e *Engine) Apply(b *board.Board, m board.Move) (*board.Board, []board.Position, error) {
	pc := b.At(m.From)
	if pc == board.Empty {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoPieceAtOrigin, m.From)
	}
	side, _ := pc.Side()
	if err := e.Check(b, m, side); err != nil {
		return nil, nil, err
	}
	nb := b.Clone()
	nb.Put(m.From, board.Empty)
	nb.Put(m.To, pc)
	captured := e.captures(nb, m.To)
	for _, p := range captured {
		nb.Put(p, board.Empty)
	}
	return nb, captured, nil
}

// Replay runs a recorded move list from the starting position, enforcing
// turn order, and returns the final board.
func (e *Engine) Replay(moves []board.Move) (*board.Board, error) {
	b, err := board.Initial(e.rs)
	if err != nil {
		return nil, err
	}
	turn := FirstMover
	for i, m := range moves {
		if err := e.Check(b, m, turn); err != nil {
			return nil, fmt.Errorf("move %d (%s): %w", i+1, m, err)
		}
		nb, _, err := e.Apply(b, m)
		if err != nil {
			return nil, fmt.Errorf("move %d (%s): %w", i+1, m, err)
		}
		b = nb
		if e.Outcome(b) != OutcomeNone {
			if i != len(moves)-1 {
				return nil, fmt.Errorf("move %d: game was already over", i+2)
			}
			break
		}
		turn = turn.Opponent()
	}
	return b, nil
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
