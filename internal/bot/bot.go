// Package bot is the built-in opponent. It plays legal tafl at a casual
// level: it takes a win when one is on the board, otherwise prefers
// captures and a little progress, with ties broken at random.
package bot

import (
	"math/rand"
	"time"

	"github.com/pefman/hnefatafl-online/internal/board"
	"github.com/pefman/hnefatafl-online/internal/rules"
)

const winScore = 1 << 20

// Mind chooses moves for one ruleset.
type Mind struct {
	eng *rules.Engine
	rnd *rand.Rand
}

// NewMind builds a chooser. Seed zero means play differently every run.
func NewMind(rs board.Ruleset, seed int64) (*Mind, error) {
	eng, err := rules.New(rs)
	if err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Mind{eng: eng, rnd: rand.New(rand.NewSource(seed))}, nil
}

// Choose picks a move for side. ok is false when side cannot move.
func (m *Mind) Choose(b *board.Board, side board.Side) (board.Move, bool) {
	moves := m.eng.LegalMoves(b, side)
	if len(moves) == 0 {
		return board.Move{}, false
	}
	best := make([]board.Move, 0, 8)
	bestScore := -winScore - 1
	for _, mv := range moves {
		s := m.score(b, side, mv)
		switch {
		case s > bestScore:
			bestScore = s
			best = append(best[:0], mv)
		case s == bestScore:
			best = append(best, mv)
		}
	}
	return best[m.rnd.Intn(len(best))], true
}

// score plays mv on a scratch board and values the position reached.
func (m *Mind) score(b *board.Board, side board.Side, mv board.Move) int {
	movingKing := b.At(mv.From) == board.King
	nb, caps, err := m.eng.Apply(b, mv)
	if err != nil {
		return -winScore
	}
	if out := m.eng.Outcome(nb); out != rules.OutcomeNone {
		if winnerOf(out) == side {
			return winScore
		}
		return -winScore
	}

	score := 100 * len(caps)
	score -= 25 * exposedAxes(nb, mv.To)
	score += m.advance(nb, side, mv.To, movingKing)
	return score
}

func winnerOf(out rules.Outcome) board.Side {
	if out == rules.OutcomeKingEscaped {
		return board.SideDefender
	}
	return board.SideAttacker
}

// exposedAxes counts axes where the arrived piece has a hostile flank on
// one side and an empty square on the other. Coarse: it does not check
// whether an enemy can actually reach the empty square this turn.
func exposedAxes(b *board.Board, p board.Position) int {
	pc := b.At(p)
	if pc == board.King {
		return 0
	}
	side, ok := pc.Side()
	if !ok {
		return 0
	}
	n := 0
	for _, ax := range [2][2]int{{1, 0}, {0, 1}} {
		a := board.Position{Row: p.Row - ax[0], Col: p.Col - ax[1]}
		c := board.Position{Row: p.Row + ax[0], Col: p.Col + ax[1]}
		if (flankRisk(b, a, side) && b.InBounds(c) && b.At(c) == board.Empty) ||
			(flankRisk(b, c, side) && b.InBounds(a) && b.At(a) == board.Empty) {
			n++
		}
	}
	return n
}

func flankRisk(b *board.Board, p board.Position, side board.Side) bool {
	if !b.InBounds(p) {
		return false
	}
	if b.IsCorner(p) {
		return true
	}
	if b.IsThrone(p) && b.At(p) == board.Empty {
		return true
	}
	ps, ok := b.At(p).Side()
	return ok && ps != side
}

// advance nudges the game forward: the king walks toward a corner, the
// attackers walk toward the king.
func (m *Mind) advance(b *board.Board, side board.Side, to board.Position, movingKing bool) int {
	size := b.Size()
	if movingKing {
		return 3 * (2*(size-1) - nearestCornerDist(size, to))
	}
	if side == board.SideAttacker {
		kp, ok := b.KingPos()
		if !ok {
			return 0
		}
		return (size - 1) - manhattan(to, kp)
	}
	return 0
}

func nearestCornerDist(size int, p board.Position) int {
	last := size - 1
	best := manhattan(p, board.Position{Row: 0, Col: 0})
	for _, c := range []board.Position{{Row: 0, Col: last}, {Row: last, Col: 0}, {Row: last, Col: last}} {
		if d := manhattan(p, c); d < best {
			best = d
		}
	}
	return best
}

func manhattan(a, b board.Position) int {
	return abs(a.Row-b.Row) + abs(a.Col-b.Col)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
