package rules

import "github.com/pefman/hnefatafl-online/internal/board"

// captures resolves every capture triggered by the piece that just landed
// on to. Order is deterministic: custodian victims north/east/south/west,
// then a surrounded king, then shield wall runs. Duplicates are folded.
func (e *Engine) captures(b *board.Board, to board.Position) []board.Position {
	pc := b.At(to)
	mover, ok := pc.Side()
	if !ok {
		return nil
	}
	if pc == board.King && !e.rs.ArmedKing {
		return nil
	}

	var caps []board.Position
	seen := make(map[board.Position]bool)
	add := func(p board.Position) {
		if !seen[p] {
			seen[p] = true
			caps = append(caps, p)
		}
	}

	for _, d := range directions {
		victimPos := board.Position{Row: to.Row + d.dr, Col: to.Col + d.dc}
		victim := b.At(victimPos)
		vs, isPiece := victim.Side()
		if !isPiece || vs == mover {
			continue
		}
		if victim == board.King && e.rs.StrongKing {
			// a strong king only falls to the surround rule below
			continue
		}
		support := board.Position{Row: to.Row + 2*d.dr, Col: to.Col + 2*d.dc}
		if e.flanks(b, support, mover, vs) {
			add(victimPos)
		}
	}

	if mover == board.SideAttacker && e.rs.StrongKing {
		if kp, ok := b.KingPos(); ok && adjacent(kp, to) && e.kingSurrounded(b, kp) {
			add(kp)
		}
	}

	if e.rs.ShieldWall {
		for _, p := range e.shieldWall(b, to, mover) {
			add(p)
		}
	}
	return caps
}

// flanks reports whether the square on the far side of a victim completes
// a custodian capture: a friendly armed piece, or a square hostile to the
// victim's side.
func (e *Engine) flanks(b *board.Board, p board.Position, mover, victim board.Side) bool {
	if !b.InBounds(p) {
		return false
	}
	pc := b.At(p)
	if ps, ok := pc.Side(); ok && ps == mover && (pc != board.King || e.rs.ArmedKing) {
		return true
	}
	return e.hostileSquare(b, p, victim)
}

// hostileSquare reports whether p acts as a capturing partner against the
// given side. Corners are hostile to everyone. The throne is always
// hostile to attackers; to defenders only when empty and the ruleset says
// an empty throne is hostile.
func (e *Engine) hostileSquare(b *board.Board, p board.Position, victim board.Side) bool {
	if b.IsCorner(p) {
		return true
	}
	if !b.IsThrone(p) {
		return false
	}
	if victim == board.SideAttacker {
		return true
	}
	return e.rs.EmptyThroneHostile && b.At(p) == board.Empty
}

// kingSurrounded is the strong-king capture test: every orthogonal
// neighbour is an attacker, with the throne standing in for one when the
// king fights beside it. The board edge never captures the king.
func (e *Engine) kingSurrounded(b *board.Board, kp board.Position) bool {
	for _, d := range directions {
		n := board.Position{Row: kp.Row + d.dr, Col: kp.Col + d.dc}
		if !b.InBounds(n) {
			return false
		}
		if b.At(n) != board.Attacker && !b.IsThrone(n) {
			return false
		}
	}
	return true
}

// shieldWall finds edge rows bracketed by the piece that just landed on
// to. A run of two or more enemy pieces along the edge is captured when
// the far end is closed by a friendly piece or a corner and every piece
// in the run is faced by a friendly piece from inside the board. A king
// caught in the wall is spared.
func (e *Engine) shieldWall(b *board.Board, to board.Position, mover board.Side) []board.Position {
	last := b.Size() - 1
	type edge struct{ alongR, alongC, inR, inC int }
	var edges []edge
	switch {
	case to.Row == 0:
		edges = append(edges, edge{0, 1, 1, 0})
	case to.Row == last:
		edges = append(edges, edge{0, 1, -1, 0})
	}
	switch {
	case to.Col == 0:
		edges = append(edges, edge{1, 0, 0, 1})
	case to.Col == last:
		edges = append(edges, edge{1, 0, 0, -1})
	}

	var caps []board.Position
	for _, ed := range edges {
		for _, dir := range [2]int{1, -1} {
			caps = append(caps, e.wallRun(b, to, ed.alongR*dir, ed.alongC*dir, ed.inR, ed.inC, mover)...)
		}
	}
	return caps
}

func (e *Engine) wallRun(b *board.Board, from board.Position, dr, dc, inR, inC int, mover board.Side) []board.Position {
	var run []board.Position
	cur := from
	for {
		cur = board.Position{Row: cur.Row + dr, Col: cur.Col + dc}
		if !b.InBounds(cur) {
			return nil
		}
		pc := b.At(cur)
		ps, isPiece := pc.Side()
		if !isPiece {
			if b.IsCorner(cur) {
				break
			}
			return nil
		}
		if ps == mover {
			if pc == board.King && !e.rs.ArmedKing {
				return nil
			}
			break
		}
		run = append(run, cur)
	}
	if len(run) < 2 {
		return nil
	}
	for _, p := range run {
		in := board.Position{Row: p.Row + inR, Col: p.Col + inC}
		fc := b.At(in)
		if fs, ok := fc.Side(); !ok || fs != mover || (fc == board.King && !e.rs.ArmedKing) {
			return nil
		}
	}
	out := run[:0]
	for _, p := range run {
		if b.At(p) != board.King {
			out = append(out, p)
		}
	}
	return out
}

func adjacent(a, b board.Position) bool {
	dr, dc := a.Row-b.Row, a.Col-b.Col
	if dr < 0 {
		dr = -dr
	}
	if dc < 0 {
		dc = -dc
	}
	return dr+dc == 1
}
