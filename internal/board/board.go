// Package board holds the static model of a tafl board: pieces, sides,
// positions, starting layouts and the Ruleset knobs that vary between
// tafl variants. It knows nothing about move legality; that lives in
// internal/rules.
package board

import (
	"fmt"
	"strings"
)

// Piece is the content of a single square. The byte values double as the
// serialization alphabet used by Rows/FromRows and stored game records.
type Piece byte

const (
	Empty    Piece = '.'
	Attacker Piece = 'A'
	Defender Piece = 'D'
	King     Piece = 'K'
)

// Side says which player a piece fights for. The king fights for the
// defenders.
func (p Piece) Side() (Side, bool) {
	switch p {
	case Attacker:
		return SideAttacker, true
	case Defender, King:
		return SideDefender, true
	}
	return "", false
}

// Side identifies one of the two players.
type Side string

const (
	SideAttacker Side = "attacker"
	SideDefender Side = "defender"
)

func (s Side) Valid() bool { return s == SideAttacker || s == SideDefender }

func (s Side) Opponent() Side {
	if s == SideAttacker {
		return SideDefender
	}
	return SideAttacker
}

// Position is a square on the board. Row 0 is the top rank of the layout
// diagrams, col 0 the left file.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// String renders a position in algebraic style: file letter then rank
// number, ranks counted from the top row ("a1" is the top-left corner).
func (p Position) String() string {
	return fmt.Sprintf("%c%d", 'a'+p.Col, p.Row+1)
}

// Move is a single sliding move from one square to another.
type Move struct {
	From Position `json:"from"`
	To   Position `json:"to"`
}

func (m Move) String() string { return m.From.String() + "-" + m.To.String() }

// Board is a size×size grid of pieces. The zero value is unusable; build
// one with New, Initial or FromRows.
type Board struct {
	size  int
	cells []Piece
}

// New returns an empty board of the given size.
func New(size int) *Board {
	b := &Board{size: size, cells: make([]Piece, size*size)}
	for i := range b.cells {
		b.cells[i] = Empty
	}
	return b
}

// Initial builds the starting position for the ruleset's board size.
func Initial(rs Ruleset) (*Board, error) {
	rows, err := startingRows(rs.BoardSize)
	if err != nil {
		return nil, err
	}
	return FromRows(rows)
}

// FromRows parses a board from its row strings, the inverse of Rows.
func FromRows(rows []string) (*Board, error) {
	size := len(rows)
	b := New(size)
	for r, row := range rows {
		if len(row) != size {
			return nil, fmt.Errorf("board row %d: got %d squares, want %d", r, len(row), size)
		}
		for c := 0; c < size; c++ {
			p := Piece(row[c])
			switch p {
			case Empty, Attacker, Defender, King:
				b.cells[r*size+c] = p
			default:
				return nil, fmt.Errorf("board row %d col %d: unknown piece %q", r, c, row[c])
			}
		}
	}
	return b, nil
}

func (b *Board) Size() int { return b.size }

func (b *Board) InBounds(p Position) bool {
	return p.Row >= 0 && p.Row < b.size && p.Col >= 0 && p.Col < b.size
}

// At returns the piece on a square. Out-of-bounds squares read as Empty.
func (b *Board) At(p Position) Piece {
	if !b.InBounds(p) {
		return Empty
	}
	return b.cells[p.Row*b.size+p.Col]
}

// Put writes a piece to a square. Out-of-bounds writes are ignored.
func (b *Board) Put(p Position, pc Piece) {
	if !b.InBounds(p) {
		return
	}
	b.cells[p.Row*b.size+p.Col] = pc
}

// Clone returns an independent copy of the board.
func (b *Board) Clone() *Board {
	nb := &Board{size: b.size, cells: make([]Piece, len(b.cells))}
	copy(nb.cells, b.cells)
	return nb
}

// Throne is the central square.
func (b *Board) Throne() Position {
	return Position{Row: b.size / 2, Col: b.size / 2}
}

func (b *Board) IsThrone(p Position) bool { return p == b.Throne() }

// IsCorner reports whether p is one of the four corner refuges.
func (b *Board) IsCorner(p Position) bool {
	last := b.size - 1
	return (p.Row == 0 || p.Row == last) && (p.Col == 0 || p.Col == last)
}

// IsRestricted reports whether only the king may come to rest on p.
func (b *Board) IsRestricted(p Position) bool {
	return b.IsThrone(p) || b.IsCorner(p)
}

func (b *Board) IsEdge(p Position) bool {
	last := b.size - 1
	return p.Row == 0 || p.Row == last || p.Col == 0 || p.Col == last
}

// KingPos locates the king. ok is false once the king has been captured.
func (b *Board) KingPos() (Position, bool) {
	for i, pc := range b.cells {
		if pc == King {
			return Position{Row: i / b.size, Col: i % b.size}, true
		}
	}
	return Position{}, false
}

// Count returns how many squares hold the given piece.
func (b *Board) Count(pc Piece) int {
	n := 0
	for _, c := range b.cells {
		if c == pc {
			n++
		}
	}
	return n
}

// SideCount returns how many pieces fight for the given side.
func (b *Board) SideCount(s Side) int {
	n := 0
	for _, c := range b.cells {
		if ps, ok := c.Side(); ok && ps == s {
			n++
		}
	}
	return n
}

// Rows serializes the board as one string per row, using the piece bytes.
func (b *Board) Rows() []string {
	rows := make([]string, b.size)
	for r := 0; r < b.size; r++ {
		rows[r] = string(b.cells[r*b.size : (r+1)*b.size])
	}
	return rows
}

// Key is a compact canonical encoding of the position, suitable for
// repetition tracking and storage.
func (b *Board) Key() string {
	return strings.Join(b.Rows(), "/")
}

func (b *Board) Equal(other *Board) bool {
	if other == nil || b.size != other.size {
		return false
	}
	for i := range b.cells {
		if b.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}

// String draws the board for logs and test failures.
func (b *Board) String() string {
	var sb strings.Builder
	sb.WriteString("   ")
	for c := 0; c < b.size; c++ {
		sb.WriteByte(byte('a' + c))
		sb.WriteByte(' ')
	}
	sb.WriteByte('\n')
	for r := 0; r < b.size; r++ {
		fmt.Fprintf(&sb, "%2d ", r+1)
		for c := 0; c < b.size; c++ {
			sb.WriteByte(byte(b.cells[r*b.size+c]))
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
