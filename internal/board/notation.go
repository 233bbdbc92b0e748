package board

import (
	"fmt"
	"regexp"
	"strings"
)

var moveRe = regexp.MustCompile(`^([a-z])(\d{1,2})\s*[-x]\s*([a-z])(\d{1,2})$`)

// ParsePosition reads a square in the notation Position.String emits:
// file letter then rank number, ranks counted from the top row. The
// size bounds the board the square must fit on.
func ParsePosition(s string, size int) (Position, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 2 {
		return Position{}, fmt.Errorf("bad square %q", s)
	}
	col := int(s[0] - 'a')
	var rank int
	if _, err := fmt.Sscanf(s[1:], "%d", &rank); err != nil {
		return Position{}, fmt.Errorf("bad square %q", s)
	}
	p := Position{Row: rank - 1, Col: col}
	if col < 0 || col >= size || p.Row < 0 || p.Row >= size {
		return Position{}, fmt.Errorf("square %q is off a %dx%d board", s, size, size)
	}
	return p, nil
}

// ParseMove reads "d1-d6" style notation, the inverse of Move.String.
// The separator is '-' or 'x', with optional spaces around it.
func ParseMove(s string, size int) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	m := moveRe.FindStringSubmatch(s)
	if m == nil {
		return Move{}, fmt.Errorf("bad move notation %q", s)
	}
	from, err := ParsePosition(m[1]+m[2], size)
	if err != nil {
		return Move{}, err
	}
	to, err := ParsePosition(m[3]+m[4], size)
	if err != nil {
		return Move{}, err
	}
	return Move{From: from, To: to}, nil
}
