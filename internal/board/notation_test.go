package board

import "testing"

func TestParseMove(t *testing.T) {
	cases := []struct {
		in   string
		size int
		want Move
	}{
		{"a1-a4", 11, Move{From: Position{0, 0}, To: Position{3, 0}}},
		{"d4-d7", 11, Move{From: Position{3, 3}, To: Position{6, 3}}},
		{"K11-A11", 11, Move{From: Position{10, 10}, To: Position{10, 0}}},
		{" f6 x f9 ", 11, Move{From: Position{5, 5}, To: Position{8, 5}}},
		{"g7-g4", 7, Move{From: Position{6, 6}, To: Position{3, 6}}},
	}
	for _, tc := range cases {
		got, err := ParseMove(tc.in, tc.size)
		if err != nil {
			t.Fatalf("ParseMove(%q, %d): %v", tc.in, tc.size, err)
		}
		if got != tc.want {
			t.Errorf("ParseMove(%q, %d) = %v, want %v", tc.in, tc.size, got, tc.want)
		}
	}
}

func TestParseMoveRejectsGarbage(t *testing.T) {
	bad := []string{"", "d4", "d4 d7", "d4--d7", "z4-z7", "d12-d7", "4d-7d", "d0-d4"}
	for _, in := range bad {
		if _, err := ParseMove(in, 11); err == nil {
			t.Errorf("ParseMove(%q) accepted, want error", in)
		}
	}
}

func TestParseMoveInvertsString(t *testing.T) {
	moves := []Move{
		{From: Position{0, 3}, To: Position{4, 3}},
		{From: Position{10, 10}, To: Position{10, 5}},
		{From: Position{5, 5}, To: Position{5, 0}},
	}
	for _, m := range moves {
		got, err := ParseMove(m.String(), 11)
		if err != nil {
			t.Fatalf("ParseMove(%q): %v", m.String(), err)
		}
		if got != m {
			t.Errorf("ParseMove(%q) = %v, want %v", m.String(), got, m)
		}
	}
}

func TestParsePositionBounds(t *testing.T) {
	if _, err := ParsePosition("h8", 7); err == nil {
		t.Error("h8 accepted on a 7x7 board")
	}
	p, err := ParsePosition("g7", 7)
	if err != nil {
		t.Fatalf("g7 on 7x7: %v", err)
	}
	if p != (Position{Row: 6, Col: 6}) {
		t.Errorf("g7 = %v, want {6 6}", p)
	}
}
