package board

import (
	"errors"
	"testing"
)

func TestInitialLayouts(t *testing.T) {
	cases := []struct {
		size      int
		attackers int
		defenders int
	}{
		{7, 8, 4},
		{9, 16, 8},
		{11, 24, 12},
		{13, 32, 16},
	}
	for _, tc := range cases {
		rs := Copenhagen()
		rs.BoardSize = tc.size
		b, err := Initial(rs)
		if err != nil {
			t.Fatalf("size %d: %v", tc.size, err)
		}
		if got := b.Count(Attacker); got != tc.attackers {
			t.Errorf("size %d: %d attackers, want %d", tc.size, got, tc.attackers)
		}
		if got := b.Count(Defender); got != tc.defenders {
			t.Errorf("size %d: %d defenders, want %d", tc.size, got, tc.defenders)
		}
		if got := b.Count(King); got != 1 {
			t.Errorf("size %d: %d kings, want 1", tc.size, got)
		}
		kp, ok := b.KingPos()
		if !ok || kp != b.Throne() {
			t.Errorf("size %d: king at %v, want throne %v", tc.size, kp, b.Throne())
		}
		if got := b.SideCount(SideAttacker); got != tc.attackers {
			t.Errorf("size %d: SideCount(attacker) = %d, want %d", tc.size, got, tc.attackers)
		}
		if got := b.SideCount(SideDefender); got != tc.defenders+1 {
			t.Errorf("size %d: SideCount(defender) = %d, want %d", tc.size, got, tc.defenders+1)
		}
	}
}

func TestInitialUnsupportedSize(t *testing.T) {
	rs := Copenhagen()
	rs.BoardSize = 8
	if _, err := Initial(rs); !errors.Is(err, ErrBadBoardSize) {
		t.Fatalf("got %v, want ErrBadBoardSize", err)
	}
}

func TestRowsRoundTrip(t *testing.T) {
	b, err := Initial(Copenhagen())
	if err != nil {
		t.Fatal(err)
	}
	b.Put(Position{Row: 5, Col: 5}, Empty)
	b.Put(Position{Row: 2, Col: 3}, King)

	again, err := FromRows(b.Rows())
	if err != nil {
		t.Fatal(err)
	}
	if !b.Equal(again) {
		t.Fatalf("round trip changed the board:\n%s\nvs\n%s", b, again)
	}
	if b.Key() != again.Key() {
		t.Fatalf("keys differ: %q vs %q", b.Key(), again.Key())
	}
}

func TestFromRowsRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		rows []string
	}{
		{"ragged row", []string{"..", "...", ".."}},
		{"unknown piece", []string{"..", ".X"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromRows(tc.rows); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestRestrictedSquares(t *testing.T) {
	b := New(11)
	corners := []Position{{0, 0}, {0, 10}, {10, 0}, {10, 10}}
	for _, c := range corners {
		if !b.IsCorner(c) || !b.IsRestricted(c) {
			t.Errorf("%v should be a corner refuge", c)
		}
	}
	if !b.IsThrone(Position{5, 5}) || !b.IsRestricted(Position{5, 5}) {
		t.Error("center should be the throne")
	}
	if b.IsRestricted(Position{5, 6}) {
		t.Error("e6-adjacent square should not be restricted")
	}
	if !b.IsEdge(Position{0, 4}) || b.IsEdge(Position{4, 4}) {
		t.Error("edge detection wrong")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	b, _ := Initial(Brandubh())
	c := b.Clone()
	c.Put(Position{Row: 0, Col: 0}, King)
	if b.At(Position{Row: 0, Col: 0}) != Empty {
		t.Fatal("mutating the clone touched the original")
	}
}

func TestPieceSides(t *testing.T) {
	if s, ok := Attacker.Side(); !ok || s != SideAttacker {
		t.Error("attacker piece should fight for the attacker")
	}
	if s, ok := King.Side(); !ok || s != SideDefender {
		t.Error("the king fights for the defender")
	}
	if _, ok := Empty.Side(); ok {
		t.Error("empty squares have no side")
	}
	if SideAttacker.Opponent() != SideDefender || SideDefender.Opponent() != SideAttacker {
		t.Error("opponents should mirror")
	}
}

func TestPositionString(t *testing.T) {
	cases := []struct {
		pos  Position
		want string
	}{
		{Position{0, 0}, "a1"},
		{Position{5, 5}, "f6"},
		{Position{10, 10}, "k11"},
	}
	for _, tc := range cases {
		if got := tc.pos.String(); got != tc.want {
			t.Errorf("%v.String() = %q, want %q", tc.pos, got, tc.want)
		}
	}
	m := Move{From: Position{5, 5}, To: Position{5, 9}}
	if m.String() != "f6-j6" {
		t.Errorf("move string = %q", m.String())
	}
}

func TestRulesetPresets(t *testing.T) {
	for _, name := range RulesetNames() {
		rs, err := RulesetByName(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if rs.Name != name {
			t.Errorf("%s: preset reports name %q", name, rs.Name)
		}
		if err := rs.Validate(); err != nil {
			t.Errorf("%s: preset does not validate: %v", name, err)
		}
	}
	if _, err := RulesetByName("alea-evangelii"); !errors.Is(err, ErrUnknownRuleset) {
		t.Errorf("unknown preset: got %v", err)
	}
	if err := (Ruleset{Name: "x", BoardSize: 11, RepetitionLimit: 1}).Validate(); !errors.Is(err, ErrBadRepetition) {
		t.Errorf("repetition limit 1 should be rejected, got %v", err)
	}
}
