package rules

import (
	"testing"

	"github.com/pefman/hnefatafl-online/internal/board"
)

func TestOutcomeKingEscaped(t *testing.T) {
	e := mustEngine(t, board.Copenhagen())
	b := parse(t, emptyRows(11, map[board.Position]board.Piece{
		pos(0, 1): board.King,
		pos(9, 5): board.Attacker,
	})...)
	nb, caps, err := e.Apply(b, board.Move{From: pos(0, 1), To: pos(0, 0)})
	if err != nil {
		t.Fatalf("king into the corner: %v", err)
	}
	if len(caps) != 0 {
		t.Errorf("unexpected captures %v", caps)
	}
	if got := e.Outcome(nb); got != OutcomeKingEscaped {
		t.Fatalf("outcome = %v, want king escaped", got)
	}
}

func TestOutcomeActive(t *testing.T) {
	e := mustEngine(t, board.Copenhagen())
	b, err := board.Initial(board.Copenhagen())
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Outcome(b); got != OutcomeNone {
		t.Fatalf("outcome of the opening position = %v, want none", got)
	}
}

func TestPositionKeyTracksSideToMove(t *testing.T) {
	b, err := board.Initial(board.Copenhagen())
	if err != nil {
		t.Fatal(err)
	}
	a := PositionKey(b, board.SideAttacker)
	d := PositionKey(b, board.SideDefender)
	if a == d {
		t.Fatal("keys must differ by side to move")
	}
	if a != PositionKey(b.Clone(), board.SideAttacker) {
		t.Fatal("equal positions must produce equal keys")
	}
}

func TestOutcomeStrings(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeNone:         "none",
		OutcomeKingEscaped:  "king_escaped",
		OutcomeKingCaptured: "king_captured",
	}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", o, got, want)
		}
	}
}
