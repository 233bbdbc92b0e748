package rating

import (
	"math"
	"testing"
)

func TestEvenRankedAttackerWin(t *testing.T) {
	e := New(DefaultConfig())
	fresh := Player{Rating: 1200, GamesPlayed: 0}
	wd, ld := e.ComputeDelta(fresh, fresh, RoleAttacker, WinKingCaptured, KindRanked)
	if wd != 20 || ld != -20 {
		t.Fatalf("deltas = (%d, %d), want (20, -20)", wd, ld)
	}
	if wd != -ld {
		t.Fatalf("equal players should exchange symmetric deltas, got (%d, %d)", wd, ld)
	}
}

func TestDefenderWinBonus(t *testing.T) {
	e := New(DefaultConfig())
	fresh := Player{Rating: 1200, GamesPlayed: 0}
	wd, ld := e.ComputeDelta(fresh, fresh, RoleDefender, WinKingEscaped, KindRanked)
	if wd != 23 || ld != -23 {
		t.Fatalf("deltas = (%d, %d), want (23, -23)", wd, ld)
	}
}

func TestConditionAndKindFactors(t *testing.T) {
	e := New(DefaultConfig())
	fresh := Player{Rating: 1200, GamesPlayed: 0}
	cases := []struct {
		name string
		cond WinCondition
		kind Kind
		want int
	}{
		{"resignation", WinResignation, KindRanked, 18},
		{"timeout", WinTimeout, KindRanked, 18},
		{"casual", WinKingCaptured, KindCasual, 10},
		{"tournament", WinKingCaptured, KindTournament, 24},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wd, ld := e.ComputeDelta(fresh, fresh, RoleAttacker, tc.cond, tc.kind)
			if wd != tc.want || ld != -tc.want {
				t.Fatalf("deltas = (%d, %d), want (%d, %d)", wd, ld, tc.want, -tc.want)
			}
		})
	}
}

func TestDrawHalfValue(t *testing.T) {
	e := New(DefaultConfig())

	even := Player{Rating: 1200, GamesPlayed: 30}
	wd, ld := e.ComputeDelta(even, even, RoleAttacker, WinDraw, KindRanked)
	if wd != 0 || ld != 0 {
		t.Fatalf("even draw should move nobody, got (%d, %d)", wd, ld)
	}

	higher := Player{Rating: 1400, GamesPlayed: 30}
	lower := Player{Rating: 1200, GamesPlayed: 30}
	wd, ld = e.ComputeDelta(higher, lower, RoleAttacker, WinDraw, KindRanked)
	if wd >= 0 || ld <= 0 {
		t.Fatalf("drawing down should cost the favourite, got (%d, %d)", wd, ld)
	}
	if wd != -4 || ld != 4 {
		t.Fatalf("deltas = (%d, %d), want (-4, 4)", wd, ld)
	}
}

func TestMinimumMagnitudeForDecisiveResults(t *testing.T) {
	e := New(DefaultConfig())
	giant := Player{Rating: 2600, GamesPlayed: 50}
	novice := Player{Rating: 800, GamesPlayed: 50}
	wd, ld := e.ComputeDelta(giant, novice, RoleAttacker, WinKingCaptured, KindRanked)
	if wd != 1 {
		t.Errorf("winner delta = %d, want the minimum 1", wd)
	}
	if ld != -1 {
		t.Errorf("loser delta = %d, want the minimum -1", ld)
	}
}

func TestKFactorBands(t *testing.T) {
	e := New(DefaultConfig())
	cases := []struct {
		name   string
		player Player
		want   int
	}{
		{"provisional", Player{Rating: 1200, GamesPlayed: 3}, 20},
		{"established", Player{Rating: 1200, GamesPlayed: 30}, 16},
		{"expert band", Player{Rating: 2200, GamesPlayed: 50}, 12},
		{"master band", Player{Rating: 2500, GamesPlayed: 50}, 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wd, ld := e.ComputeDelta(tc.player, tc.player, RoleAttacker, WinKingCaptured, KindRanked)
			if wd != tc.want || ld != -tc.want {
				t.Fatalf("deltas = (%d, %d), want (%d, %d)", wd, ld, tc.want, -tc.want)
			}
		})
	}
}

func TestRatingFloor(t *testing.T) {
	e := New(DefaultConfig())
	winner := Player{Rating: 105, GamesPlayed: 20}
	loser := Player{Rating: 105, GamesPlayed: 20}
	wd, ld := e.ComputeDelta(winner, loser, RoleAttacker, WinKingCaptured, KindRanked)
	if wd != 16 {
		t.Errorf("winner delta = %d, want 16", wd)
	}
	if loser.Rating+ld != 100 {
		t.Errorf("loser lands on %d, want the floor 100", loser.Rating+ld)
	}
}

func TestExpectedCurve(t *testing.T) {
	if got := Expected(1200, 1200); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Expected(1200,1200) = %v, want 0.5", got)
	}
	if got := Expected(1400, 1200) + Expected(1200, 1400); math.Abs(got-1) > 1e-9 {
		t.Errorf("expectations should sum to 1, got %v", got)
	}
	if Expected(1600, 1200) <= Expected(1200, 1600) {
		t.Error("the stronger player should be favoured")
	}
}
