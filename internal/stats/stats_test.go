package stats

import (
	"testing"
	"time"

	"github.com/pefman/hnefatafl-online/internal/board"
	"github.com/pefman/hnefatafl-online/internal/match"
)

func result(id, winner string, moves int, dur time.Duration, finished time.Time) match.Result {
	res := match.Result{
		MatchID:    id,
		Kind:       "ranked",
		Ruleset:    board.Brandubh(),
		Attacker:   match.Seat{PlayerID: "p1", Name: "Astrid", Side: board.SideAttacker},
		Defender:   match.Seat{PlayerID: "p2", Name: "Bjorn", Side: board.SideDefender},
		WinnerID:   winner,
		Moves:      make([]match.MoveRecord, moves),
		StartedAt:  finished.Add(-dur),
		FinishedAt: finished,
	}
	switch winner {
	case "":
		res.Status, res.WinCondition = match.StatusDrawnByRepetition, match.WinDraw
	case "p1":
		res.Status, res.WinCondition = match.StatusKingCaptured, match.WinKingCaptured
	default:
		res.Status, res.WinCondition = match.StatusKingEscaped, match.WinKingEscaped
	}
	return res
}

func TestTrackerAggregates(t *testing.T) {
	tr := NewTracker()
	day := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tr.Record(result("m-1", "p1", 30, 8*time.Minute, day), 12)
	tr.Record(result("m-2", "p2", 18, 5*time.Minute, day.Add(time.Hour)), 25)
	tr.Record(result("m-3", "", 64, 40*time.Minute, day.Add(2*time.Hour)), 0)

	got := tr.Day("2025-06-01")
	if got.Games != 3 || got.AttackerWins != 1 || got.DefenderWins != 1 || got.Draws != 1 {
		t.Fatalf("tallies: %+v", got)
	}
	if got.FastestWin == nil || got.FastestWin.MatchID != "m-2" || got.FastestWin.Moves != 18 {
		t.Fatalf("fastest win: %+v", got.FastestWin)
	}
	if got.FastestWin.Player != "Bjorn" {
		t.Fatalf("fastest win protagonist: %+v", got.FastestWin)
	}
	if got.LongestGame == nil || got.LongestGame.MatchID != "m-3" || got.LongestGame.Moves != 64 {
		t.Fatalf("longest game: %+v", got.LongestGame)
	}
	if got.BiggestUpset == nil || got.BiggestUpset.MatchID != "m-2" || got.BiggestUpset.RatingGain != 25 {
		t.Fatalf("biggest upset: %+v", got.BiggestUpset)
	}
}

func TestTrackerSplitsDays(t *testing.T) {
	tr := NewTracker()
	d1 := time.Date(2025, 6, 1, 23, 50, 0, 0, time.UTC)
	d2 := time.Date(2025, 6, 2, 0, 10, 0, 0, time.UTC)

	tr.Record(result("m-1", "p1", 20, time.Minute, d1), 0)
	tr.Record(result("m-2", "p1", 22, time.Minute, d2), 0)

	if got := tr.Day("2025-06-01"); got.Games != 1 {
		t.Fatalf("first day games = %d, want 1", got.Games)
	}
	if got := tr.Day("2025-06-02"); got.Games != 1 {
		t.Fatalf("second day games = %d, want 1", got.Games)
	}
	if got := tr.Day("2025-06-03"); got.Games != 0 || got.Date != "2025-06-03" {
		t.Fatalf("empty day: %+v", got)
	}
}

func TestTrackerDrawNeverHighlighted(t *testing.T) {
	tr := NewTracker()
	day := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.Record(result("m-1", "", 10, time.Minute, day), 0)

	got := tr.Day("2025-06-01")
	if got.FastestWin != nil || got.BiggestUpset != nil {
		t.Fatalf("draws must not register win highlights: %+v", got)
	}
	if got.LongestGame == nil {
		t.Fatal("draws still count for the longest game")
	}
}

func TestTrackerDayIsolatesCopies(t *testing.T) {
	tr := NewTracker()
	day := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.Record(result("m-1", "p1", 20, time.Minute, day), 5)

	got := tr.Day("2025-06-01")
	got.FastestWin.Moves = 999
	got.Games = 999

	again := tr.Day("2025-06-01")
	if again.FastestWin.Moves != 20 || again.Games != 1 {
		t.Fatalf("Day must return copies: %+v", again)
	}
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker()
	tr.Record(result("m-1", "p1", 20, time.Minute, time.Now()), 0)
	tr.Reset()
	if got := tr.Today(); got.Games != 0 {
		t.Fatalf("after Reset: %+v", got)
	}
}
