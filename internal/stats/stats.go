// Package stats keeps in-memory daily highlights for the lobby: games
// played, wins per side and the day's notable results. It is display
// candy, not a system of record; the archive lives in the data API.
package stats

import (
	"sync"
	"time"

	"github.com/pefman/hnefatafl-online/internal/match"
)

// Highlight is one notable result of the day.
type Highlight struct {
	MatchID    string `json:"match_id"`
	Player     string `json:"player,omitempty"`
	Moves      int    `json:"moves"`
	DurationMs int64  `json:"duration_ms"`
	RatingGain int    `json:"rating_gain,omitempty"`
}

// Day aggregates everything that finished on one UTC date.
type Day struct {
	Date         string     `json:"date"`
	Games        int        `json:"games"`
	AttackerWins int        `json:"attacker_wins"`
	DefenderWins int        `json:"defender_wins"`
	Draws        int        `json:"draws"`
	FastestWin   *Highlight `json:"fastest_win,omitempty"`
	LongestGame  *Highlight `json:"longest_game,omitempty"`
	BiggestUpset *Highlight `json:"biggest_upset,omitempty"`
}

// Tracker records finished matches keyed by UTC date.
type Tracker struct {
	mu   sync.Mutex
	days map[string]*Day
}

func NewTracker() *Tracker {
	return &Tracker{days: make(map[string]*Day)}
}

// Record folds one finished match into its day. winnerGain is the
// winner's rating delta when known, zero otherwise.
func (t *Tracker) Record(res match.Result, winnerGain int) {
	key := dateKey(res.FinishedAt)
	h := Highlight{
		MatchID:    res.MatchID,
		Moves:      len(res.Moves),
		DurationMs: res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	day := t.days[key]
	if day == nil {
		day = &Day{Date: key}
		t.days[key] = day
	}
	day.Games++

	decisive := res.WinCondition != match.WinDraw && res.WinnerID != ""
	switch {
	case !decisive:
		day.Draws++
	case res.WinnerID == res.Attacker.PlayerID:
		day.AttackerWins++
		h.Player = res.Attacker.Name
	default:
		day.DefenderWins++
		h.Player = res.Defender.Name
	}

	if decisive && (day.FastestWin == nil || h.Moves < day.FastestWin.Moves) {
		fw := h
		day.FastestWin = &fw
	}
	if day.LongestGame == nil || h.Moves > day.LongestGame.Moves {
		lg := h
		day.LongestGame = &lg
	}
	if decisive && winnerGain > 0 &&
		(day.BiggestUpset == nil || winnerGain > day.BiggestUpset.RatingGain) {
		up := h
		up.RatingGain = winnerGain
		day.BiggestUpset = &up
	}
}

// Today returns a copy of the current UTC day.
func (t *Tracker) Today() Day {
	return t.Day(dateKey(time.Now()))
}

// Day returns a copy of the given date's stats, zero valued when the
// date never saw a game.
func (t *Tracker) Day(date string) Day {
	t.mu.Lock()
	defer t.mu.Unlock()
	day := t.days[date]
	if day == nil {
		return Day{Date: date}
	}
	out := *day
	if day.FastestWin != nil {
		fw := *day.FastestWin
		out.FastestWin = &fw
	}
	if day.LongestGame != nil {
		lg := *day.LongestGame
		out.LongestGame = &lg
	}
	if day.BiggestUpset != nil {
		up := *day.BiggestUpset
		out.BiggestUpset = &up
	}
	return out
}
