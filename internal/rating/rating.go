// Package rating computes post-game ELO adjustments. Everything here is
// a pure function of match metadata; persisting the result and the
// at-most-once guarantee belong to the storage layer.
package rating

import "math"

type Role string

const (
	RoleAttacker Role = "attacker"
	RoleDefender Role = "defender"
)

// WinCondition is how a finished game was decided.
type WinCondition string

const (
	WinKingEscaped  WinCondition = "king_escaped"
	WinKingCaptured WinCondition = "king_captured"
	WinResignation  WinCondition = "resignation"
	WinTimeout      WinCondition = "timeout"
	WinDraw         WinCondition = "draw"
)

// Kind classifies a game for rating weight.
type Kind string

const (
	KindRanked     Kind = "ranked"
	KindCasual     Kind = "casual"
	KindTournament Kind = "tournament"
)

// Player is the slice of a rating record the formula needs.
type Player struct {
	Rating      int
	GamesPlayed int
}

// Band maps a rating range to its K-factor. A player falls into the band
// with the highest MinRating not above their rating.
type Band struct {
	MinRating int
	K         float64
}

type Config struct {
	// Players with fewer than ProvisionalGames finished games move at
	// ProvisionalK regardless of band.
	ProvisionalGames int
	ProvisionalK     float64
	Bands            []Band

	// DefenderBonus scales the exchange when the defending side wins,
	// reflecting the attacker's material advantage.
	DefenderBonus float64

	// ConcededFactor scales wins by resignation or timeout.
	ConcededFactor float64
	DrawFactor     float64

	RankedFactor     float64
	CasualFactor     float64
	TournamentFactor float64

	// Floor is the lowest rating a game may leave a player at.
	Floor int
}

func DefaultConfig() Config {
	return Config{
		ProvisionalGames: 10,
		ProvisionalK:     40,
		Bands: []Band{
			{MinRating: 0, K: 32},
			{MinRating: 2100, K: 24},
			{MinRating: 2400, K: 16},
		},
		DefenderBonus:    1.15,
		ConcededFactor:   0.9,
		DrawFactor:       0.5,
		RankedFactor:     1.0,
		CasualFactor:     0.5,
		TournamentFactor: 1.2,
		Floor:            100,
	}
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Expected is the standard logistic ELO curve: the probability that a
// player at rating beats an opponent at opponent.
func Expected(rating, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-rating)/400))
}

// ComputeDelta returns the rating movements for a finished game. For a
// decisive result the first player is the winner and the first delta is
// positive with a minimum magnitude of 1. For WinDraw the order of the
// two players does not matter and each receives half value. Deltas are
// clamped so no resulting rating falls below the configured floor.
func (e *Engine) ComputeDelta(winner, loser Player, winnerRole Role, cond WinCondition, kind Kind) (winnerDelta, loserDelta int) {
	mod := e.condFactor(cond) * e.kindFactor(kind)
	if cond != WinDraw && winnerRole == RoleDefender {
		mod *= e.cfg.DefenderBonus
	}

	ew := Expected(winner.Rating, loser.Rating)
	el := Expected(loser.Rating, winner.Rating)

	var wd, ld int
	if cond == WinDraw {
		wd = round(e.kFor(winner) * mod * (0.5 - ew))
		ld = round(e.kFor(loser) * mod * (0.5 - el))
	} else {
		wd = round(e.kFor(winner) * mod * (1 - ew))
		ld = round(e.kFor(loser) * mod * (0 - el))
		if wd < 1 {
			wd = 1
		}
		if ld > -1 {
			ld = -1
		}
	}
	return e.clampFloor(winner.Rating, wd), e.clampFloor(loser.Rating, ld)
}

func (e *Engine) kFor(p Player) float64 {
	if p.GamesPlayed < e.cfg.ProvisionalGames {
		return e.cfg.ProvisionalK
	}
	k := e.cfg.ProvisionalK
	best := math.MinInt
	for _, b := range e.cfg.Bands {
		if p.Rating >= b.MinRating && b.MinRating > best {
			best = b.MinRating
			k = b.K
		}
	}
	return k
}

func (e *Engine) condFactor(cond WinCondition) float64 {
	switch cond {
	case WinResignation, WinTimeout:
		return e.cfg.ConcededFactor
	case WinDraw:
		return e.cfg.DrawFactor
	default:
		return 1
	}
}

func (e *Engine) kindFactor(kind Kind) float64 {
	switch kind {
	case KindCasual:
		return e.cfg.CasualFactor
	case KindTournament:
		return e.cfg.TournamentFactor
	default:
		return e.cfg.RankedFactor
	}
}

func (e *Engine) clampFloor(rating, delta int) int {
	if rating+delta < e.cfg.Floor {
		return e.cfg.Floor - rating
	}
	return delta
}

func round(x float64) int {
	return int(math.Round(x))
}
