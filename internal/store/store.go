// Package store persists accounts, finished games and rating history.
// The data API is the only writer; the game server reports results to it
// over HTTP.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pefman/hnefatafl-online/internal/match"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrNameTaken = errors.New("store: name already taken")
)

// User is an account row with its full rating record. PassHash never
// leaves the data API. A draw or loss ends the win streak; PeakRating
// never goes down.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PassHash      string    `json:"-"`
	Rating        int       `json:"rating"`
	PeakRating    int       `json:"peak_rating"`
	Games         int       `json:"games"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	WinStreak     int       `json:"win_streak"`
	LongestStreak int       `json:"longest_streak"`
	AttackerGames int       `json:"attacker_games"`
	AttackerWins  int       `json:"attacker_wins"`
	DefenderGames int       `json:"defender_games"`
	DefenderWins  int       `json:"defender_wins"`
	CreatedAt     time.Time `json:"created_at"`
}

// RateFunc computes the rating deltas for a finished game. It runs
// inside the commit transaction with the users' current rows.
type RateFunc func(attacker, defender User) (attackerDelta, defenderDelta int)

// RatingChange is one side of an applied rating update.
type RatingChange struct {
	PlayerID string `json:"player_id"`
	Delta    int    `json:"delta"`
	Rating   int    `json:"rating"`
}

// ResultCommit reports what recording a result actually changed.
// Applied is false when the match was committed before; ratings move at
// most once per match and player.
type ResultCommit struct {
	Applied  bool          `json:"applied"`
	Attacker *RatingChange `json:"attacker,omitempty"`
	Defender *RatingChange `json:"defender,omitempty"`
}

// Store is the persistence surface the data API handlers run against.
type Store interface {
	CreateUser(ctx context.Context, name, passHash string) (User, error)
	UserByName(ctx context.Context, name string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	Leaderboard(ctx context.Context, limit int) ([]User, error)

	// CommitResult archives the game and applies ratings atomically.
	// Committing the same match twice is a no-op reported via Applied.
	// Ratings only move when both seats belong to stored users; games
	// against the AI or guests are archived without rating changes.
	CommitResult(ctx context.Context, res match.Result, rate RateFunc) (ResultCommit, error)

	GameByID(ctx context.Context, id string) (match.Result, error)
	RecentGames(ctx context.Context, playerID string, limit int) ([]match.Result, error)

	Close() error
}
